package domain

import (
	"errors"
	"testing"
	"time"
)

func newTestPoll() *Poll {
	return &Poll{
		ID:       "p1",
		StreamID: "s1",
		Options: []PollOption{
			{Text: "yes"},
			{Text: "no"},
		},
		IsActive: true,
		EndTime:  time.Now().Add(time.Minute),
	}
}

func TestCastVoteKeepsTalliesConsistent(t *testing.T) {
	p := newTestPoll()

	if err := p.CastVote("u1", 0); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if err := p.CastVote("u2", 1); err != nil {
		t.Fatalf("CastVote: %v", err)
	}

	sum := 0
	for _, opt := range p.Options {
		sum += opt.Votes
	}
	if sum != p.TotalVotes {
		t.Fatalf("option votes sum %d != total %d", sum, p.TotalVotes)
	}
	if p.TotalVotes != 2 {
		t.Fatalf("total = %d, want 2", p.TotalVotes)
	}
}

func TestCastVoteRejectsDuplicates(t *testing.T) {
	p := newTestPoll()
	if err := p.CastVote("u1", 0); err != nil {
		t.Fatalf("CastVote: %v", err)
	}

	err := p.CastVote("u1", 1)
	if !errors.Is(err, ErrDuplicateVote) {
		t.Fatalf("err = %v, want ErrDuplicateVote", err)
	}
	if p.TotalVotes != 1 {
		t.Fatalf("rejected vote must not change total, got %d", p.TotalVotes)
	}
}

func TestCastVoteAllowsMultipleWhenEnabled(t *testing.T) {
	p := newTestPoll()
	p.AllowMultipleVotes = true

	if err := p.CastVote("u1", 0); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if err := p.CastVote("u1", 1); err != nil {
		t.Fatalf("second vote with multiples allowed: %v", err)
	}
	if p.TotalVotes != 2 {
		t.Fatalf("total = %d, want 2", p.TotalVotes)
	}
}

func TestCastVoteOutOfRange(t *testing.T) {
	p := newTestPoll()

	for _, idx := range []int{-1, 2, 99} {
		if err := p.CastVote("u1", idx); !IsDomainError(err, ErrCodeInvalid) {
			t.Errorf("index %d: err = %v, want INVALID", idx, err)
		}
	}
	if p.TotalVotes != 0 {
		t.Fatalf("invalid votes must not count, got %d", p.TotalVotes)
	}
}

func TestExpired(t *testing.T) {
	p := newTestPoll()
	now := time.Now()

	p.EndTime = now.Add(time.Second)
	if p.Expired(now) {
		t.Fatal("poll inside its window reported expired")
	}
	p.EndTime = now.Add(-time.Second)
	if !p.Expired(now) {
		t.Fatal("poll past its window reported active")
	}
}
