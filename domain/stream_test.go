package domain

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from StreamStatus
		to   StreamStatus
		want bool
	}{
		{StreamStatusScheduled, StreamStatusLive, true},
		{StreamStatusScheduled, StreamStatusPaused, false},
		{StreamStatusScheduled, StreamStatusEnded, false},
		{StreamStatusLive, StreamStatusPaused, true},
		{StreamStatusLive, StreamStatusEnded, true},
		{StreamStatusPaused, StreamStatusLive, true},
		{StreamStatusPaused, StreamStatusEnded, false},
		{StreamStatusEnded, StreamStatusLive, false},
		{StreamStatusEnded, StreamStatusPaused, false},
		{StreamStatusEnded, StreamStatusEnded, false},
	}
	for _, tc := range cases {
		s := &Stream{Status: tc.from}
		if got := s.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestAddViewerIdempotent(t *testing.T) {
	s := &Stream{Status: StreamStatusLive}

	if !s.AddViewer("u1") {
		t.Fatal("first add should change the set")
	}
	if s.AddViewer("u1") {
		t.Fatal("re-adding the same viewer must not change the set")
	}
	if s.CurrentViewerCount != 1 {
		t.Fatalf("count = %d, want 1", s.CurrentViewerCount)
	}
	if s.CurrentViewerCount != len(s.ViewerIDs) {
		t.Fatalf("count %d diverged from set size %d", s.CurrentViewerCount, len(s.ViewerIDs))
	}
}

func TestPeakViewerNeverDecreases(t *testing.T) {
	s := &Stream{Status: StreamStatusLive}
	s.AddViewer("u1")
	s.AddViewer("u2")
	s.AddViewer("u3")
	if s.PeakViewerCount != 3 {
		t.Fatalf("peak = %d, want 3", s.PeakViewerCount)
	}

	s.RemoveViewer("u1")
	s.RemoveViewer("u2")
	if s.CurrentViewerCount != 1 {
		t.Fatalf("count = %d, want 1", s.CurrentViewerCount)
	}
	if s.PeakViewerCount != 3 {
		t.Fatalf("peak dropped to %d after leaves", s.PeakViewerCount)
	}

	s.AddViewer("u4")
	if s.PeakViewerCount != 3 {
		t.Fatalf("peak = %d, want 3 (crossing below peak must not raise it)", s.PeakViewerCount)
	}
}

func TestRemoveAbsentViewerIsNoop(t *testing.T) {
	s := &Stream{Status: StreamStatusLive}
	s.AddViewer("u1")

	if s.RemoveViewer("ghost") {
		t.Fatal("removing an absent viewer must report no change")
	}
	if s.CurrentViewerCount != 1 {
		t.Fatalf("count = %d, want 1", s.CurrentViewerCount)
	}
}

func TestEndComputesDurationOnce(t *testing.T) {
	started := time.Now().Add(-90 * time.Second)
	s := &Stream{Status: StreamStatusLive, StartedAt: &started}

	s.End(started.Add(90 * time.Second))
	if s.Status != StreamStatusEnded {
		t.Fatalf("status = %s, want ended", s.Status)
	}
	if s.Duration != 90 {
		t.Fatalf("duration = %d, want 90", s.Duration)
	}
}
