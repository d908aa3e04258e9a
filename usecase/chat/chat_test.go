package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/pkg/keymutex"
	"github.com/featherlive/backend/repository"
	"github.com/featherlive/backend/usecase"
)

type memStreams struct {
	mu        sync.Mutex
	streams   map[string]domain.Stream
	conflicts int
}

func (m *memStreams) GetByID(_ context.Context, id string) (*domain.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	if !ok {
		return nil, domain.ErrStreamNotFound
	}
	copied := s
	return &copied, nil
}

func (m *memStreams) GetByRTCSession(context.Context, string, string) (*domain.Stream, error) {
	return nil, domain.ErrStreamNotFound
}

func (m *memStreams) List(context.Context, repository.StreamFilter) ([]domain.Stream, error) {
	return nil, nil
}

func (m *memStreams) CountActiveByOwner(context.Context, string) (int, error) { return 0, nil }

func (m *memStreams) Create(_ context.Context, s *domain.Stream) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Version = 1
	m.streams[s.ID] = *s
	return nil
}

func (m *memStreams) Update(_ context.Context, s *domain.Stream) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.streams[s.ID]
	if !ok {
		return domain.ErrStreamNotFound
	}
	if m.conflicts > 0 {
		m.conflicts--
		return domain.ErrVersionConflict
	}
	if current.Version != s.Version {
		return domain.ErrVersionConflict
	}
	s.Version++
	m.streams[s.ID] = *s
	return nil
}

type memMessages struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
}

func (m *memMessages) Create(_ context.Context, msg *domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memMessages) ListByStream(_ context.Context, streamID string, limit int) ([]domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ChatMessage
	for _, msg := range m.messages {
		if msg.StreamID == streamID {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type memAnalytics struct {
	mu    sync.Mutex
	chats int64
}

func (m *memAnalytics) Get(context.Context, string) (*domain.StreamAnalytics, error) {
	return nil, domain.ErrStreamNotFound
}

func (m *memAnalytics) Increment(_ context.Context, _ string, d repository.AnalyticsDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats += d.Chats
	return nil
}

func (m *memAnalytics) Finalize(context.Context, string, int64, int) error { return nil }

type recordedEvent struct {
	Target  string
	Event   string
	Payload interface{}
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) ToStream(streamID, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{streamID, event, payload})
}

func (r *recorder) ToUser(userID, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{userID, event, payload})
}

type fixture struct {
	uc        *UseCase
	streams   *memStreams
	messages  *memMessages
	analytics *memAnalytics
	events    *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	streams := &memStreams{streams: map[string]domain.Stream{
		"s1": {
			ID:       "s1",
			OwnerID:  "owner1",
			Status:   domain.StreamStatusLive,
			Settings: domain.DefaultStreamSettings(),
			Version:  1,
		},
	}}
	messages := &memMessages{}
	analytics := &memAnalytics{}
	events := &recorder{}
	uc := New(streams, messages, analytics, events, keymutex.New(), nil, 200)
	return &fixture{uc: uc, streams: streams, messages: messages, analytics: analytics, events: events}
}

func (f *fixture) setStream(mutate func(*domain.Stream)) {
	f.streams.mu.Lock()
	defer f.streams.mu.Unlock()
	s := f.streams.streams["s1"]
	mutate(&s)
	f.streams.streams["s1"] = s
}

func TestPostMessageBroadcastIsTheAck(t *testing.T) {
	f := newFixture(t)

	msg, err := f.uc.PostMessage(context.Background(), "s1", "viewer1", "hello", "")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if msg.Type != domain.ChatTypeText {
		t.Fatalf("type = %q, want text", msg.Type)
	}

	if len(f.events.events) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(f.events.events))
	}
	e := f.events.events[0]
	if e.Event != usecase.EventMessage || e.Target != "s1" {
		t.Fatalf("broadcast = %s to %s", e.Event, e.Target)
	}
	sent := e.Payload.(*domain.ChatMessage)
	if sent.Content != "hello" || sent.SenderID != "viewer1" {
		t.Fatal("broadcast payload is not the stored message")
	}
}

func TestPostMessageTrimsAndRejectsEmpty(t *testing.T) {
	f := newFixture(t)

	msg, err := f.uc.PostMessage(context.Background(), "s1", "viewer1", "  hi  ", "")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if msg.Content != "hi" {
		t.Fatalf("content = %q, want trimmed", msg.Content)
	}

	if _, err := f.uc.PostMessage(context.Background(), "s1", "viewer1", "   ", ""); !domain.IsDomainError(err, domain.ErrCodeInvalid) {
		t.Fatalf("blank message err = %v, want INVALID", err)
	}
}

func TestPostMessageLengthLimit(t *testing.T) {
	f := newFixture(t)

	long := strings.Repeat("a", 201)
	if _, err := f.uc.PostMessage(context.Background(), "s1", "viewer1", long, ""); !domain.IsDomainError(err, domain.ErrCodeInvalid) {
		t.Fatalf("err = %v, want INVALID", err)
	}
	if len(f.messages.messages) != 0 {
		t.Fatal("oversized message was persisted")
	}
}

func TestPostMessageRejectedWhenCommentsDisabled(t *testing.T) {
	f := newFixture(t)
	f.setStream(func(s *domain.Stream) { s.Settings.AllowComments = false })

	_, err := f.uc.PostMessage(context.Background(), "s1", "viewer1", "hello", "")
	if !errors.Is(err, domain.ErrCommentsDisabled) {
		t.Fatalf("err = %v, want ErrCommentsDisabled", err)
	}
	if len(f.messages.messages) != 0 {
		t.Fatal("rejected message was persisted")
	}
}

func TestPostMessageRejectedOnEndedStream(t *testing.T) {
	f := newFixture(t)
	f.setStream(func(s *domain.Stream) { s.Status = domain.StreamStatusEnded })

	_, err := f.uc.PostMessage(context.Background(), "s1", "viewer1", "hello", "")
	if !errors.Is(err, domain.ErrStreamEnded) {
		t.Fatalf("err = %v, want ErrStreamEnded", err)
	}
}

func TestPostMessageBumpsCounters(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		if _, err := f.uc.PostMessage(context.Background(), "s1", "viewer1", "hello", ""); err != nil {
			t.Fatalf("PostMessage: %v", err)
		}
	}
	s, _ := f.streams.GetByID(context.Background(), "s1")
	if s.ChatCount != 3 {
		t.Fatalf("chat count = %d, want 3", s.ChatCount)
	}
	if f.analytics.chats != 3 {
		t.Fatalf("analytics chats = %d, want 3", f.analytics.chats)
	}
}

func TestPostMessagePersistsOnceUnderVersionRace(t *testing.T) {
	f := newFixture(t)
	f.streams.conflicts = 1

	if _, err := f.uc.PostMessage(context.Background(), "s1", "viewer1", "hello", ""); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if len(f.messages.messages) != 1 {
		t.Fatalf("one chat post persisted %d message rows", len(f.messages.messages))
	}
	s, _ := f.streams.GetByID(context.Background(), "s1")
	if s.ChatCount != 1 {
		t.Fatalf("chat count = %d after retried commit, want 1", s.ChatCount)
	}
	if len(f.events.events) != 1 {
		t.Fatalf("broadcasts = %d after retried commit, want 1", len(f.events.events))
	}
}

func TestReactEmojiEphemeral(t *testing.T) {
	f := newFixture(t)

	if err := f.uc.ReactEmoji(context.Background(), "s1", "viewer1", "🔥"); err != nil {
		t.Fatalf("ReactEmoji: %v", err)
	}
	if len(f.messages.messages) != 0 {
		t.Fatal("emoji reaction was persisted")
	}
	if len(f.events.events) != 1 || f.events.events[0].Event != usecase.EventEmojiReaction {
		t.Fatal("emoji reaction was not broadcast")
	}

	f.setStream(func(s *domain.Stream) { s.Status = domain.StreamStatusEnded })
	if err := f.uc.ReactEmoji(context.Background(), "s1", "viewer1", "🔥"); !errors.Is(err, domain.ErrStreamNotLive) {
		t.Fatalf("err = %v, want ErrStreamNotLive", err)
	}
}

func TestHistoryScopedToStream(t *testing.T) {
	f := newFixture(t)
	f.streams.streams["s2"] = domain.Stream{
		ID: "s2", OwnerID: "owner2", Status: domain.StreamStatusLive,
		Settings: domain.DefaultStreamSettings(), Version: 1,
	}

	if _, err := f.uc.PostMessage(context.Background(), "s1", "viewer1", "one", ""); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if _, err := f.uc.PostMessage(context.Background(), "s2", "viewer1", "two", ""); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}

	history, err := f.uc.History(context.Background(), "s1", 50)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].Content != "one" {
		t.Fatalf("history = %+v, want the single s1 message", history)
	}
}
