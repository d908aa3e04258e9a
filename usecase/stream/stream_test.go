package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/internal/rtc"
	"github.com/featherlive/backend/pkg/keymutex"
	"github.com/featherlive/backend/repository"
	"github.com/featherlive/backend/usecase"
)

// memStreams is an in-memory StreamRepository with the same version-checked
// Update semantics as the postgres implementation.
type memStreams struct {
	mu      sync.Mutex
	streams map[string]domain.Stream
	reads   int
}

func newMemStreams() *memStreams {
	return &memStreams{streams: make(map[string]domain.Stream)}
}

func (m *memStreams) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func (m *memStreams) GetByID(_ context.Context, id string) (*domain.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	s, ok := m.streams[id]
	if !ok {
		return nil, domain.ErrStreamNotFound
	}
	copied := s
	copied.ViewerIDs = append([]string(nil), s.ViewerIDs...)
	return &copied, nil
}

func (m *memStreams) GetByRTCSession(_ context.Context, resourceID, sessionID string) (*domain.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.streams {
		if s.RTCResourceID == resourceID && s.RTCSessionID == sessionID {
			copied := s
			return &copied, nil
		}
	}
	return nil, domain.ErrStreamNotFound
}

func (m *memStreams) List(_ context.Context, filter repository.StreamFilter) ([]domain.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Stream
	for _, s := range m.streams {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.OwnerID != "" && s.OwnerID != filter.OwnerID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *memStreams) CountActiveByOwner(_ context.Context, ownerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.streams {
		if s.OwnerID == ownerID && (s.Status == domain.StreamStatusLive || s.Status == domain.StreamStatusPaused) {
			n++
		}
	}
	return n, nil
}

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
	if current.Version != s.Version {
		return domain.ErrVersionConflict
	}
	s.Version++
	copied := *s
	copied.ViewerIDs = append([]string(nil), s.ViewerIDs...)
	m.streams[s.ID] = copied
	return nil
}

type memModeration struct {
	mu      sync.Mutex
	actions []domain.ModerationAction
}

func (m *memModeration) Record(_ context.Context, a *domain.ModerationAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, *a)
	return nil
}

type memAnalytics struct {
	mu        sync.Mutex
	deltas    []repository.AnalyticsDelta
	finalized map[string]bool
}

func newMemAnalytics() *memAnalytics {
	return &memAnalytics{finalized: make(map[string]bool)}
}

func (m *memAnalytics) Get(context.Context, string) (*domain.StreamAnalytics, error) {
	return nil, domain.ErrStreamNotFound
}

func (m *memAnalytics) Increment(_ context.Context, _ string, delta repository.AnalyticsDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deltas = append(m.deltas, delta)
	return nil
}

func (m *memAnalytics) Finalize(_ context.Context, streamID string, _ int64, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized[streamID] {
		return domain.ErrVersionConflict
	}
	m.finalized[streamID] = true
	return nil
}

type memWallets struct {
	mu      sync.Mutex
	created map[string]bool
}

func (m *memWallets) GetOrCreate(_ context.Context, userID string) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created == nil {
		m.created = make(map[string]bool)
	}
	m.created[userID] = true
	return &domain.Wallet{ID: "w-" + userID, UserID: userID}, nil
}

func (m *memWallets) GetByUserID(_ context.Context, userID string) (*domain.Wallet, error) {
	return &domain.Wallet{ID: "w-" + userID, UserID: userID}, nil
}

func (m *memWallets) Transfer(context.Context, repository.TransferParams) error { return nil }

func (m *memWallets) ListTransactions(context.Context, string, int) ([]domain.WalletTransaction, error) {
	return nil, nil
}

type memUsers struct {
	users map[string]*domain.User
}

func (m *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) Upsert(context.Context, *domain.User) error { return nil }

type fakeProvider struct {
	fail bool
}

func (p *fakeProvider) IssueCredential(_ context.Context, channel, uid string) (*rtc.Credential, error) {
	if p.fail {
		return nil, domain.NewError(domain.ErrCodeDependency, "provider down")
	}
	return &rtc.Credential{
		Channel:    channel,
		Token:      "tok-" + uid,
		ResourceID: "res-" + channel,
		SessionID:  "sess-" + channel,
	}, nil
}

type recordedEvent struct {
	StreamID string
	Event    string
	Payload  interface{}
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

func (r *recorder) byEvent(event string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	uc        *UseCase
	streams   *memStreams
	analytics *memAnalytics
	mod       *memModeration
	wallets   *memWallets
	events    *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	streams := newMemStreams()
	analytics := newMemAnalytics()
	mod := &memModeration{}
	wallets := &memWallets{}
	events := &recorder{}
	users := &memUsers{users: map[string]*domain.User{
		"mod1":   {ID: "mod1", Role: "moderator", Status: "active"},
		"plain1": {ID: "plain1", Role: "user", Status: "active"},
	}}

	uc := New(streams, mod, analytics, wallets, users, &fakeProvider{}, nil, nil, events,
		keymutex.New(), nil, Config{SingleActiveSession: true})
	return &fixture{uc: uc, streams: streams, analytics: analytics, mod: mod, wallets: wallets, events: events}
}

func (f *fixture) startStream(t *testing.T, owner string) *domain.Stream {
	t.Helper()
	res, err := f.uc.Start(context.Background(), owner, StartParams{
		Title:    "test session",
		Settings: domain.DefaultStreamSettings(),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return res.Stream
}

func TestStartIssuesCredentialAndGoesLive(t *testing.T) {
	f := newFixture(t)
	res, err := f.uc.Start(context.Background(), "owner1", StartParams{Title: "hello"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.Stream.Status != domain.StreamStatusLive {
		t.Fatalf("status = %s, want live", res.Stream.Status)
	}
	if res.Credential == nil || res.Credential.Token == "" {
		t.Fatal("missing credential")
	}
	if !f.wallets.created["owner1"] {
		t.Fatal("owner wallet not provisioned")
	}
}

func TestStartRejectsSecondActiveSession(t *testing.T) {
	f := newFixture(t)
	f.startStream(t, "owner1")

	_, err := f.uc.Start(context.Background(), "owner1", StartParams{Title: "again"})
	if !domain.IsDomainError(err, domain.ErrCodeConflict) {
		t.Fatalf("err = %v, want CONFLICT", err)
	}
}

func TestStartProviderFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.uc.provider = &fakeProvider{fail: true}

	_, err := f.uc.Start(context.Background(), "owner1", StartParams{Title: "doomed"})
	if !domain.IsDomainError(err, domain.ErrCodeDependency) {
		t.Fatalf("err = %v, want DEPENDENCY", err)
	}
	if n, _ := f.streams.CountActiveByOwner(context.Background(), "owner1"); n != 0 {
		t.Fatalf("orphan stream persisted, active = %d", n)
	}
}

func TestPauseResumeTransitions(t *testing.T) {
	f := newFixture(t)
	s := f.startStream(t, "owner1")
	ctx := context.Background()

	if _, err := f.uc.Resume(ctx, s.ID, "owner1"); !domain.IsDomainError(err, domain.ErrCodeConflict) {
		t.Fatalf("resume live: err = %v, want CONFLICT", err)
	}

	paused, err := f.uc.Pause(ctx, s.ID, "owner1")
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if paused.Status != domain.StreamStatusPaused {
		t.Fatalf("status = %s, want paused", paused.Status)
	}

	if _, err := f.uc.Pause(ctx, s.ID, "owner1"); !domain.IsDomainError(err, domain.ErrCodeConflict) {
		t.Fatalf("double pause: err = %v, want CONFLICT", err)
	}

	resumed, err := f.uc.Resume(ctx, s.ID, "owner1")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Status != domain.StreamStatusLive {
		t.Fatalf("status = %s, want live", resumed.Status)
	}
}

func TestPauseRequiresOwner(t *testing.T) {
	f := newFixture(t)
	s := f.startStream(t, "owner1")

	_, err := f.uc.Pause(context.Background(), s.ID, "intruder")
	if !domain.IsDomainError(err, domain.ErrCodeForbidden) {
		t.Fatalf("err = %v, want FORBIDDEN", err)
	}
}

func TestEndIsTerminalAndFinalizesOnce(t *testing.T) {
	f := newFixture(t)
	s := f.startStream(t, "owner1")
	ctx := context.Background()

	ended, err := f.uc.End(ctx, s.ID, "owner1")
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.Status != domain.StreamStatusEnded || ended.EndedAt == nil {
		t.Fatalf("stream not terminal: %+v", ended)
	}
	if !f.analytics.finalized[s.ID] {
		t.Fatal("analytics not finalized")
	}

	if _, err := f.uc.End(ctx, s.ID, "owner1"); !errors.Is(err, domain.ErrStreamEnded) {
		t.Fatalf("second end: err = %v, want ErrStreamEnded", err)
	}
}

func TestEndFromPausedRequiresResume(t *testing.T) {
	f := newFixture(t)
	s := f.startStream(t, "owner1")
	ctx := context.Background()

	if _, err := f.uc.Pause(ctx, s.ID, "owner1"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if _, err := f.uc.End(ctx, s.ID, "owner1"); !domain.IsDomainError(err, domain.ErrCodeConflict) {
		t.Fatalf("end paused: err = %v, want CONFLICT", err)
	}
}

func TestAdminEndAcceptsPausedAndRecordsAction(t *testing.T) {
	f := newFixture(t)
	s := f.startStream(t, "owner1")
	ctx := context.Background()

	if _, err := f.uc.Pause(ctx, s.ID, "owner1"); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	ended, err := f.uc.AdminEnd(ctx, s.ID, "mod1", "tos violation")
	if err != nil {
		t.Fatalf("AdminEnd: %v", err)
	}
	if ended.Status != domain.StreamStatusEnded {
		t.Fatalf("status = %s, want ended", ended.Status)
	}
	if len(f.mod.actions) != 1 || f.mod.actions[0].Reason != "tos violation" {
		t.Fatalf("moderation record missing: %+v", f.mod.actions)
	}
}

func TestAdminEndRequiresModeratorRole(t *testing.T) {
	f := newFixture(t)
	s := f.startStream(t, "owner1")

	_, err := f.uc.AdminEnd(context.Background(), s.ID, "plain1", "nope")
	if !domain.IsDomainError(err, domain.ErrCodeForbidden) {
		t.Fatalf("err = %v, want FORBIDDEN", err)
	}
}

func TestJoinLeaveMaintainsCountInvariant(t *testing.T) {
	f := newFixture(t)
	s := f.startStream(t, "owner1")
	ctx := context.Background()

	f.uc.Join(ctx, s.ID, "v1")
	f.uc.Join(ctx, s.ID, "v1") // idempotent
	f.uc.Join(ctx, s.ID, "v2")

	got, _ := f.uc.Get(ctx, s.ID)
	if got.CurrentViewerCount != 2 || got.CurrentViewerCount != len(got.ViewerIDs) {
		t.Fatalf("count %d / set %d, want 2/2", got.CurrentViewerCount, len(got.ViewerIDs))
	}

	f.uc.Leave(ctx, s.ID, "v1")
	f.uc.Leave(ctx, s.ID, "ghost") // absent leave is a no-op

	got, _ = f.uc.Get(ctx, s.ID)
	if got.CurrentViewerCount != 1 {
		t.Fatalf("count = %d, want 1", got.CurrentViewerCount)
	}
	if got.PeakViewerCount != 2 {
		t.Fatalf("peak = %d, want 2", got.PeakViewerCount)
	}
}

func TestJoinEndedStreamFails(t *testing.T) {
	f := newFixture(t)
	s := f.startStream(t, "owner1")
	ctx := context.Background()

	if _, err := f.uc.End(ctx, s.ID, "owner1"); err != nil {
		t.Fatalf("End: %v", err)
	}
	if _, err := f.uc.Join(ctx, s.ID, "late"); !errors.Is(err, domain.ErrStreamEnded) {
		t.Fatalf("err = %v, want ErrStreamEnded", err)
	}
}

func TestConcurrentJoinsCountExactly(t *testing.T) {
	f := newFixture(t)
	s := f.startStream(t, "owner1")
	ctx := context.Background()

	const viewers = 40
	var wg sync.WaitGroup
	wg.Add(viewers)
	for i := 0; i < viewers; i++ {
		go func(n int) {
			defer wg.Done()
			if _, err := f.uc.Join(ctx, s.ID, fmt.Sprintf("v%d", n)); err != nil {
				t.Errorf("Join v%d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := f.uc.Get(ctx, s.ID)
	if got.CurrentViewerCount != viewers {
		t.Fatalf("count = %d, want %d", got.CurrentViewerCount, viewers)
	}
	if got.PeakViewerCount != viewers {
		t.Fatalf("peak = %d, want %d", got.PeakViewerCount, viewers)
	}
}

func TestJoinBroadcastOnlyOnChange(t *testing.T) {
	f := newFixture(t)
	s := f.startStream(t, "owner1")
	ctx := context.Background()

	f.uc.Join(ctx, s.ID, "v1")
	f.uc.Join(ctx, s.ID, "v1")

	joins := f.events.byEvent(usecase.EventViewerJoined)
	if len(joins) != 1 {
		t.Fatalf("viewer-joined broadcasts = %d, want 1", len(joins))
	}
}

func TestUpdateSettingsOwnerOnly(t *testing.T) {
	f := newFixture(t)
	s := f.startStream(t, "owner1")
	ctx := context.Background()

	if _, err := f.uc.UpdateSettings(ctx, s.ID, "intruder", domain.StreamSettings{}); !domain.IsDomainError(err, domain.ErrCodeForbidden) {
		t.Fatalf("err = %v, want FORBIDDEN", err)
	}

	updated, err := f.uc.UpdateSettings(ctx, s.ID, "owner1", domain.StreamSettings{AllowComments: false, AllowGifts: true, EnablePolls: true})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if updated.Settings.AllowComments {
		t.Fatal("settings not applied")
	}
}

func TestRecordingWebhookSetsURLOnceDeduplicated(t *testing.T) {
	f := newFixture(t)
	s := f.startStream(t, "owner1")
	ctx := context.Background()

	dedup := &memDedup{seen: make(map[string]bool)}
	f.uc.dedup = dedup

	payload := &rtc.RecordingWebhook{
		Event:      rtc.RecordingEventUploaded,
		ResourceID: s.RTCResourceID,
		SessionID:  s.RTCSessionID,
		FileURL:    "https://cdn.example.com/rec.m3u8",
	}
	if err := f.uc.HandleRecordingWebhook(ctx, payload); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	// Redelivery must be dropped silently.
	if err := f.uc.HandleRecordingWebhook(ctx, payload); err != nil {
		t.Fatalf("redelivered webhook: %v", err)
	}

	got, _ := f.uc.Get(ctx, s.ID)
	if got.RecordingURL != payload.FileURL {
		t.Fatalf("recording url = %q", got.RecordingURL)
	}
	if dedup.calls != 2 {
		t.Fatalf("dedup consulted %d times, want 2", dedup.calls)
	}
}

type memCache struct {
	mu    sync.Mutex
	store map[string]domain.Stream
}

func newMemCache() *memCache { return &memCache{store: make(map[string]domain.Stream)} }

func (c *memCache) Get(_ context.Context, id string) (*domain.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.store[id]
	if !ok {
		return nil, domain.ErrStreamNotFound
	}
	copied := s
	return &copied, nil
}

func (c *memCache) Set(_ context.Context, s *domain.Stream) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[s.ID] = *s
	return nil
}

func (c *memCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, id)
	return nil
}

func (c *memCache) has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.store[id]
	return ok
}

func TestGetServesFromSnapshotCache(t *testing.T) {
	f := newFixture(t)
	cache := newMemCache()
	f.uc.cache = cache
	ctx := context.Background()

	s := f.startStream(t, "owner1")
	if !cache.has(s.ID) {
		t.Fatal("start did not seed the snapshot cache")
	}

	before := f.streams.readCount()
	got, err := f.uc.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != s.ID || got.Status != domain.StreamStatusLive {
		t.Fatalf("cached snapshot = %+v", got)
	}
	if f.streams.readCount() != before {
		t.Fatal("cache hit still queried the primary store")
	}
}

func TestEndEvictsSnapshotCache(t *testing.T) {
	f := newFixture(t)
	cache := newMemCache()
	f.uc.cache = cache
	ctx := context.Background()

	s := f.startStream(t, "owner1")
	if _, err := f.uc.End(ctx, s.ID, "owner1"); err != nil {
		t.Fatalf("End: %v", err)
	}
	if cache.has(s.ID) {
		t.Fatal("ended stream still cached")
	}

	got, err := f.uc.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get after end: %v", err)
	}
	if got.Status != domain.StreamStatusEnded {
		t.Fatalf("status = %q from the primary store, want ended", got.Status)
	}
}

func TestRecordingWebhookRetryLandsAfterFailedApply(t *testing.T) {
	f := newFixture(t)
	s := f.startStream(t, "owner1")
	ctx := context.Background()

	dedup := &memDedup{seen: make(map[string]bool)}
	f.uc.dedup = dedup

	// The session ids do not resolve yet, so the first delivery fails.
	payload := &rtc.RecordingWebhook{
		Event:      rtc.RecordingEventUploaded,
		ResourceID: "res-unknown",
		SessionID:  s.RTCSessionID,
		FileURL:    "https://cdn.example.com/rec.m3u8",
	}
	if err := f.uc.HandleRecordingWebhook(ctx, payload); err == nil {
		t.Fatal("delivery for an unresolvable session succeeded")
	}

	// The provider retries once the mapping holds. The failed attempt must
	// not have consumed the dedup key.
	f.streams.mu.Lock()
	updated := f.streams.streams[s.ID]
	updated.RTCResourceID = "res-unknown"
	f.streams.streams[s.ID] = updated
	f.streams.mu.Unlock()

	if err := f.uc.HandleRecordingWebhook(ctx, payload); err != nil {
		t.Fatalf("retried webhook: %v", err)
	}
	got, _ := f.uc.Get(ctx, s.ID)
	if got.RecordingURL != payload.FileURL {
		t.Fatalf("recording url = %q after retry, want %q", got.RecordingURL, payload.FileURL)
	}
}

type memDedup struct {
	mu    sync.Mutex
	seen  map[string]bool
	calls int
}

func (d *memDedup) MarkOnce(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *memDedup) Unmark(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}
