package stream

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/internal/rtc"
	"github.com/featherlive/backend/pkg/keymutex"
	"github.com/featherlive/backend/repository"
	"github.com/featherlive/backend/usecase"
)

// Config carries platform policy for the session core.
type Config struct {
	// SingleActiveSession rejects a start while the owner already runs an
	// active session.
	SingleActiveSession bool
	// UpdateRetries bounds how often a lost version race is retried before a
	// transient conflict is surfaced.
	UpdateRetries int
}

// UseCase drives the stream state machine and viewer presence. All mutating
// paths serialize per stream id and apply optimistic concurrency underneath.
type UseCase struct {
	streams     repository.StreamRepository
	moderation  repository.ModerationRepository
	analytics   repository.AnalyticsRepository
	wallets     repository.WalletRepository
	users       repository.UserRepository
	provider    rtc.Provider
	cache       usecase.StreamSnapshotCache
	dedup       usecase.Deduper
	broadcaster usecase.Broadcaster
	locks       *keymutex.KeyMutex
	logger      *zap.Logger
	cfg         Config
}

func New(
	streams repository.StreamRepository,
	moderation repository.ModerationRepository,
	analytics repository.AnalyticsRepository,
	wallets repository.WalletRepository,
	users repository.UserRepository,
	provider rtc.Provider,
	cache usecase.StreamSnapshotCache,
	dedup usecase.Deduper,
	broadcaster usecase.Broadcaster,
	locks *keymutex.KeyMutex,
	logger *zap.Logger,
	cfg Config,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if broadcaster == nil {
		broadcaster = usecase.NopBroadcaster{}
	}
	if locks == nil {
		locks = keymutex.New()
	}
	if cfg.UpdateRetries <= 0 {
		cfg.UpdateRetries = 3
	}
	return &UseCase{
		streams:     streams,
		moderation:  moderation,
		analytics:   analytics,
		wallets:     wallets,
		users:       users,
		provider:    provider,
		cache:       cache,
		dedup:       dedup,
		broadcaster: broadcaster,
		locks:       locks,
		logger:      logger,
		cfg:         cfg,
	}
}

// StartParams is the metadata supplied with a start action.
type StartParams struct {
	Title         string
	Category      string
	Visibility    string
	ContentRating string
	Settings      domain.StreamSettings
}

// StartResult pairs the persisted stream with the credential the client needs
// to publish into the RTC channel.
type StartResult struct {
	Stream     *domain.Stream  `json:"stream"`
	Credential *rtc.Credential `json:"credential"`
}

// Start begins a session. The stream goes live immediately; there is no
// separate create-then-start step. The RTC credential is issued before
// anything persists, so a provider failure leaves no orphan live record.
func (uc *UseCase) Start(ctx context.Context, ownerID string, params StartParams) (*StartResult, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	if params.Title == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "stream title is required")
	}

	if uc.cfg.SingleActiveSession {
		active, err := uc.streams.CountActiveByOwner(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		if active > 0 {
			return nil, domain.NewError(domain.ErrCodeConflict, "owner already has an active session")
		}
	}

	streamID := uuid.NewString()
	cred, err := uc.provider.IssueCredential(ctx, streamID, ownerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	stream := &domain.Stream{
		ID:            streamID,
		OwnerID:       ownerID,
		Title:         params.Title,
		Category:      params.Category,
		Visibility:    defaultString(params.Visibility, "public"),
		ContentRating: defaultString(params.ContentRating, "general"),
		Status:        domain.StreamStatusLive,
		Settings:      params.Settings,
		Controls:      domain.StreamControls{CameraEnabled: true, MicEnabled: true},
		RTCChannel:    cred.Channel,
		RTCResourceID: cred.ResourceID,
		RTCSessionID:  cred.SessionID,
		StartedAt:     &now,
	}

	if err := uc.streams.Create(ctx, stream); err != nil {
		return nil, err
	}

	// Lazy wallet provisioning so the owner can receive gifts immediately.
	if _, err := uc.wallets.GetOrCreate(ctx, ownerID); err != nil {
		uc.logger.Warn("wallet provisioning failed", zap.String("owner_id", ownerID), zap.Error(err))
	}

	uc.refreshCache(ctx, stream)
	uc.logger.Info("stream started",
		zap.String("stream_id", stream.ID), zap.String("owner_id", ownerID))

	return &StartResult{Stream: stream, Credential: cred}, nil
}

// Get returns the current stream aggregate, served from the snapshot cache
// when it holds the stream and from the primary store otherwise.
func (uc *UseCase) Get(ctx context.Context, streamID string) (*domain.Stream, error) {
	if uc.cache != nil {
		if cached, err := uc.cache.Get(ctx, streamID); err == nil {
			return cached, nil
		}
	}
	stream, err := uc.streams.GetByID(ctx, streamID)
	if err != nil {
		return nil, err
	}
	uc.refreshCache(ctx, stream)
	return stream, nil
}

// List returns streams matching the filter.
func (uc *UseCase) List(ctx context.Context, filter repository.StreamFilter) ([]domain.Stream, error) {
	return uc.streams.List(ctx, filter)
}

// Pause moves a live stream to paused. Any other source state is a conflict,
// not a silent no-op.
func (uc *UseCase) Pause(ctx context.Context, streamID, callerID string) (*domain.Stream, error) {
	return uc.mutate(ctx, streamID, func(s *domain.Stream) error {
		if s.OwnerID != callerID {
			return domain.NewError(domain.ErrCodeForbidden, "only the owner may pause the stream")
		}
		if !s.CanTransition(domain.StreamStatusPaused) {
			return domain.NewError(domain.ErrCodeConflict, "stream can only be paused while live")
		}
		s.Status = domain.StreamStatusPaused
		return nil
	}, usecase.EventStreamPaused, func(s *domain.Stream) interface{} {
		return map[string]interface{}{"stream_id": s.ID, "status": s.Status}
	})
}

// Resume moves a paused stream back to live.
func (uc *UseCase) Resume(ctx context.Context, streamID, callerID string) (*domain.Stream, error) {
	return uc.mutate(ctx, streamID, func(s *domain.Stream) error {
		if s.OwnerID != callerID {
			return domain.NewError(domain.ErrCodeForbidden, "only the owner may resume the stream")
		}
		if s.Status != domain.StreamStatusPaused {
			return domain.NewError(domain.ErrCodeConflict, "stream can only be resumed while paused")
		}
		s.Status = domain.StreamStatusLive
		return nil
	}, usecase.EventStreamResumed, func(s *domain.Stream) interface{} {
		return map[string]interface{}{"stream_id": s.ID, "status": s.Status}
	})
}

// End terminates a live stream. Duration is computed exactly once; a second
// end call fails with a conflict rather than silently succeeding, preventing
// double-counted durations and double analytics snapshots.
func (uc *UseCase) End(ctx context.Context, streamID, callerID string) (*domain.Stream, error) {
	return uc.endStream(ctx, streamID, func(s *domain.Stream) error {
		if s.OwnerID != callerID {
			return domain.NewError(domain.ErrCodeForbidden, "only the owner may end the stream")
		}
		if s.Status == domain.StreamStatusEnded {
			return domain.ErrStreamEnded
		}
		if !s.CanTransition(domain.StreamStatusEnded) {
			return domain.NewError(domain.ErrCodeConflict, "stream can only be ended while live")
		}
		return nil
	})
}

// AdminEnd lets a moderator end any owner's session from live or paused and
// records the intervention as a moderation action composed with the end.
func (uc *UseCase) AdminEnd(ctx context.Context, streamID, moderatorID, reason string) (*domain.Stream, error) {
	if uc.users != nil {
		moderator, err := uc.users.GetByID(ctx, moderatorID)
		if err != nil {
			return nil, err
		}
		if !moderator.IsModerator() {
			return nil, domain.NewError(domain.ErrCodeForbidden, "moderator role required")
		}
	}

	stream, err := uc.endStream(ctx, streamID, func(s *domain.Stream) error {
		if s.Status == domain.StreamStatusEnded {
			return domain.ErrStreamEnded
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	action := &domain.ModerationAction{
		StreamID:    stream.ID,
		TargetID:    stream.OwnerID,
		ModeratorID: moderatorID,
		Action:      "stream_terminated",
		Reason:      reason,
	}
	if err := uc.moderation.Record(ctx, action); err != nil {
		// The end already committed; the warning record is best-effort.
		uc.logger.Error("moderation record failed",
			zap.String("stream_id", stream.ID), zap.Error(err))
	}
	return stream, nil
}

func (uc *UseCase) endStream(ctx context.Context, streamID string, guard func(*domain.Stream) error) (*domain.Stream, error) {
	stream, err := uc.mutate(ctx, streamID, func(s *domain.Stream) error {
		if err := guard(s); err != nil {
			return err
		}
		s.End(time.Now())
		return nil
	}, usecase.EventStreamEnded, func(s *domain.Stream) interface{} {
		return map[string]interface{}{
			"stream_id":    s.ID,
			"duration":     s.Duration,
			"peak_viewers": s.PeakViewerCount,
		}
	})
	if err != nil {
		return nil, err
	}

	if err := uc.analytics.Finalize(ctx, stream.ID, stream.Duration, stream.PeakViewerCount); err != nil {
		uc.logger.Error("analytics finalize failed",
			zap.String("stream_id", stream.ID), zap.Error(err))
	}
	return stream, nil
}

// Join adds a viewer to the stream. Idempotent: re-joining does not raise the
// count. Joining an ended stream is an error.
func (uc *UseCase) Join(ctx context.Context, streamID, userID string) (*domain.Stream, error) {
	var changed bool
	stream, err := uc.mutate(ctx, streamID, func(s *domain.Stream) error {
		if s.Status == domain.StreamStatusEnded {
			return domain.ErrStreamEnded
		}
		changed = s.AddViewer(userID)
		return nil
	}, usecase.EventViewerJoined, func(s *domain.Stream) interface{} {
		if !changed {
			return nil
		}
		return map[string]interface{}{
			"stream_id":    s.ID,
			"user_id":      userID,
			"viewer_count": s.CurrentViewerCount,
		}
	})
	if err != nil {
		return nil, err
	}

	if changed {
		if err := uc.analytics.Increment(ctx, streamID, repository.AnalyticsDelta{Viewers: 1}); err != nil {
			uc.logger.Warn("viewer analytics increment failed",
				zap.String("stream_id", streamID), zap.Error(err))
		}
	}
	return stream, nil
}

// Leave removes a viewer. Removing an absent viewer is a no-op, not an error.
func (uc *UseCase) Leave(ctx context.Context, streamID, userID string) (*domain.Stream, error) {
	var changed bool
	return uc.mutate(ctx, streamID, func(s *domain.Stream) error {
		changed = s.RemoveViewer(userID)
		return nil
	}, usecase.EventViewerLeft, func(s *domain.Stream) interface{} {
		if !changed {
			return nil
		}
		return map[string]interface{}{
			"stream_id":    s.ID,
			"user_id":      userID,
			"viewer_count": s.CurrentViewerCount,
		}
	})
}

// Like bumps the like counter.
func (uc *UseCase) Like(ctx context.Context, streamID, userID string) (*domain.Stream, error) {
	stream, err := uc.mutate(ctx, streamID, func(s *domain.Stream) error {
		if !s.IsActive() {
			return domain.ErrStreamNotLive
		}
		s.LikeCount++
		return nil
	}, usecase.EventLiked, func(s *domain.Stream) interface{} {
		return map[string]interface{}{
			"stream_id":  s.ID,
			"user_id":    userID,
			"like_count": s.LikeCount,
		}
	})
	if err != nil {
		return nil, err
	}

	if err := uc.analytics.Increment(ctx, streamID, repository.AnalyticsDelta{Likes: 1}); err != nil {
		uc.logger.Warn("like analytics increment failed",
			zap.String("stream_id", streamID), zap.Error(err))
	}
	return stream, nil
}

// UpdateSettings toggles the feature flags checked by event processors.
func (uc *UseCase) UpdateSettings(ctx context.Context, streamID, callerID string, settings domain.StreamSettings) (*domain.Stream, error) {
	return uc.mutate(ctx, streamID, func(s *domain.Stream) error {
		if s.OwnerID != callerID {
			return domain.NewError(domain.ErrCodeForbidden, "only the owner may change settings")
		}
		if s.Status == domain.StreamStatusEnded {
			return domain.ErrStreamEnded
		}
		s.Settings = settings
		return nil
	}, usecase.EventSettingsUpdated, func(s *domain.Stream) interface{} {
		return map[string]interface{}{"stream_id": s.ID, "settings": s.Settings}
	})
}

// UpdateControls mirrors the broadcaster's camera/mic state to viewers.
func (uc *UseCase) UpdateControls(ctx context.Context, streamID, callerID string, controls domain.StreamControls) (*domain.Stream, error) {
	return uc.mutate(ctx, streamID, func(s *domain.Stream) error {
		if s.OwnerID != callerID {
			return domain.NewError(domain.ErrCodeForbidden, "only the owner may change controls")
		}
		if s.Status == domain.StreamStatusEnded {
			return domain.ErrStreamEnded
		}
		s.Controls = controls
		return nil
	}, usecase.EventControlsUpdated, func(s *domain.Stream) interface{} {
		return map[string]interface{}{"stream_id": s.ID, "controls": s.Controls}
	})
}

// HandleRecordingWebhook applies an inbound recording callback. Redelivered
// webhooks are deduplicated by the provider-supplied resource+session pair.
func (uc *UseCase) HandleRecordingWebhook(ctx context.Context, payload *rtc.RecordingWebhook) error {
	if err := payload.Validate(); err != nil {
		return err
	}

	key := payload.DedupKey()
	if uc.dedup != nil {
		fresh, err := uc.dedup.MarkOnce(ctx, key)
		if err != nil {
			uc.logger.Warn("webhook dedup check failed", zap.Error(err))
		} else if !fresh {
			uc.logger.Info("duplicate recording webhook dropped",
				zap.String("resource_id", payload.ResourceID),
				zap.String("session_id", payload.SessionID))
			return nil
		}
	}

	if err := uc.applyRecordingWebhook(ctx, payload); err != nil {
		// A failed apply must not leave the key marked, or the provider's
		// retry would be acknowledged without the recording ever landing.
		if uc.dedup != nil {
			if unmarkErr := uc.dedup.Unmark(ctx, key); unmarkErr != nil {
				uc.logger.Error("webhook dedup release failed, redelivery will be dropped",
					zap.String("resource_id", payload.ResourceID),
					zap.String("session_id", payload.SessionID),
					zap.Error(unmarkErr))
			}
		}
		return err
	}
	return nil
}

func (uc *UseCase) applyRecordingWebhook(ctx context.Context, payload *rtc.RecordingWebhook) error {
	stream, err := uc.streams.GetByRTCSession(ctx, payload.ResourceID, payload.SessionID)
	if err != nil {
		return err
	}

	if payload.Event != rtc.RecordingEventUploaded || payload.FileURL == "" {
		return nil
	}

	_, err = uc.mutate(ctx, stream.ID, func(s *domain.Stream) error {
		s.RecordingURL = payload.FileURL
		return nil
	}, "", nil)
	return err
}

// mutate wraps usecase.MutateStream, refreshing the snapshot cache and
// emitting the broadcast in-line after the commit while the lock is still
// held so per-stream event order matches commit order.
func (uc *UseCase) mutate(
	ctx context.Context,
	streamID string,
	apply func(*domain.Stream) error,
	event string,
	payload func(*domain.Stream) interface{},
) (*domain.Stream, error) {
	return usecase.MutateStream(ctx, uc.locks, uc.streams, streamID, uc.cfg.UpdateRetries,
		apply,
		func(stream *domain.Stream) {
			uc.refreshCache(ctx, stream)
			if event != "" && payload != nil {
				if data := payload(stream); data != nil {
					uc.broadcaster.ToStream(stream.ID, event, data)
				}
			}
		})
}

func (uc *UseCase) refreshCache(ctx context.Context, stream *domain.Stream) {
	if uc.cache == nil {
		return
	}
	// Ended streams are evicted rather than refreshed: they stop being
	// read-heavy the moment they end.
	if stream.Status == domain.StreamStatusEnded {
		if err := uc.cache.Delete(ctx, stream.ID); err != nil {
			uc.logger.Debug("stream cache eviction failed",
				zap.String("stream_id", stream.ID), zap.Error(err))
		}
		return
	}
	if err := uc.cache.Set(ctx, stream); err != nil {
		uc.logger.Debug("stream cache refresh failed",
			zap.String("stream_id", stream.ID), zap.Error(err))
	}
}

func defaultString(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}
