package poll

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/pkg/keymutex"
	"github.com/featherlive/backend/repository"
	"github.com/featherlive/backend/usecase"
)

const (
	minOptions  = 2
	maxOptions  = 10
	minDuration = 30 * time.Second
	maxDuration = time.Hour
)

// ExpiryScheduler registers a durable callback firing at the poll's end time.
// Registration failure is tolerated: the lazy expiry check on read covers the
// poll regardless.
type ExpiryScheduler interface {
	SchedulePollExpiry(pollID string, at time.Time) error
}

// CreateParams describes a new poll.
type CreateParams struct {
	StreamID           string
	CreatorID          string
	Question           string
	Options            []string
	Duration           time.Duration
	AllowMultipleVotes bool
}

// UseCase manages stream-scoped polls. Every mutation of a given poll is
// serialized on its key, and results are broadcast in commit order.
type UseCase struct {
	streams     repository.StreamRepository
	polls       repository.PollRepository
	broadcaster usecase.Broadcaster
	scheduler   ExpiryScheduler
	locks       *keymutex.KeyMutex
	logger      *zap.Logger
	retries     int
	now         func() time.Time
}

func New(
	streams repository.StreamRepository,
	polls repository.PollRepository,
	broadcaster usecase.Broadcaster,
	scheduler ExpiryScheduler,
	locks *keymutex.KeyMutex,
	logger *zap.Logger,
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
	return &UseCase{
		streams:     streams,
		polls:       polls,
		broadcaster: broadcaster,
		scheduler:   scheduler,
		locks:       locks,
		logger:      logger,
		retries:     3,
		now:         time.Now,
	}
}

// Create validates and opens a poll. The one-active-poll-per-stream rule is
// checked under the stream lock so two concurrent creates cannot both pass.
func (uc *UseCase) Create(ctx context.Context, params CreateParams) (*domain.Poll, error) {
	question := strings.TrimSpace(params.Question)
	if question == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "question is required")
	}
	options := make([]domain.PollOption, 0, len(params.Options))
	for _, text := range params.Options {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, domain.NewError(domain.ErrCodeInvalid, "poll options cannot be blank")
		}
		options = append(options, domain.PollOption{Text: text})
	}
	if len(options) < minOptions || len(options) > maxOptions {
		return nil, domain.NewError(domain.ErrCodeInvalid, "polls take between 2 and 10 options")
	}
	if params.Duration < minDuration || params.Duration > maxDuration {
		return nil, domain.NewError(domain.ErrCodeInvalid, "poll duration must be between 30s and 1h")
	}

	var poll *domain.Poll
	err := uc.locks.WithLock("stream:"+params.StreamID, func() error {
		stream, err := uc.streams.GetByID(ctx, params.StreamID)
		if err != nil {
			return err
		}
		if stream.Status != domain.StreamStatusLive {
			return domain.ErrStreamNotLive
		}
		if !stream.Settings.EnablePolls {
			return domain.ErrPollsDisabled
		}
		if stream.OwnerID != params.CreatorID {
			return domain.ErrUnauthorized
		}

		active, err := uc.polls.GetActiveByStream(ctx, params.StreamID)
		if err != nil && !errors.Is(err, domain.ErrPollNotFound) {
			return err
		}
		if active != nil {
			if !active.Expired(uc.now()) {
				return domain.ErrActivePollExists
			}
			// Stale active poll whose timer never fired. Close it now.
			if _, err := uc.expireLocked(ctx, active.ID); err != nil {
				return err
			}
		}

		now := uc.now()
		poll = &domain.Poll{
			ID:                 uuid.NewString(),
			StreamID:           params.StreamID,
			CreatorID:          params.CreatorID,
			Question:           question,
			Options:            options,
			AllowMultipleVotes: params.AllowMultipleVotes,
			IsActive:           true,
			StartTime:          now,
			EndTime:            now.Add(params.Duration),
			CreatedAt:          now,
		}
		if err := uc.polls.Create(ctx, poll); err != nil {
			return err
		}
		uc.broadcaster.ToStream(params.StreamID, usecase.EventPollCreated, poll)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.scheduler != nil {
		if err := uc.scheduler.SchedulePollExpiry(poll.ID, poll.EndTime); err != nil {
			uc.logger.Warn("poll expiry scheduling failed, relying on lazy expiry",
				zap.String("poll_id", poll.ID), zap.Error(err))
		}
	}
	return poll, nil
}

// Vote records userID's choice. An expired poll is finalized on the spot
// before the vote is rejected, so the window is enforced even if the timer
// callback was lost.
func (uc *UseCase) Vote(ctx context.Context, pollID, userID string, optionIndex int) (*domain.Poll, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	return uc.mutate(ctx, pollID,
		func(p *domain.Poll) error {
			if !p.IsActive {
				return domain.ErrPollInactive
			}
			if p.Expired(uc.now()) {
				p.IsActive = false
				return errPollJustExpired
			}
			return p.CastVote(userID, optionIndex)
		},
		func(p *domain.Poll) {
			uc.broadcaster.ToStream(p.StreamID, usecase.EventPollUpdated, tally(p))
		})
}

// End closes the poll on behalf of its creator. Ending an already-ended poll
// is a no-op returning the final state.
func (uc *UseCase) End(ctx context.Context, pollID, requesterID string) (*domain.Poll, error) {
	current, err := uc.polls.GetByID(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if current.CreatorID != requesterID {
		return nil, domain.ErrUnauthorized
	}
	return uc.finalize(ctx, pollID)
}

// Expire is the scheduler entry point: it closes the poll unconditionally and
// broadcasts final results. Safe to call for a poll already ended.
func (uc *UseCase) Expire(ctx context.Context, pollID string) error {
	_, err := uc.finalize(ctx, pollID)
	return err
}

// Active returns the stream's active poll with lazy expiry applied.
func (uc *UseCase) Active(ctx context.Context, streamID string) (*domain.Poll, error) {
	poll, err := uc.polls.GetActiveByStream(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if poll.Expired(uc.now()) {
		return uc.finalize(ctx, poll.ID)
	}
	return poll, nil
}

func (uc *UseCase) finalize(ctx context.Context, pollID string) (*domain.Poll, error) {
	var poll *domain.Poll
	err := uc.locks.WithLock("poll:"+pollID, func() error {
		var err error
		poll, err = uc.expireLocked(ctx, pollID)
		return err
	})
	return poll, err
}

// expireLocked flips IsActive off and broadcasts final results. Callers hold
// either the poll lock or the owning stream's lock.
func (uc *UseCase) expireLocked(ctx context.Context, pollID string) (*domain.Poll, error) {
	for attempt := 0; ; attempt++ {
		poll, err := uc.polls.GetByID(ctx, pollID)
		if err != nil {
			return nil, err
		}
		if !poll.IsActive {
			return poll, nil
		}
		poll.IsActive = false
		if err := uc.polls.Update(ctx, poll); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) && attempt < uc.retries {
				continue
			}
			return nil, err
		}
		uc.broadcaster.ToStream(poll.StreamID, usecase.EventPollEnded, tally(poll))
		return poll, nil
	}
}

// errPollJustExpired signals that apply closed the poll: the update must still
// commit before the caller sees ErrPollInactive.
var errPollJustExpired = errors.New("poll expired during vote")

func (uc *UseCase) mutate(ctx context.Context, pollID string, apply func(*domain.Poll) error, after func(*domain.Poll)) (*domain.Poll, error) {
	var result *domain.Poll
	err := uc.locks.WithLock("poll:"+pollID, func() error {
		for attempt := 0; ; attempt++ {
			poll, err := uc.polls.GetByID(ctx, pollID)
			if err != nil {
				return err
			}
			applyErr := apply(poll)
			if applyErr != nil && !errors.Is(applyErr, errPollJustExpired) {
				return applyErr
			}
			if err := uc.polls.Update(ctx, poll); err != nil {
				if errors.Is(err, domain.ErrVersionConflict) && attempt < uc.retries {
					continue
				}
				return err
			}
			if errors.Is(applyErr, errPollJustExpired) {
				uc.broadcaster.ToStream(poll.StreamID, usecase.EventPollEnded, tally(poll))
				return domain.ErrPollInactive
			}
			result = poll
			if after != nil {
				after(poll)
			}
			return nil
		}
	})
	return result, err
}

// tally is the broadcast view of a poll: counts without voter identities.
func tally(p *domain.Poll) map[string]interface{} {
	options := make([]map[string]interface{}, len(p.Options))
	for i, opt := range p.Options {
		options[i] = map[string]interface{}{
			"text":  opt.Text,
			"votes": opt.Votes,
		}
	}
	return map[string]interface{}{
		"poll_id":     p.ID,
		"stream_id":   p.StreamID,
		"question":    p.Question,
		"options":     options,
		"total_votes": p.TotalVotes,
		"is_active":   p.IsActive,
		"end_time":    p.EndTime,
	}
}
