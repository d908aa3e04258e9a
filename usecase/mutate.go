package usecase

import (
	"context"
	"errors"

	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/pkg/keymutex"
	"github.com/featherlive/backend/repository"
)

// MutateStream serializes a read-modify-write cycle on one stream aggregate.
// All event processors lock the same key for a given stream id, so two
// concurrent joins, a chat post racing an end transition, or an HTTP call
// racing a socket event can never interleave on the same session.
//
// Lost version races against an external writer are retried a bounded number
// of times before the conflict surfaces as transient. after runs post-commit
// while the lock is still held; broadcasts emitted there keep per-stream
// commit order.
func MutateStream(
	ctx context.Context,
	locks *keymutex.KeyMutex,
	streams repository.StreamRepository,
	streamID string,
	retries int,
	apply func(*domain.Stream) error,
	after func(*domain.Stream),
) (*domain.Stream, error) {
	if streamID == "" {
		return nil, domain.ErrStreamNotFound
	}
	if retries <= 0 {
		retries = 3
	}

	var result *domain.Stream
	err := locks.WithLock("stream:"+streamID, func() error {
		var lastErr error
		for attempt := 0; attempt <= retries; attempt++ {
			stream, err := streams.GetByID(ctx, streamID)
			if err != nil {
				return err
			}
			if err := apply(stream); err != nil {
				return err
			}
			if err := streams.Update(ctx, stream); err != nil {
				if errors.Is(err, domain.ErrVersionConflict) {
					lastErr = err
					continue
				}
				return err
			}
			result = stream
			if after != nil {
				after(stream)
			}
			return nil
		}
		return lastErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
