package usecase

import (
	"context"

	"github.com/featherlive/backend/domain"
)

// StreamSnapshotCache serves read-heavy stream lookups and is refreshed after
// each committed mutation. Cache failures are logged and never fail the
// operation; a miss or error falls through to the primary store.
type StreamSnapshotCache interface {
	Get(ctx context.Context, id string) (*domain.Stream, error)
	Set(ctx context.Context, stream *domain.Stream) error
	Delete(ctx context.Context, id string) error
}

// Deduper marks a key as processed exactly once, atomically. Used to make
// webhook redelivery idempotent.
type Deduper interface {
	MarkOnce(ctx context.Context, key string) (bool, error)
	// Unmark releases a key whose processing failed after the mark, so the
	// sender's retry is not swallowed as a duplicate.
	Unmark(ctx context.Context, key string) error
}
