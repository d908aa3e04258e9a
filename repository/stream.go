package repository

import (
	"context"

	"github.com/featherlive/backend/domain"
)

type StreamFilter struct {
	OwnerID string
	Status  domain.StreamStatus
	Limit   int
	Offset  int
}

// StreamRepository persists the stream aggregate. Update applies optimistic
// concurrency: it matches on the stream's current Version, bumps it on
// success, and returns domain.ErrVersionConflict on a lost race.
type StreamRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Stream, error)
	GetByRTCSession(ctx context.Context, resourceID, sessionID string) (*domain.Stream, error)
	List(ctx context.Context, filter StreamFilter) ([]domain.Stream, error)
	CountActiveByOwner(ctx context.Context, ownerID string) (int, error)
	Create(ctx context.Context, stream *domain.Stream) error
	Update(ctx context.Context, stream *domain.Stream) error
}

// ModerationRepository records administrative actions against streams.
type ModerationRepository interface {
	Record(ctx context.Context, action *domain.ModerationAction) error
}
