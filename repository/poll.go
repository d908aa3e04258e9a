package repository

import (
	"context"
	"time"

	"github.com/featherlive/backend/domain"
)

// PollRepository persists stream-scoped polls. Update is version-checked the
// same way as StreamRepository.Update.
type PollRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Poll, error)
	GetActiveByStream(ctx context.Context, streamID string) (*domain.Poll, error)
	ListExpiredActive(ctx context.Context, asOf time.Time) ([]domain.Poll, error)
	Create(ctx context.Context, poll *domain.Poll) error
	Update(ctx context.Context, poll *domain.Poll) error
}
