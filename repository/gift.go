package repository

import (
	"context"

	"github.com/featherlive/backend/domain"
)

// GiftRepository exposes the gift catalog and transaction history.
type GiftRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Gift, error)
	ListCatalog(ctx context.Context) ([]domain.Gift, error)
	ListByStream(ctx context.Context, streamID string, limit int) ([]domain.GiftTransaction, error)
}
