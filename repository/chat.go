package repository

import (
	"context"

	"github.com/featherlive/backend/domain"
)

type ChatRepository interface {
	Create(ctx context.Context, message *domain.ChatMessage) error
	ListByStream(ctx context.Context, streamID string, limit int) ([]domain.ChatMessage, error)
}
