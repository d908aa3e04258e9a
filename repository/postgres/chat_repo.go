package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/repository"
)

type chatRepository struct {
	pool *pgxpool.Pool
}

// NewChatRepository returns a Postgres-backed implementation of ChatRepository.
func NewChatRepository(pool *pgxpool.Pool) repository.ChatRepository {
	return &chatRepository{pool: pool}
}

func (r *chatRepository) Create(ctx context.Context, message *domain.ChatMessage) error {
	if message == nil {
		return domain.ErrInvalidPayload
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO chat_messages (id, stream_id, sender_id, content, type)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		message.ID,
		message.StreamID,
		message.SenderID,
		message.Content,
		message.Type,
	).Scan(&message.CreatedAt)
}

func (r *chatRepository) ListByStream(ctx context.Context, streamID string, limit int) ([]domain.ChatMessage, error) {
	const query = `
	SELECT id, stream_id, sender_id, content, type, created_at
	FROM chat_messages
	WHERE stream_id = $1
	ORDER BY created_at DESC
	LIMIT $2`

	rows, err := r.pool.Query(ctx, query, streamID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.StreamID, &m.SenderID, &m.Content, &m.Type, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
