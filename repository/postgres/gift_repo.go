package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/repository"
)

type giftRepository struct {
	pool *pgxpool.Pool
}

// NewGiftRepository returns a Postgres-backed implementation of GiftRepository.
func NewGiftRepository(pool *pgxpool.Pool) repository.GiftRepository {
	return &giftRepository{pool: pool}
}

func (r *giftRepository) GetByID(ctx context.Context, id string) (*domain.Gift, error) {
	const query = `SELECT id, name, price, animation, active, created_at FROM gifts WHERE id = $1`

	var gift domain.Gift
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&gift.ID, &gift.Name, &gift.Price, &gift.Animation, &gift.Active, &gift.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGiftNotFound
		}
		return nil, err
	}
	return &gift, nil
}

func (r *giftRepository) ListCatalog(ctx context.Context) ([]domain.Gift, error) {
	const query = `SELECT id, name, price, animation, active, created_at FROM gifts WHERE active = TRUE ORDER BY price`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gifts []domain.Gift
	for rows.Next() {
		var gift domain.Gift
		if err := rows.Scan(&gift.ID, &gift.Name, &gift.Price, &gift.Animation, &gift.Active, &gift.CreatedAt); err != nil {
			return nil, err
		}
		gifts = append(gifts, gift)
	}
	return gifts, rows.Err()
}

func (r *giftRepository) ListByStream(ctx context.Context, streamID string, limit int) ([]domain.GiftTransaction, error) {
	const query = `
	SELECT id, correlation_id, stream_id, gift_id, sender_id, receiver_id,
		quantity, total_amount, commission, message, is_anonymous, created_at
	FROM gift_transactions
	WHERE stream_id = $1
	ORDER BY created_at DESC
	LIMIT $2`

	rows, err := r.pool.Query(ctx, query, streamID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.GiftTransaction
	for rows.Next() {
		var t domain.GiftTransaction
		if err := rows.Scan(
			&t.ID, &t.CorrelationID, &t.StreamID, &t.GiftID, &t.SenderID, &t.ReceiverID,
			&t.Quantity, &t.TotalAmount, &t.Commission, &t.Message, &t.IsAnonymous, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
