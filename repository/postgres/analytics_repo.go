package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/repository"
)

type analyticsRepository struct {
	pool *pgxpool.Pool
}

// NewAnalyticsRepository returns a Postgres-backed implementation of AnalyticsRepository.
func NewAnalyticsRepository(pool *pgxpool.Pool) repository.AnalyticsRepository {
	return &analyticsRepository{pool: pool}
}

func (r *analyticsRepository) Get(ctx context.Context, streamID string) (*domain.StreamAnalytics, error) {
	const query = `
	SELECT stream_id, total_viewers, peak_viewers, chat_count, gift_count, like_count,
		revenue, duration_secs, finalized_at, updated_at
	FROM stream_analytics
	WHERE stream_id = $1`

	var a domain.StreamAnalytics
	if err := r.pool.QueryRow(ctx, query, streamID).Scan(
		&a.StreamID, &a.TotalViewers, &a.PeakViewers, &a.ChatCount, &a.GiftCount, &a.LikeCount,
		&a.Revenue, &a.DurationSecs, &a.FinalizedAt, &a.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStreamNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Increment applies the delta as a single row-level upsert so concurrent
// event processors never lose an update.
func (r *analyticsRepository) Increment(ctx context.Context, streamID string, delta repository.AnalyticsDelta) error {
	const query = `
	INSERT INTO stream_analytics (stream_id, total_viewers, chat_count, gift_count, like_count, revenue)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (stream_id) DO UPDATE
	SET total_viewers = stream_analytics.total_viewers + EXCLUDED.total_viewers,
		chat_count = stream_analytics.chat_count + EXCLUDED.chat_count,
		gift_count = stream_analytics.gift_count + EXCLUDED.gift_count,
		like_count = stream_analytics.like_count + EXCLUDED.like_count,
		revenue = stream_analytics.revenue + EXCLUDED.revenue,
		updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query,
		streamID, delta.Viewers, delta.Chats, delta.Gifts, delta.Likes, delta.Revenue)
	return err
}

// Finalize takes the end-of-stream snapshot exactly once. A second call for
// the same stream is a conflict, preventing double-counted durations.
func (r *analyticsRepository) Finalize(ctx context.Context, streamID string, durationSecs int64, peakViewers int) error {
	const query = `
	INSERT INTO stream_analytics (stream_id, duration_secs, peak_viewers, finalized_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (stream_id) DO UPDATE
	SET duration_secs = EXCLUDED.duration_secs,
		peak_viewers = EXCLUDED.peak_viewers,
		finalized_at = NOW(),
		updated_at = NOW()
	WHERE stream_analytics.finalized_at IS NULL`

	tag, err := r.pool.Exec(ctx, query, streamID, durationSecs, peakViewers)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}
