package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/featherlive/backend/domain"
)

// AnalyticsDelta is an incremental adjustment applied to a stream's satellite
// counters as events occur.
type AnalyticsDelta struct {
	Chats   int64
	Gifts   int64
	Likes   int64
	Viewers int
	Revenue decimal.Decimal
}

// AnalyticsRepository accumulates per-stream counters. Increments are applied
// atomically at the row level; the aggregate is eventually consistent with
// the stream document.
type AnalyticsRepository interface {
	Get(ctx context.Context, streamID string) (*domain.StreamAnalytics, error)
	Increment(ctx context.Context, streamID string, delta AnalyticsDelta) error
	// Finalize snapshots duration and peak viewers at the end transition.
	// A second finalize for the same stream returns domain.ErrVersionConflict.
	Finalize(ctx context.Context, streamID string, durationSecs int64, peakViewers int) error
}
