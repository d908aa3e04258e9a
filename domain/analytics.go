package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StreamAnalytics is the satellite aggregate accumulating per-stream counters.
// It is updated incrementally as events occur and is eventually consistent
// with the stream's own counters, not transactionally identical.
type StreamAnalytics struct {
	StreamID      string          `json:"stream_id"`
	TotalViewers  int             `json:"total_viewers"`
	PeakViewers   int             `json:"peak_viewers"`
	ChatCount     int64           `json:"chat_count"`
	GiftCount     int64           `json:"gift_count"`
	LikeCount     int64           `json:"like_count"`
	Revenue       decimal.Decimal `json:"revenue"`
	DurationSecs  int64           `json:"duration_secs"`
	FinalizedAt   *time.Time      `json:"finalized_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Finalized reports whether the end-of-stream snapshot has been taken.
func (a *StreamAnalytics) Finalized() bool {
	return a != nil && a.FinalizedAt != nil
}
