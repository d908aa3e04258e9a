package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/repository"
)

const streamColumns = `
	id, owner_id, title, category, visibility, content_rating, status,
	allow_comments, allow_gifts, enable_polls, camera_enabled, mic_enabled,
	viewer_ids, current_viewer_count, peak_viewer_count,
	like_count, chat_count, gift_count,
	rtc_channel, rtc_resource_id, rtc_session_id, recording_url,
	started_at, ended_at, duration, version, created_at, updated_at`

type streamRepository struct {
	pool *pgxpool.Pool
}

// NewStreamRepository returns a Postgres-backed implementation of StreamRepository.
func NewStreamRepository(pool *pgxpool.Pool) repository.StreamRepository {
	return &streamRepository{pool: pool}
}

func (r *streamRepository) GetByID(ctx context.Context, id string) (*domain.Stream, error) {
	query := `SELECT ` + streamColumns + ` FROM streams WHERE id = $1`
	return scanStream(r.pool.QueryRow(ctx, query, id))
}

func (r *streamRepository) GetByRTCSession(ctx context.Context, resourceID, sessionID string) (*domain.Stream, error) {
	query := `SELECT ` + streamColumns + ` FROM streams WHERE rtc_resource_id = $1 AND rtc_session_id = $2`
	return scanStream(r.pool.QueryRow(ctx, query, resourceID, sessionID))
}

func (r *streamRepository) List(ctx context.Context, filter repository.StreamFilter) ([]domain.Stream, error) {
	query := `SELECT ` + streamColumns + `
	FROM streams
	WHERE ($1 = '' OR owner_id = $1)
	  AND ($2 = '' OR status = $2)
	ORDER BY created_at DESC
	LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, filter.OwnerID, string(filter.Status), clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var streams []domain.Stream
	for rows.Next() {
		stream, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		streams = append(streams, *stream)
	}
	return streams, rows.Err()
}

func (r *streamRepository) CountActiveByOwner(ctx context.Context, ownerID string) (int, error) {
	const query = `SELECT COUNT(*) FROM streams WHERE owner_id = $1 AND status IN ('live', 'paused')`
	var count int
	if err := r.pool.QueryRow(ctx, query, ownerID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *streamRepository) Create(ctx context.Context, stream *domain.Stream) error {
	if stream == nil {
		return domain.ErrInvalidPayload
	}
	if stream.ID == "" {
		stream.ID = uuid.NewString()
	}
	if stream.Version == 0 {
		stream.Version = 1
	}

	const query = `
	INSERT INTO streams (
		id, owner_id, title, category, visibility, content_rating, status,
		allow_comments, allow_gifts, enable_polls, camera_enabled, mic_enabled,
		viewer_ids, current_viewer_count, peak_viewer_count,
		like_count, chat_count, gift_count,
		rtc_channel, rtc_resource_id, rtc_session_id, recording_url,
		started_at, ended_at, duration, version
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8, $9, $10, $11, $12,
		$13, $14, $15,
		$16, $17, $18,
		$19, $20, $21, $22,
		$23, $24, $25, $26
	)
	RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		stream.ID,
		stream.OwnerID,
		stream.Title,
		stream.Category,
		stream.Visibility,
		stream.ContentRating,
		string(stream.Status),
		stream.Settings.AllowComments,
		stream.Settings.AllowGifts,
		stream.Settings.EnablePolls,
		stream.Controls.CameraEnabled,
		stream.Controls.MicEnabled,
		marshalJSON(viewerSet(stream.ViewerIDs)),
		stream.CurrentViewerCount,
		stream.PeakViewerCount,
		stream.LikeCount,
		stream.ChatCount,
		stream.GiftCount,
		stream.RTCChannel,
		stream.RTCResourceID,
		stream.RTCSessionID,
		stream.RecordingURL,
		stream.StartedAt,
		stream.EndedAt,
		stream.Duration,
		stream.Version,
	).Scan(&stream.CreatedAt, &stream.UpdatedAt)
}

// Update writes the aggregate back, matching on the version that was read.
// A mismatch means another writer got there first and surfaces as
// domain.ErrVersionConflict so callers can re-read and retry.
func (r *streamRepository) Update(ctx context.Context, stream *domain.Stream) error {
	if stream == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	UPDATE streams
	SET title = $2,
		category = $3,
		visibility = $4,
		content_rating = $5,
		status = $6,
		allow_comments = $7,
		allow_gifts = $8,
		enable_polls = $9,
		camera_enabled = $10,
		mic_enabled = $11,
		viewer_ids = $12,
		current_viewer_count = $13,
		peak_viewer_count = $14,
		like_count = $15,
		chat_count = $16,
		gift_count = $17,
		recording_url = $18,
		started_at = $19,
		ended_at = $20,
		duration = $21,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND version = $22
	RETURNING version, updated_at`

	err := r.pool.QueryRow(ctx, query,
		stream.ID,
		stream.Title,
		stream.Category,
		stream.Visibility,
		stream.ContentRating,
		string(stream.Status),
		stream.Settings.AllowComments,
		stream.Settings.AllowGifts,
		stream.Settings.EnablePolls,
		stream.Controls.CameraEnabled,
		stream.Controls.MicEnabled,
		marshalJSON(viewerSet(stream.ViewerIDs)),
		stream.CurrentViewerCount,
		stream.PeakViewerCount,
		stream.LikeCount,
		stream.ChatCount,
		stream.GiftCount,
		stream.RecordingURL,
		stream.StartedAt,
		stream.EndedAt,
		stream.Duration,
		stream.Version,
	).Scan(&stream.Version, &stream.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing row from a lost version race.
			if _, getErr := r.GetByID(ctx, stream.ID); getErr != nil {
				return getErr
			}
			return domain.ErrVersionConflict
		}
		return err
	}
	return nil
}

func scanStream(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Stream, error) {
	var stream domain.Stream
	var (
		status    string
		viewerIDs []byte
		startedAt *time.Time
		endedAt   *time.Time
	)

	if err := row.Scan(
		&stream.ID,
		&stream.OwnerID,
		&stream.Title,
		&stream.Category,
		&stream.Visibility,
		&stream.ContentRating,
		&status,
		&stream.Settings.AllowComments,
		&stream.Settings.AllowGifts,
		&stream.Settings.EnablePolls,
		&stream.Controls.CameraEnabled,
		&stream.Controls.MicEnabled,
		&viewerIDs,
		&stream.CurrentViewerCount,
		&stream.PeakViewerCount,
		&stream.LikeCount,
		&stream.ChatCount,
		&stream.GiftCount,
		&stream.RTCChannel,
		&stream.RTCResourceID,
		&stream.RTCSessionID,
		&stream.RecordingURL,
		&startedAt,
		&endedAt,
		&stream.Duration,
		&stream.Version,
		&stream.CreatedAt,
		&stream.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStreamNotFound
		}
		return nil, err
	}

	stream.Status = domain.StreamStatus(status)
	stream.ViewerIDs = unmarshalStrings(viewerIDs)
	stream.StartedAt = startedAt
	stream.EndedAt = endedAt
	return &stream, nil
}

func viewerSet(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

type moderationRepository struct {
	pool *pgxpool.Pool
}

// NewModerationRepository returns a Postgres-backed ModerationRepository.
func NewModerationRepository(pool *pgxpool.Pool) repository.ModerationRepository {
	return &moderationRepository{pool: pool}
}

func (r *moderationRepository) Record(ctx context.Context, action *domain.ModerationAction) error {
	if action == nil {
		return domain.ErrInvalidPayload
	}
	if action.ID == "" {
		action.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO moderation_actions (id, stream_id, target_id, moderator_id, action, reason)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		action.ID,
		action.StreamID,
		action.TargetID,
		action.ModeratorID,
		action.Action,
		action.Reason,
	).Scan(&action.CreatedAt)
}
