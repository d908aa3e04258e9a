package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/repository"
)

const pollColumns = `
	id, stream_id, creator_id, question, options, total_votes,
	allow_multiple_votes, is_active, start_time, end_time, version, created_at`

type pollRepository struct {
	pool *pgxpool.Pool
}

// NewPollRepository returns a Postgres-backed implementation of PollRepository.
func NewPollRepository(pool *pgxpool.Pool) repository.PollRepository {
	return &pollRepository{pool: pool}
}

func (r *pollRepository) GetByID(ctx context.Context, id string) (*domain.Poll, error) {
	query := `SELECT ` + pollColumns + ` FROM polls WHERE id = $1`
	return scanPoll(r.pool.QueryRow(ctx, query, id))
}

func (r *pollRepository) GetActiveByStream(ctx context.Context, streamID string) (*domain.Poll, error) {
	query := `SELECT ` + pollColumns + `
	FROM polls
	WHERE stream_id = $1 AND is_active = TRUE
	ORDER BY created_at DESC
	LIMIT 1`
	return scanPoll(r.pool.QueryRow(ctx, query, streamID))
}

func (r *pollRepository) ListExpiredActive(ctx context.Context, asOf time.Time) ([]domain.Poll, error) {
	query := `SELECT ` + pollColumns + ` FROM polls WHERE is_active = TRUE AND end_time < $1`
	rows, err := r.pool.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var polls []domain.Poll
	for rows.Next() {
		poll, err := scanPoll(rows)
		if err != nil {
			return nil, err
		}
		polls = append(polls, *poll)
	}
	return polls, rows.Err()
}

func (r *pollRepository) Create(ctx context.Context, poll *domain.Poll) error {
	if poll == nil {
		return domain.ErrInvalidPayload
	}
	if poll.ID == "" {
		poll.ID = uuid.NewString()
	}
	if poll.Version == 0 {
		poll.Version = 1
	}

	const query = `
	INSERT INTO polls (id, stream_id, creator_id, question, options, total_votes,
		allow_multiple_votes, is_active, start_time, end_time, version)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		poll.ID,
		poll.StreamID,
		poll.CreatorID,
		poll.Question,
		marshalJSON(poll.Options),
		poll.TotalVotes,
		poll.AllowMultipleVotes,
		poll.IsActive,
		poll.StartTime,
		poll.EndTime,
		poll.Version,
	).Scan(&poll.CreatedAt)
}

func (r *pollRepository) Update(ctx context.Context, poll *domain.Poll) error {
	if poll == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	UPDATE polls
	SET options = $2,
		total_votes = $3,
		is_active = $4,
		end_time = $5,
		version = version + 1
	WHERE id = $1 AND version = $6
	RETURNING version`

	err := r.pool.QueryRow(ctx, query,
		poll.ID,
		marshalJSON(poll.Options),
		poll.TotalVotes,
		poll.IsActive,
		poll.EndTime,
		poll.Version,
	).Scan(&poll.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, poll.ID); getErr != nil {
				return getErr
			}
			return domain.ErrVersionConflict
		}
		return err
	}
	return nil
}

func scanPoll(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Poll, error) {
	var poll domain.Poll
	var options []byte

	if err := row.Scan(
		&poll.ID,
		&poll.StreamID,
		&poll.CreatorID,
		&poll.Question,
		&options,
		&poll.TotalVotes,
		&poll.AllowMultipleVotes,
		&poll.IsActive,
		&poll.StartTime,
		&poll.EndTime,
		&poll.Version,
		&poll.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPollNotFound
		}
		return nil, err
	}

	if len(options) > 0 {
		_ = json.Unmarshal(options, &poll.Options)
	}
	return &poll, nil
}
