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

const walletColumns = `
	id, user_id, balance, total_earned, total_spent, total_withdrawn,
	version, created_at, updated_at`

type walletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository returns a Postgres-backed implementation of WalletRepository.
func NewWalletRepository(pool *pgxpool.Pool) repository.WalletRepository {
	return &walletRepository{pool: pool}
}

func (r *walletRepository) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	return scanWallet(r.pool.QueryRow(ctx, query, userID))
}

// GetOrCreate lazily provisions a wallet on first access.
func (r *walletRepository) GetOrCreate(ctx context.Context, userID string) (*domain.Wallet, error) {
	if userID == "" {
		return nil, domain.ErrInvalidPayload
	}

	const query = `
	INSERT INTO wallets (id, user_id)
	VALUES ($1, $2)
	ON CONFLICT (user_id) DO UPDATE SET updated_at = wallets.updated_at
	RETURNING ` + walletColumns

	return scanWallet(r.pool.QueryRow(ctx, query, uuid.NewString(), userID))
}

// Transfer applies the whole gift transfer inside one database transaction:
// sender debit, receiver credit net of commission, two ledger rows sharing a
// correlation id, and the gift transaction record. Wallet rows are locked in
// a stable order to avoid deadlocks between opposing transfers.
func (r *walletRepository) Transfer(ctx context.Context, params repository.TransferParams) error {
	gift := params.Gift
	if gift == nil || gift.SenderID == "" || gift.ReceiverID == "" {
		return domain.ErrInvalidPayload
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	first, second := gift.SenderID, gift.ReceiverID
	if second < first {
		first, second = second, first
	}
	if err := lockWallet(ctx, tx, first); err != nil {
		return err
	}
	if err := lockWallet(ctx, tx, second); err != nil {
		return err
	}

	sender, err := scanWallet(tx.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, gift.SenderID))
	if err != nil {
		return err
	}
	if !sender.CanSpend(gift.TotalAmount) {
		return domain.ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx, `
		UPDATE wallets
		SET balance = balance - $2,
			total_spent = total_spent + $2,
			version = version + 1,
			updated_at = NOW()
		WHERE user_id = $1`, gift.SenderID, gift.TotalAmount); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE wallets
		SET balance = balance + $2,
			total_earned = total_earned + $2,
			version = version + 1,
			updated_at = NOW()
		WHERE user_id = $1`, gift.ReceiverID, params.NetAmount); err != nil {
		return err
	}

	receiver, err := scanWallet(tx.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, gift.ReceiverID))
	if err != nil {
		return err
	}

	const ledgerInsert = `
	INSERT INTO wallet_transactions (id, wallet_id, correlation_id, direction, amount, reason, counterparty_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := tx.Exec(ctx, ledgerInsert,
		uuid.NewString(), sender.ID, gift.CorrelationID,
		string(domain.TransactionDebit), gift.TotalAmount, "gift_sent", gift.ReceiverID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, ledgerInsert,
		uuid.NewString(), receiver.ID, gift.CorrelationID,
		string(domain.TransactionCredit), params.NetAmount, "gift_received", gift.SenderID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO gift_transactions (id, correlation_id, stream_id, gift_id, sender_id, receiver_id,
			quantity, total_amount, commission, message, is_anonymous)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		gift.ID, gift.CorrelationID, gift.StreamID, gift.GiftID, gift.SenderID, gift.ReceiverID,
		gift.Quantity, gift.TotalAmount, gift.Commission, gift.Message, gift.IsAnonymous); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *walletRepository) ListTransactions(ctx context.Context, walletID string, limit int) ([]domain.WalletTransaction, error) {
	const query = `
	SELECT id, wallet_id, correlation_id, direction, amount, reason, counterparty_id, created_at
	FROM wallet_transactions
	WHERE wallet_id = $1
	ORDER BY created_at DESC
	LIMIT $2`

	rows, err := r.pool.Query(ctx, query, walletID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.WalletTransaction
	for rows.Next() {
		var t domain.WalletTransaction
		var direction string
		if err := rows.Scan(
			&t.ID, &t.WalletID, &t.CorrelationID, &direction,
			&t.Amount, &t.Reason, &t.CounterpartyID, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		t.Direction = domain.TransactionDirection(direction)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// lockWallet ensures the row exists (wallets are lazy) and takes the row lock.
func lockWallet(ctx context.Context, tx pgx.Tx, userID string) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO wallets (id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`, uuid.NewString(), userID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `SELECT 1 FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	return err
}

func scanWallet(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Wallet, error) {
	var w domain.Wallet
	var createdAt, updatedAt time.Time

	if err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.Balance,
		&w.TotalEarned,
		&w.TotalSpent,
		&w.TotalWithdrawn,
		&w.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}

	w.CreatedAt = createdAt
	w.UpdatedAt = updatedAt
	return &w, nil
}
