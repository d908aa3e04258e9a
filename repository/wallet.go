package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/featherlive/backend/domain"
)

// TransferParams describes a gift transfer applied as one atomic unit: the
// sender debit, the receiver credit net of commission, the two ledger rows
// sharing a correlation id, and the gift transaction record itself.
type TransferParams struct {
	Gift *domain.GiftTransaction
	// NetAmount is what the receiver is credited: TotalAmount minus commission.
	NetAmount decimal.Decimal
}

// WalletRepository persists wallets and their append-only ledger. Wallets are
// created lazily on first access.
type WalletRepository interface {
	GetOrCreate(ctx context.Context, userID string) (*domain.Wallet, error)
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)
	// Transfer commits the whole gift transfer in a single database
	// transaction. Either every row lands or none does; the ledger is never
	// left unbalanced. Returns domain.ErrInsufficientFunds without any
	// mutation when the sender's balance does not cover the amount.
	Transfer(ctx context.Context, params TransferParams) error
	ListTransactions(ctx context.Context, walletID string, limit int) ([]domain.WalletTransaction, error)
}
