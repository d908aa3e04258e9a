package wallet

import (
	"context"

	"go.uber.org/zap"

	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/repository"
)

// UseCase exposes read paths over wallets and their ledger. All mutations go
// through the gift processor; there is no direct balance write here.
type UseCase struct {
	wallets repository.WalletRepository
	logger  *zap.Logger
}

func New(wallets repository.WalletRepository, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{wallets: wallets, logger: logger}
}

// Get returns the user's wallet, creating an empty one on first access.
func (uc *UseCase) Get(ctx context.Context, userID string) (*domain.Wallet, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	return uc.wallets.GetOrCreate(ctx, userID)
}

// Transactions lists the user's ledger entries, newest first.
func (uc *UseCase) Transactions(ctx context.Context, userID string, limit int) ([]domain.WalletTransaction, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	w, err := uc.wallets.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return uc.wallets.ListTransactions(ctx, w.ID, limit)
}
