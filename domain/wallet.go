package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a user's spendable feather balance. The balance is a running
// total backed by the append-only ledger and must never go negative: a spend
// that would drive it below zero is rejected before any mutation.
type Wallet struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Balance        decimal.Decimal `json:"balance"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
	TotalSpent     decimal.Decimal `json:"total_spent"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CanSpend reports whether amount can be debited without going negative.
func (w *Wallet) CanSpend(amount decimal.Decimal) bool {
	return w != nil && w.Balance.GreaterThanOrEqual(amount)
}

// Debit applies a spend. Callers must validate with CanSpend first.
func (w *Wallet) Debit(amount decimal.Decimal) {
	w.Balance = w.Balance.Sub(amount)
	w.TotalSpent = w.TotalSpent.Add(amount)
}

// Credit applies an earning.
func (w *Wallet) Credit(amount decimal.Decimal) {
	w.Balance = w.Balance.Add(amount)
	w.TotalEarned = w.TotalEarned.Add(amount)
}

// TransactionDirection distinguishes ledger entry kinds.
type TransactionDirection string

const (
	TransactionDebit  TransactionDirection = "debit"
	TransactionCredit TransactionDirection = "credit"
)

// WalletTransaction is one entry in the append-only ledger backing a wallet.
type WalletTransaction struct {
	ID             string               `json:"id"`
	WalletID       string               `json:"wallet_id"`
	CorrelationID  string               `json:"correlation_id"`
	Direction      TransactionDirection `json:"direction"`
	Amount         decimal.Decimal      `json:"amount"`
	Reason         string               `json:"reason"`
	CounterpartyID string               `json:"counterparty_id,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}
