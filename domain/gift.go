package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Gift is a catalog item priced in feathers, the platform's virtual currency.
type Gift struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Animation string          `json:"animation,omitempty"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

// GiftTransaction is the immutable record of a sender→receiver transfer tied
// to a stream. Its two ledger entries share CorrelationID.
type GiftTransaction struct {
	ID            string          `json:"id"`
	CorrelationID string          `json:"correlation_id"`
	StreamID      string          `json:"stream_id"`
	GiftID        string          `json:"gift_id"`
	SenderID      string          `json:"sender_id"`
	ReceiverID    string          `json:"receiver_id"`
	Quantity      int             `json:"quantity"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Commission    decimal.Decimal `json:"commission"`
	Message       string          `json:"message,omitempty"`
	IsAnonymous   bool            `json:"is_anonymous"`
	CreatedAt     time.Time       `json:"created_at"`
}
