package gift

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/pkg/keymutex"
	"github.com/featherlive/backend/repository"
	"github.com/featherlive/backend/usecase"
)

// SendParams describes a gift send request.
type SendParams struct {
	StreamID    string
	SenderID    string
	GiftID      string
	Quantity    int
	Message     string
	IsAnonymous bool
}

// UseCase applies gift transactions: the single most failure-sensitive
// operation in the system. The wallet debit, credit, ledger rows, and gift
// record commit as one database transaction; the stream and analytics
// counters are eventually consistent satellites updated after that commit.
type UseCase struct {
	streams     repository.StreamRepository
	gifts       repository.GiftRepository
	wallets     repository.WalletRepository
	analytics   repository.AnalyticsRepository
	broadcaster usecase.Broadcaster
	locks       *keymutex.KeyMutex
	logger      *zap.Logger

	commissionPercent int64
	retries           int
}

func New(
	streams repository.StreamRepository,
	gifts repository.GiftRepository,
	wallets repository.WalletRepository,
	analytics repository.AnalyticsRepository,
	broadcaster usecase.Broadcaster,
	locks *keymutex.KeyMutex,
	logger *zap.Logger,
	commissionPercent int,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if broadcaster == nil {
		broadcaster = usecase.NopBroadcaster{}
	}
	if locks == nil {
		locks = keymutex.New()
	}
	if commissionPercent < 0 || commissionPercent > 100 {
		commissionPercent = 15
	}
	return &UseCase{
		streams:           streams,
		gifts:             gifts,
		wallets:           wallets,
		analytics:         analytics,
		broadcaster:       broadcaster,
		locks:             locks,
		logger:            logger,
		commissionPercent: int64(commissionPercent),
		retries:           3,
	}
}

// Send validates and applies a gift transfer. Balance check and debit are
// serialized per sender wallet, so two simultaneous sends cannot both pass
// the check against a stale balance. A failure anywhere before the commit
// leaves zero ledger entries.
func (uc *UseCase) Send(ctx context.Context, params SendParams) (*domain.GiftTransaction, error) {
	if params.Quantity < 1 || params.Quantity > 999 {
		return nil, domain.NewError(domain.ErrCodeInvalid, "quantity must be between 1 and 999")
	}
	if params.SenderID == "" {
		return nil, domain.ErrUnauthorized
	}

	catalog, err := uc.gifts.GetByID(ctx, params.GiftID)
	if err != nil {
		return nil, err
	}
	if !catalog.Active {
		return nil, domain.ErrGiftNotFound
	}

	total := catalog.Price.Mul(decimal.NewFromInt(int64(params.Quantity)))
	commission := total.Mul(decimal.NewFromInt(uc.commissionPercent)).Div(decimal.NewFromInt(100))
	net := total.Sub(commission)

	tx := &domain.GiftTransaction{
		ID:            uuid.NewString(),
		CorrelationID: uuid.NewString(),
		StreamID:      params.StreamID,
		GiftID:        catalog.ID,
		SenderID:      params.SenderID,
		Quantity:      params.Quantity,
		TotalAmount:   total,
		Commission:    commission,
		Message:       params.Message,
		IsAnonymous:   params.IsAnonymous,
	}

	transferred := false
	_, err = usecase.MutateStream(ctx, uc.locks, uc.streams, params.StreamID, uc.retries,
		func(s *domain.Stream) error {
			if s.Status != domain.StreamStatusLive {
				return domain.ErrStreamNotLive
			}
			if !s.Settings.AllowGifts {
				return domain.ErrGiftsDisabled
			}
			if s.OwnerID == params.SenderID {
				return domain.NewError(domain.ErrCodeInvalid, "cannot send a gift to your own stream")
			}
			tx.ReceiverID = s.OwnerID

			// The transfer commits at most once even when a version race
			// re-runs this closure.
			if !transferred {
				if err := uc.transfer(ctx, tx, net); err != nil {
					return err
				}
				transferred = true
			}
			s.GiftCount++
			return nil
		},
		func(s *domain.Stream) {
			uc.broadcaster.ToStream(s.ID, usecase.EventGiftSent, giftEvent(tx, catalog))
		})
	if err != nil {
		if transferred {
			// The ledger already committed; the stream counter reconciles
			// from gift_transactions. Report the anomaly, keep the money.
			uc.logger.Error("gift ledger committed but stream update failed",
				zap.String("stream_id", params.StreamID),
				zap.String("correlation_id", tx.CorrelationID),
				zap.Error(err))
			return tx, nil
		}
		return nil, err
	}

	if err := uc.analytics.Increment(ctx, params.StreamID, repository.AnalyticsDelta{
		Gifts:   1,
		Revenue: total,
	}); err != nil {
		uc.logger.Warn("gift analytics increment failed",
			zap.String("stream_id", params.StreamID), zap.Error(err))
	}

	// Receiver notification is best-effort: a failed dispatch never rolls
	// back the committed transaction.
	uc.broadcaster.ToUser(tx.ReceiverID, usecase.EventNewNotification, map[string]interface{}{
		"type":      "gift_received",
		"stream_id": tx.StreamID,
		"gift":      catalog.Name,
		"quantity":  tx.Quantity,
		"amount":    net,
	})

	return tx, nil
}

// transfer serializes balance check-and-debit per sender wallet and hands the
// whole unit to the repository's single-transaction path.
func (uc *UseCase) transfer(ctx context.Context, tx *domain.GiftTransaction, net decimal.Decimal) error {
	return uc.locks.WithLock("wallet:"+tx.SenderID, func() error {
		wallet, err := uc.wallets.GetOrCreate(ctx, tx.SenderID)
		if err != nil {
			return err
		}
		if !wallet.CanSpend(tx.TotalAmount) {
			return domain.ErrInsufficientFunds
		}
		return uc.wallets.Transfer(ctx, repository.TransferParams{
			Gift:      tx,
			NetAmount: net,
		})
	})
}

// Catalog lists active gift catalog entries.
func (uc *UseCase) Catalog(ctx context.Context) ([]domain.Gift, error) {
	return uc.gifts.ListCatalog(ctx)
}

// History returns recent gift transactions for a stream.
func (uc *UseCase) History(ctx context.Context, streamID string, limit int) ([]domain.GiftTransaction, error) {
	return uc.gifts.ListByStream(ctx, streamID, limit)
}

func giftEvent(tx *domain.GiftTransaction, catalog *domain.Gift) map[string]interface{} {
	sender := tx.SenderID
	if tx.IsAnonymous {
		sender = ""
	}
	return map[string]interface{}{
		"stream_id":    tx.StreamID,
		"gift_id":      tx.GiftID,
		"gift_name":    catalog.Name,
		"animation":    catalog.Animation,
		"sender_id":    sender,
		"is_anonymous": tx.IsAnonymous,
		"quantity":     tx.Quantity,
		"message":      tx.Message,
	}
}
