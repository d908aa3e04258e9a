package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/featherlive/backend/pkg/httpcontext"
	walletUC "github.com/featherlive/backend/usecase/wallet"
)

type WalletHandler struct {
	baseHandler
	wallets *walletUC.UseCase
}

func NewWalletHandler(wallets *walletUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{
		baseHandler: newBaseHandler(adapter, logger),
		wallets:     wallets,
	}
}

// @Summary Get own wallet
// @Tags wallet
// @Router /api/v1/wallet [get]
func (h *WalletHandler) Get(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	wallet, err := h.wallets.Get(stdCtx, userID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, wallet)
}

// @Summary Wallet ledger
// @Tags wallet
// @Router /api/v1/wallet/transactions [get]
func (h *WalletHandler) Transactions(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	limit := parseInt(string(ctx.QueryArgs().Peek("limit")), 50)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	txs, err := h.wallets.Transactions(stdCtx, userID, limit)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, txs)
}
