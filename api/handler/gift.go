package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/featherlive/backend/api/transport"
	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/pkg/httpcontext"
	giftUC "github.com/featherlive/backend/usecase/gift"
)

type GiftHandler struct {
	baseHandler
	gifts *giftUC.UseCase
}

func NewGiftHandler(gifts *giftUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *GiftHandler {
	return &GiftHandler{
		baseHandler: newBaseHandler(adapter, logger),
		gifts:       gifts,
	}
}

// @Summary Send a gift
// @Tags gift
// @Router /api/v1/gift/send/{streamId} [post]
func (h *GiftHandler) Send(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	streamID := pathValue(ctx, "streamId")
	if streamID == "" {
		h.respondError(ctx, domain.ErrInvalidPayload)
		return
	}
	var req transport.SendGiftRequest
	if !h.decodeBody(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	tx, err := h.gifts.Send(stdCtx, giftUC.SendParams{
		StreamID:    streamID,
		SenderID:    userID,
		GiftID:      req.GiftID,
		Quantity:    req.Quantity,
		Message:     req.Message,
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, tx)
}

// @Summary Gift catalog
// @Tags gift
// @Router /api/v1/gift/catalog [get]
func (h *GiftHandler) Catalog(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	catalog, err := h.gifts.Catalog(stdCtx)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, catalog)
}

// @Summary Gift history for a stream
// @Tags gift
// @Router /api/v1/gift/stream/{id} [get]
func (h *GiftHandler) History(ctx *fasthttp.RequestCtx) {
	streamID := pathValue(ctx, "id")
	if streamID == "" {
		h.respondError(ctx, domain.ErrInvalidPayload)
		return
	}
	limit := parseInt(string(ctx.QueryArgs().Peek("limit")), 50)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	history, err := h.gifts.History(stdCtx, streamID, limit)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, history)
}
