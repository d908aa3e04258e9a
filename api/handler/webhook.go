package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/featherlive/backend/api/transport"
	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/internal/rtc"
	"github.com/featherlive/backend/pkg/httpcontext"
	streamUC "github.com/featherlive/backend/usecase/stream"
)

// WebhookHandler receives recording callbacks from the RTC provider. The
// route sits outside the JWT surface; a shared secret header authenticates
// the caller instead.
type WebhookHandler struct {
	baseHandler
	streams *streamUC.UseCase
	secret  string
}

func NewWebhookHandler(streams *streamUC.UseCase, secret string, adapter *httpcontext.Adapter, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		baseHandler: newBaseHandler(adapter, logger),
		streams:     streams,
		secret:      secret,
	}
}

// @Summary RTC recording webhook
// @Tags webhook
// @Router /stream/recording/webhook [post]
func (h *WebhookHandler) Recording(ctx *fasthttp.RequestCtx) {
	if h.secret != "" {
		got := ctx.Request.Header.Peek("X-Webhook-Secret")
		if subtle.ConstantTimeCompare(got, []byte(h.secret)) != 1 {
			h.respondJSON(ctx, http.StatusUnauthorized, transport.NewError(string(domain.ErrCodeUnauthorized), "bad webhook secret", nil))
			return
		}
	}

	var payload rtc.RecordingWebhook
	if err := json.Unmarshal(ctx.PostBody(), &payload); err != nil {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "invalid payload", nil))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.streams.HandleRecordingWebhook(stdCtx, &payload); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, map[string]string{"received": payload.Event})
}
