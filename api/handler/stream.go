package handler

import (
	"context"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/featherlive/backend/api/transport"
	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/pkg/httpcontext"
	"github.com/featherlive/backend/repository"
	chatUC "github.com/featherlive/backend/usecase/chat"
	streamUC "github.com/featherlive/backend/usecase/stream"
)

type StreamHandler struct {
	baseHandler
	streams *streamUC.UseCase
	chats   *chatUC.UseCase
}

func NewStreamHandler(streams *streamUC.UseCase, chats *chatUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		baseHandler: newBaseHandler(adapter, logger),
		streams:     streams,
		chats:       chats,
	}
}

// @Summary Start a live stream
// @Tags stream
// @Router /api/v1/stream/start [post]
func (h *StreamHandler) Start(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	var req transport.StartStreamRequest
	if !h.decodeBody(ctx, &req) {
		return
	}

	settings := domain.DefaultStreamSettings()
	if req.AllowComments != nil {
		settings.AllowComments = *req.AllowComments
	}
	if req.AllowGifts != nil {
		settings.AllowGifts = *req.AllowGifts
	}
	if req.EnablePolls != nil {
		settings.EnablePolls = *req.EnablePolls
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	result, err := h.streams.Start(stdCtx, userID, streamUC.StartParams{
		Title:         req.Title,
		Category:      req.Category,
		Visibility:    req.Visibility,
		ContentRating: req.ContentRating,
		Settings:      settings,
	})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, result)
}

// @Summary Get a stream
// @Tags stream
// @Router /api/v1/stream/{id} [get]
func (h *StreamHandler) Get(ctx *fasthttp.RequestCtx) {
	id := pathValue(ctx, "id")
	if id == "" {
		h.respondError(ctx, domain.ErrInvalidPayload)
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	stream, err := h.streams.Get(stdCtx, id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, stream)
}

// @Summary List streams
// @Tags stream
// @Router /api/v1/streams [get]
func (h *StreamHandler) List(ctx *fasthttp.RequestCtx) {
	filter := repository.StreamFilter{
		Status:  domain.StreamStatus(ctx.QueryArgs().Peek("status")),
		OwnerID: string(ctx.QueryArgs().Peek("owner_id")),
		Limit:   parseInt(string(ctx.QueryArgs().Peek("limit")), 50),
		Offset:  parseInt(string(ctx.QueryArgs().Peek("offset")), 0),
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	streams, err := h.streams.List(stdCtx, filter)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondJSON(ctx, http.StatusOK, transport.NewSuccess(streams, transport.ListMeta{
		Count:  len(streams),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}))
}

// Pause, Resume, End, Join, Leave and Like share the same shape: path id,
// authenticated caller, one use case call.

// @Router /api/v1/stream/{id}/pause [post]
func (h *StreamHandler) Pause(ctx *fasthttp.RequestCtx) {
	h.mutation(ctx, h.streams.Pause)
}

// @Router /api/v1/stream/{id}/resume [post]
func (h *StreamHandler) Resume(ctx *fasthttp.RequestCtx) {
	h.mutation(ctx, h.streams.Resume)
}

// @Router /api/v1/stream/{id}/end [post]
func (h *StreamHandler) End(ctx *fasthttp.RequestCtx) {
	h.mutation(ctx, h.streams.End)
}

// @Router /api/v1/stream/{id}/join [post]
func (h *StreamHandler) Join(ctx *fasthttp.RequestCtx) {
	h.mutation(ctx, h.streams.Join)
}

// @Router /api/v1/stream/{id}/leave [post]
func (h *StreamHandler) Leave(ctx *fasthttp.RequestCtx) {
	h.mutation(ctx, h.streams.Leave)
}

// @Router /api/v1/stream/{id}/like [post]
func (h *StreamHandler) Like(ctx *fasthttp.RequestCtx) {
	h.mutation(ctx, h.streams.Like)
}

// @Summary End a stream on moderator authority
// @Tags stream
// @Router /api/v1/stream/{id}/admin-end [post]
func (h *StreamHandler) AdminEnd(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	id := pathValue(ctx, "id")
	if id == "" {
		h.respondError(ctx, domain.ErrInvalidPayload)
		return
	}
	var req transport.AdminEndRequest
	if !h.decodeBody(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	stream, err := h.streams.AdminEnd(stdCtx, id, userID, req.Reason)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, stream)
}

// @Summary Update audience settings
// @Tags stream
// @Router /api/v1/stream/{id}/settings [put]
func (h *StreamHandler) UpdateSettings(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	id := pathValue(ctx, "id")
	var req transport.StreamSettingsRequest
	if !h.decodeBody(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	stream, err := h.streams.UpdateSettings(stdCtx, id, userID, domain.StreamSettings{
		AllowComments: req.AllowComments,
		AllowGifts:    req.AllowGifts,
		EnablePolls:   req.EnablePolls,
	})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, stream)
}

// @Summary Update broadcaster controls
// @Tags stream
// @Router /api/v1/stream/{id}/controls [put]
func (h *StreamHandler) UpdateControls(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	id := pathValue(ctx, "id")
	var req transport.StreamControlsRequest
	if !h.decodeBody(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	stream, err := h.streams.UpdateControls(stdCtx, id, userID, domain.StreamControls{
		CameraEnabled: req.CameraEnabled,
		MicEnabled:    req.MicEnabled,
	})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, stream)
}

// @Summary Post a chat message
// @Tags stream
// @Router /api/v1/stream/{id}/chat [post]
func (h *StreamHandler) PostChat(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	id := pathValue(ctx, "id")
	var req transport.ChatMessageRequest
	if !h.decodeBody(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	msg, err := h.chats.PostMessage(stdCtx, id, userID, req.Content, req.Type)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, msg)
}

// @Summary Chat history
// @Tags stream
// @Router /api/v1/stream/{id}/chat [get]
func (h *StreamHandler) ChatHistory(ctx *fasthttp.RequestCtx) {
	id := pathValue(ctx, "id")
	if id == "" {
		h.respondError(ctx, domain.ErrInvalidPayload)
		return
	}
	limit := parseInt(string(ctx.QueryArgs().Peek("limit")), 50)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	messages, err := h.chats.History(stdCtx, id, limit)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, messages)
}

func (h *StreamHandler) mutation(ctx *fasthttp.RequestCtx, op func(context.Context, string, string) (*domain.Stream, error)) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	id := pathValue(ctx, "id")
	if id == "" {
		h.respondError(ctx, domain.ErrInvalidPayload)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	stream, err := op(stdCtx, id, userID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, stream)
}
