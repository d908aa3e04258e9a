package handler

import (
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/featherlive/backend/api/transport"
	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/pkg/httpcontext"
	pollUC "github.com/featherlive/backend/usecase/poll"
)

type PollHandler struct {
	baseHandler
	polls *pollUC.UseCase
}

func NewPollHandler(polls *pollUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *PollHandler {
	return &PollHandler{
		baseHandler: newBaseHandler(adapter, logger),
		polls:       polls,
	}
}

// @Summary Create a poll
// @Tags poll
// @Router /api/v1/poll/stream/{id}/create [post]
func (h *PollHandler) Create(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	streamID := pathValue(ctx, "id")
	var req transport.CreatePollRequest
	if !h.decodeBody(ctx, &req) {
		return
	}
	if streamID == "" {
		streamID = req.StreamID
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	poll, err := h.polls.Create(stdCtx, pollUC.CreateParams{
		StreamID:           streamID,
		CreatorID:          userID,
		Question:           req.Question,
		Options:            req.Options,
		Duration:           time.Duration(req.DurationSeconds) * time.Second,
		AllowMultipleVotes: req.AllowMultipleVotes,
	})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, poll)
}

// @Summary Vote in a poll
// @Tags poll
// @Router /api/v1/poll/{id}/vote [post]
func (h *PollHandler) Vote(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	pollID := pathValue(ctx, "id")
	var req transport.VotePollRequest
	if !h.decodeBody(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	poll, err := h.polls.Vote(stdCtx, pollID, userID, *req.OptionIndex)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, poll)
}

// @Summary End a poll
// @Tags poll
// @Router /api/v1/poll/{id}/end [post]
func (h *PollHandler) End(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	pollID := pathValue(ctx, "id")
	if pollID == "" {
		h.respondError(ctx, domain.ErrInvalidPayload)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	poll, err := h.polls.End(stdCtx, pollID, userID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, poll)
}

// @Summary Active poll for a stream
// @Tags poll
// @Router /api/v1/poll/stream/{id}/active [get]
func (h *PollHandler) Active(ctx *fasthttp.RequestCtx) {
	streamID := pathValue(ctx, "id")
	if streamID == "" {
		h.respondError(ctx, domain.ErrInvalidPayload)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	poll, err := h.polls.Active(stdCtx, streamID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, poll)
}
