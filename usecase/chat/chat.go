package chat

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/pkg/keymutex"
	"github.com/featherlive/backend/repository"
	"github.com/featherlive/backend/usecase"
)

// UseCase validates and applies chat interactions against session state.
type UseCase struct {
	streams     repository.StreamRepository
	messages    repository.ChatRepository
	analytics   repository.AnalyticsRepository
	broadcaster usecase.Broadcaster
	locks       *keymutex.KeyMutex
	logger      *zap.Logger
	maxLength   int
	retries     int
}

func New(
	streams repository.StreamRepository,
	messages repository.ChatRepository,
	analytics repository.AnalyticsRepository,
	broadcaster usecase.Broadcaster,
	locks *keymutex.KeyMutex,
	logger *zap.Logger,
	maxLength int,
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
	if maxLength <= 0 {
		maxLength = 500
	}
	return &UseCase{
		streams:     streams,
		messages:    messages,
		analytics:   analytics,
		broadcaster: broadcaster,
		locks:       locks,
		logger:      logger,
		maxLength:   maxLength,
		retries:     3,
	}
}

// PostMessage persists a chat message and broadcasts it verbatim to the
// stream room, sender included. The broadcast is the acknowledgment to all
// parties; the sender gets no privileged local echo.
func (uc *UseCase) PostMessage(ctx context.Context, streamID, senderID, content, msgType string) (*domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "message content is required")
	}
	if len(content) > uc.maxLength {
		return nil, domain.NewError(domain.ErrCodeInvalid, "message content exceeds maximum length")
	}
	if msgType == "" {
		msgType = domain.ChatTypeText
	}

	message := &domain.ChatMessage{
		StreamID: streamID,
		SenderID: senderID,
		Content:  content,
		Type:     msgType,
	}

	persisted := false
	_, err := usecase.MutateStream(ctx, uc.locks, uc.streams, streamID, uc.retries,
		func(s *domain.Stream) error {
			if s.Status == domain.StreamStatusEnded {
				return domain.ErrStreamEnded
			}
			if !s.Settings.AllowComments {
				return domain.ErrCommentsDisabled
			}
			// The message persists at most once even when a version race
			// re-runs this closure.
			if !persisted {
				if err := uc.messages.Create(ctx, message); err != nil {
					return err
				}
				persisted = true
			}
			s.ChatCount++
			return nil
		},
		func(s *domain.Stream) {
			uc.broadcaster.ToStream(s.ID, usecase.EventMessage, message)
		})
	if err != nil {
		return nil, err
	}

	if err := uc.analytics.Increment(ctx, streamID, repository.AnalyticsDelta{Chats: 1}); err != nil {
		uc.logger.Warn("chat analytics increment failed",
			zap.String("stream_id", streamID), zap.Error(err))
	}
	return message, nil
}

// ReactEmoji fans an ephemeral reaction out to the room without persisting it.
func (uc *UseCase) ReactEmoji(ctx context.Context, streamID, senderID, emoji string) error {
	if emoji == "" {
		return domain.NewError(domain.ErrCodeInvalid, "emoji is required")
	}

	stream, err := uc.streams.GetByID(ctx, streamID)
	if err != nil {
		return err
	}
	if !stream.IsActive() {
		return domain.ErrStreamNotLive
	}

	uc.broadcaster.ToStream(streamID, usecase.EventEmojiReaction, map[string]interface{}{
		"stream_id": streamID,
		"sender_id": senderID,
		"emoji":     emoji,
	})
	return nil
}

// History returns recent messages for a stream.
func (uc *UseCase) History(ctx context.Context, streamID string, limit int) ([]domain.ChatMessage, error) {
	return uc.messages.ListByStream(ctx, streamID, limit)
}
