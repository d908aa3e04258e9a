package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/internal/metrics"
	"github.com/featherlive/backend/usecase/chat"
	"github.com/featherlive/backend/usecase/gift"
	"github.com/featherlive/backend/usecase/poll"
	"github.com/featherlive/backend/usecase/stream"
)

// Client→server events on the stream channel.
const (
	eventJoin            = "stream:join"
	eventLeave           = "stream:leave"
	eventChat            = "stream:chat"
	eventGift            = "stream:gift"
	eventLike            = "stream:like"
	eventEmoji           = "stream:emoji"
	eventCreatePoll      = "stream:create-poll"
	eventVotePoll        = "stream:vote-poll"
	eventEndPoll         = "stream:end-poll"
	eventSettingsChanged = "stream:settings-changed"
	eventControlsChanged = "stream:controls-changed"
)

// StreamChannel dispatches inbound stream-room events to the use cases. It is
// a thin adapter: every rule lives behind it, and an error comes back to the
// offending socket alone as an "error" frame.
type StreamChannel struct {
	hub     *Hub
	streams *stream.UseCase
	chats   *chat.UseCase
	gifts   *gift.UseCase
	polls   *poll.UseCase
	metrics *metrics.Collector
	logger  *zap.Logger
}

func NewStreamChannel(
	hub *Hub,
	streams *stream.UseCase,
	chats *chat.UseCase,
	gifts *gift.UseCase,
	polls *poll.UseCase,
	collector *metrics.Collector,
	logger *zap.Logger,
) *StreamChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamChannel{
		hub:     hub,
		streams: streams,
		chats:   chats,
		gifts:   gifts,
		polls:   polls,
		metrics: collector,
		logger:  logger,
	}
}

type streamRef struct {
	StreamID string `json:"stream_id"`
}

type chatPayload struct {
	StreamID string `json:"stream_id"`
	Content  string `json:"content"`
	Type     string `json:"type"`
}

type emojiPayload struct {
	StreamID string `json:"stream_id"`
	Emoji    string `json:"emoji"`
}

type giftPayload struct {
	StreamID    string `json:"stream_id"`
	GiftID      string `json:"gift_id"`
	Quantity    int    `json:"quantity"`
	Message     string `json:"message"`
	IsAnonymous bool   `json:"is_anonymous"`
}

type createPollPayload struct {
	StreamID           string   `json:"stream_id"`
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	DurationSeconds    int      `json:"duration_seconds"`
	AllowMultipleVotes bool     `json:"allow_multiple_votes"`
}

type votePollPayload struct {
	PollID      string `json:"poll_id"`
	OptionIndex int    `json:"option_index"`
}

type pollRef struct {
	PollID string `json:"poll_id"`
}

type settingsPayload struct {
	StreamID string                `json:"stream_id"`
	Settings domain.StreamSettings `json:"settings"`
}

type controlsPayload struct {
	StreamID string                `json:"stream_id"`
	Controls domain.StreamControls `json:"controls"`
}

// Handle routes one inbound envelope.
func (sc *StreamChannel) Handle(ctx context.Context, c *Client, env Envelope) {
	err := sc.dispatch(ctx, c, env)
	if err != nil {
		code := domain.CodeOf(err)
		if sc.metrics != nil {
			sc.metrics.EventFailed(env.Event, string(code))
		}
		c.Send("error", map[string]interface{}{
			"event":   env.Event,
			"code":    code,
			"message": err.Error(),
		})
		return
	}
	if sc.metrics != nil {
		sc.metrics.EventProcessed(env.Event)
	}
}

func (sc *StreamChannel) dispatch(ctx context.Context, c *Client, env Envelope) error {
	switch env.Event {
	case eventJoin:
		var p streamRef
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		if _, err := sc.streams.Join(ctx, p.StreamID, c.UserID()); err != nil {
			return err
		}
		// Room membership follows a successful presence join, so the client
		// receives every later broadcast for the stream.
		sc.hub.joinStream(c, p.StreamID)
		return nil

	case eventLeave:
		var p streamRef
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		sc.hub.leaveStream(c, p.StreamID)
		_, err := sc.streams.Leave(ctx, p.StreamID, c.UserID())
		return err

	case eventChat:
		var p chatPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		_, err := sc.chats.PostMessage(ctx, p.StreamID, c.UserID(), p.Content, p.Type)
		return err

	case eventEmoji:
		var p emojiPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return sc.chats.ReactEmoji(ctx, p.StreamID, c.UserID(), p.Emoji)

	case eventLike:
		var p streamRef
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		_, err := sc.streams.Like(ctx, p.StreamID, c.UserID())
		return err

	case eventGift:
		var p giftPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		_, err := sc.gifts.Send(ctx, gift.SendParams{
			StreamID:    p.StreamID,
			SenderID:    c.UserID(),
			GiftID:      p.GiftID,
			Quantity:    p.Quantity,
			Message:     p.Message,
			IsAnonymous: p.IsAnonymous,
		})
		return err

	case eventCreatePoll:
		var p createPollPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		_, err := sc.polls.Create(ctx, poll.CreateParams{
			StreamID:           p.StreamID,
			CreatorID:          c.UserID(),
			Question:           p.Question,
			Options:            p.Options,
			Duration:           time.Duration(p.DurationSeconds) * time.Second,
			AllowMultipleVotes: p.AllowMultipleVotes,
		})
		return err

	case eventVotePoll:
		var p votePollPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		_, err := sc.polls.Vote(ctx, p.PollID, c.UserID(), p.OptionIndex)
		return err

	case eventEndPoll:
		var p pollRef
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		_, err := sc.polls.End(ctx, p.PollID, c.UserID())
		return err

	case eventSettingsChanged:
		var p settingsPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		_, err := sc.streams.UpdateSettings(ctx, p.StreamID, c.UserID(), p.Settings)
		return err

	case eventControlsChanged:
		var p controlsPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		_, err := sc.streams.UpdateControls(ctx, p.StreamID, c.UserID(), p.Controls)
		return err

	default:
		return domain.NewError(domain.ErrCodeInvalid, "unknown event "+env.Event)
	}
}

// Disconnected reconciles presence for a connection that dropped without
// sending stream:leave for every room it had joined.
func (sc *StreamChannel) Disconnected(ctx context.Context, c *Client, joinedStreams []string) {
	var result *multierror.Error
	for _, streamID := range joinedStreams {
		// Another socket of the same user may still sit in the room; the
		// viewer stays present until the last one goes.
		if sc.hub.userInStream(c.UserID(), streamID) {
			continue
		}
		if _, err := sc.streams.Leave(ctx, streamID, c.UserID()); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		sc.logger.Warn("presence reconciliation incomplete",
			zap.String("user_id", c.UserID()),
			zap.Error(err))
	}
}

func decode(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return domain.ErrInvalidPayload
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.WrapError(domain.ErrCodeInvalid, "invalid payload", err)
	}
	return nil
}
