package realtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/usecase"
)

// Client→server events on the messaging channel.
const (
	eventUserJoin     = "user_join"
	eventSendMessage  = "send_message"
	eventMarkRead     = "mark_read"
	eventTypingStart  = "typing_start"
	eventTypingStop   = "typing_stop"
	maxDirectMsgChars = 2000
)

// MessagingChannel carries direct messages and notifications between users.
// It is fully independent of stream rooms: delivery targets user-id rooms
// only. Unread counters are per-process and reset on restart; the message
// stream itself is fire-and-forget.
type MessagingChannel struct {
	hub    *Hub
	logger *zap.Logger

	mu     sync.Mutex
	unread map[string]int
}

func NewMessagingChannel(hub *Hub, logger *zap.Logger) *MessagingChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessagingChannel{
		hub:    hub,
		logger: logger,
		unread: make(map[string]int),
	}
}

type directMessagePayload struct {
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

type typingPayload struct {
	RecipientID string `json:"recipient_id"`
}

// Handle routes one inbound envelope.
func (mc *MessagingChannel) Handle(ctx context.Context, c *Client, env Envelope) {
	if err := mc.dispatch(ctx, c, env); err != nil {
		c.Send("error", map[string]interface{}{
			"event":   env.Event,
			"code":    domain.CodeOf(err),
			"message": err.Error(),
		})
	}
}

func (mc *MessagingChannel) dispatch(_ context.Context, c *Client, env Envelope) error {
	switch env.Event {
	case eventUserJoin:
		// Registration into the user room happened at connect; the join
		// event just acks and pushes the pending unread count.
		c.Send(usecase.EventUnreadCount, map[string]interface{}{
			"count": mc.unreadFor(c.UserID()),
		})
		return nil

	case eventSendMessage:
		var p directMessagePayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		content := strings.TrimSpace(p.Content)
		if p.RecipientID == "" || content == "" {
			return domain.ErrInvalidPayload
		}
		if len(content) > maxDirectMsgChars {
			return domain.NewError(domain.ErrCodeInvalid, "message too long")
		}

		msg := map[string]interface{}{
			"sender_id": c.UserID(),
			"content":   content,
			"sent_at":   time.Now().UTC(),
		}
		mc.hub.ToUser(p.RecipientID, usecase.EventDirectMessage, msg)
		mc.hub.ToUser(p.RecipientID, usecase.EventUnreadCount, map[string]interface{}{
			"count": mc.bump(p.RecipientID),
		})
		// Echo to the sender's other sockets so every device converges.
		mc.hub.ToUser(c.UserID(), usecase.EventDirectMessage, msg)
		return nil

	case eventMarkRead:
		mc.reset(c.UserID())
		mc.hub.ToUser(c.UserID(), usecase.EventUnreadCount, map[string]interface{}{
			"count": 0,
		})
		return nil

	case eventTypingStart, eventTypingStop:
		var p typingPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		mc.hub.ToUser(p.RecipientID, env.Event, map[string]interface{}{
			"sender_id": c.UserID(),
		})
		return nil

	default:
		return domain.NewError(domain.ErrCodeInvalid, "unknown event "+env.Event)
	}
}

// Disconnected is a no-op: messaging holds no per-connection state beyond the
// user room the hub already cleared.
func (mc *MessagingChannel) Disconnected(context.Context, *Client, []string) {}

func (mc *MessagingChannel) bump(userID string) int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.unread[userID]++
	return mc.unread[userID]
}

func (mc *MessagingChannel) unreadFor(userID string) int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.unread[userID]
}

func (mc *MessagingChannel) reset(userID string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.unread, userID)
}
