package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxFrameSize = 8 << 10

// EventHandler processes one inbound envelope from a connected client.
type EventHandler interface {
	Handle(ctx context.Context, c *Client, env Envelope)
	// Disconnected runs after the hub forgot the client, with the stream
	// rooms it was still joined to.
	Disconnected(ctx context.Context, c *Client, joinedStreams []string)
}

// Client is one websocket connection bound to an authenticated user. All
// outbound traffic goes through the buffered send channel; a client that
// cannot drain it is dropped rather than allowed to stall a broadcast.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	handler EventHandler
	logger  *zap.Logger

	userID  string
	channel string
	joined  map[string]struct{}

	send      chan []byte
	writeWait time.Duration
	pongWait  time.Duration
}

func newClient(hub *Hub, conn *websocket.Conn, handler EventHandler, logger *zap.Logger, userID, channel string, sendBuffer int, writeWait, pongWait time.Duration) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	return &Client{
		hub:       hub,
		conn:      conn,
		handler:   handler,
		logger:    logger,
		userID:    userID,
		channel:   channel,
		joined:    make(map[string]struct{}),
		send:      make(chan []byte, sendBuffer),
		writeWait: writeWait,
		pongWait:  pongWait,
	}
}

// UserID returns the authenticated user behind the connection.
func (c *Client) UserID() string { return c.userID }

// Send queues an event for this connection only.
func (c *Client) Send(event string, payload interface{}) {
	frame, err := marshalFrame(event, payload)
	if err != nil {
		c.logger.Error("frame encode failed", zap.String("event", event), zap.Error(err))
		return
	}
	c.enqueue(frame)
}

func (c *Client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
		// Slow consumer. Closing the socket makes readPump exit and run the
		// normal disconnect path.
		c.conn.Close()
	}
}

// run services the connection until it closes, then reconciles presence.
func (c *Client) run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)

	// The send channel is left open: writePump exits on the closed conn and
	// nothing references the client once the hub forgot it.
	joined := c.hub.unregister(c)
	if c.handler != nil {
		c.handler.Disconnected(ctx, c, joined)
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Debug("socket read failed", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			c.Send("error", map[string]string{"message": "malformed frame"})
			continue
		}
		if c.handler != nil {
			c.handler.Handle(ctx, c, env)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
