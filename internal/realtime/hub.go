package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/featherlive/backend/internal/metrics"
)

// Envelope is the wire frame for both socket channels, client→server and
// server→client alike.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Hub tracks room membership for stream rooms and per-user direct rooms and
// fans events out to them. It satisfies the use cases' Broadcaster port:
// ToStream and ToUser enqueue on the caller's goroutine, so events emitted
// under a stream's lock reach every member queue in commit order.
type Hub struct {
	mu            sync.RWMutex
	streamRooms   map[string]map[*Client]struct{}
	userRooms     map[string]map[*Client]struct{}
	streamMembers int
	metrics       *metrics.Collector
	logger        *zap.Logger
}

func NewHub(collector *metrics.Collector, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		streamRooms: make(map[string]map[*Client]struct{}),
		userRooms:   make(map[string]map[*Client]struct{}),
		metrics:     collector,
		logger:      logger,
	}
}

// ToStream delivers one event to every client joined to the stream's room.
func (h *Hub) ToStream(streamID, event string, payload interface{}) {
	frame, err := marshalFrame(event, payload)
	if err != nil {
		h.logger.Error("broadcast encode failed", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	room := h.streamRooms[streamID]
	for c := range room {
		c.enqueue(frame)
	}
	h.mu.RUnlock()

	if h.metrics != nil {
		h.metrics.BroadcastSent(event)
	}
}

// ToUser delivers one event to every socket the user holds open.
func (h *Hub) ToUser(userID, event string, payload interface{}) {
	frame, err := marshalFrame(event, payload)
	if err != nil {
		h.logger.Error("broadcast encode failed", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	room := h.userRooms[userID]
	for c := range room {
		c.enqueue(frame)
	}
	h.mu.RUnlock()

	if h.metrics != nil {
		h.metrics.BroadcastSent(event)
	}
}

// register adds the client to its user room.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	room, ok := h.userRooms[c.userID]
	if !ok {
		room = make(map[*Client]struct{})
		h.userRooms[c.userID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ConnectionOpened(c.channel)
	}
}

// joinStream adds the client to a stream room.
func (h *Hub) joinStream(c *Client, streamID string) {
	h.mu.Lock()
	room, ok := h.streamRooms[streamID]
	if !ok {
		room = make(map[*Client]struct{})
		h.streamRooms[streamID] = room
	}
	if _, already := room[c]; !already {
		room[c] = struct{}{}
		h.streamMembers++
	}
	c.joined[streamID] = struct{}{}
	occupancy := h.streamMembers
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetRoomOccupancy("stream", occupancy)
	}
}

// leaveStream removes the client from a stream room.
func (h *Hub) leaveStream(c *Client, streamID string) {
	h.mu.Lock()
	h.dropFromRoom(c, streamID)
	delete(c.joined, streamID)
	occupancy := h.streamMembers
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetRoomOccupancy("stream", occupancy)
	}
}

// unregister removes the client from its user room and every stream room it
// joined, returning the joined stream ids so the caller can reconcile
// presence state for a connection that dropped without leaving.
func (h *Hub) unregister(c *Client) []string {
	h.mu.Lock()
	if room, ok := h.userRooms[c.userID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.userRooms, c.userID)
		}
	}
	streams := make([]string, 0, len(c.joined))
	for streamID := range c.joined {
		h.dropFromRoom(c, streamID)
		streams = append(streams, streamID)
	}
	c.joined = make(map[string]struct{})
	occupancy := h.streamMembers
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ConnectionClosed()
		h.metrics.SetRoomOccupancy("stream", occupancy)
	}
	return streams
}

// dropFromRoom removes c from a stream room. Callers hold h.mu.
func (h *Hub) dropFromRoom(c *Client, streamID string) {
	room, ok := h.streamRooms[streamID]
	if !ok {
		return
	}
	if _, member := room[c]; member {
		delete(room, c)
		h.streamMembers--
	}
	if len(room) == 0 {
		delete(h.streamRooms, streamID)
	}
}

// userInStream reports whether the user still has any socket in the room.
func (h *Hub) userInStream(userID, streamID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.streamRooms[streamID] {
		if c.userID == userID {
			return true
		}
	}
	return false
}

func marshalFrame(event string, payload interface{}) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
