package realtime

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"
)

func newTestClient(userID string) *Client {
	return &Client{
		userID:  userID,
		channel: "stream",
		joined:  make(map[string]struct{}),
		send:    make(chan []byte, 16),
		logger:  zap.NewNop(),
	}
}

func receivedEvents(t *testing.T, c *Client) []string {
	t.Helper()
	var events []string
	for {
		select {
		case frame := <-c.send:
			var env Envelope
			if err := json.Unmarshal(frame, &env); err != nil {
				t.Fatalf("bad frame: %v", err)
			}
			events = append(events, env.Event)
		default:
			return events
		}
	}
}

func TestToStreamReachesOnlyRoomMembers(t *testing.T) {
	hub := NewHub(nil, nil)
	inRoom := newTestClient("u1")
	outside := newTestClient("u2")
	hub.register(inRoom)
	hub.register(outside)
	hub.joinStream(inRoom, "s1")

	hub.ToStream("s1", "stream:message", map[string]string{"content": "hi"})

	if got := receivedEvents(t, inRoom); len(got) != 1 || got[0] != "stream:message" {
		t.Fatalf("member received %v, want the message", got)
	}
	if got := receivedEvents(t, outside); len(got) != 0 {
		t.Fatalf("non-member received %v", got)
	}
}

func TestToUserReachesEverySocketOfThatUser(t *testing.T) {
	hub := NewHub(nil, nil)
	first := newTestClient("u1")
	second := newTestClient("u1")
	other := newTestClient("u2")
	hub.register(first)
	hub.register(second)
	hub.register(other)

	hub.ToUser("u1", "user:notification", nil)

	if got := receivedEvents(t, first); len(got) != 1 {
		t.Fatalf("first socket received %v", got)
	}
	if got := receivedEvents(t, second); len(got) != 1 {
		t.Fatalf("second socket received %v", got)
	}
	if got := receivedEvents(t, other); len(got) != 0 {
		t.Fatalf("other user received %v", got)
	}
}

func TestLeaveStreamStopsDelivery(t *testing.T) {
	hub := NewHub(nil, nil)
	c := newTestClient("u1")
	hub.register(c)
	hub.joinStream(c, "s1")
	hub.leaveStream(c, "s1")

	hub.ToStream("s1", "stream:message", nil)

	if got := receivedEvents(t, c); len(got) != 0 {
		t.Fatalf("left client received %v", got)
	}
	if _, still := c.joined["s1"]; still {
		t.Fatal("joined set still tracks the left stream")
	}
}

func TestJoinStreamIsIdempotent(t *testing.T) {
	hub := NewHub(nil, nil)
	c := newTestClient("u1")
	hub.register(c)
	hub.joinStream(c, "s1")
	hub.joinStream(c, "s1")

	if hub.streamMembers != 1 {
		t.Fatalf("streamMembers = %d after double join, want 1", hub.streamMembers)
	}

	hub.ToStream("s1", "stream:message", nil)
	if got := receivedEvents(t, c); len(got) != 1 {
		t.Fatalf("double-joined client received %v, want one copy", got)
	}
}

func TestUnregisterReturnsJoinedStreams(t *testing.T) {
	hub := NewHub(nil, nil)
	c := newTestClient("u1")
	hub.register(c)
	hub.joinStream(c, "s1")
	hub.joinStream(c, "s2")

	streams := hub.unregister(c)
	if len(streams) != 2 {
		t.Fatalf("unregister returned %v, want both joined streams", streams)
	}
	seen := map[string]bool{}
	for _, id := range streams {
		seen[id] = true
	}
	if !seen["s1"] || !seen["s2"] {
		t.Fatalf("unregister returned %v", streams)
	}

	if hub.streamMembers != 0 {
		t.Fatalf("streamMembers = %d after unregister, want 0", hub.streamMembers)
	}
	hub.ToStream("s1", "stream:message", nil)
	hub.ToUser("u1", "user:notification", nil)
	if got := receivedEvents(t, c); len(got) != 0 {
		t.Fatalf("unregistered client received %v", got)
	}
}

func TestUserInStreamTracksRemainingSockets(t *testing.T) {
	hub := NewHub(nil, nil)
	phone := newTestClient("u1")
	laptop := newTestClient("u1")
	hub.register(phone)
	hub.register(laptop)
	hub.joinStream(phone, "s1")
	hub.joinStream(laptop, "s1")

	hub.unregister(phone)
	if !hub.userInStream("u1", "s1") {
		t.Fatal("user reported absent while a second socket is still in the room")
	}

	hub.unregister(laptop)
	if hub.userInStream("u1", "s1") {
		t.Fatal("user reported present after the last socket dropped")
	}
}

func TestEmptyRoomsAreReclaimed(t *testing.T) {
	hub := NewHub(nil, nil)
	c := newTestClient("u1")
	hub.register(c)
	hub.joinStream(c, "s1")
	hub.unregister(c)

	if len(hub.streamRooms) != 0 {
		t.Fatalf("streamRooms = %d entries, want 0", len(hub.streamRooms))
	}
	if len(hub.userRooms) != 0 {
		t.Fatalf("userRooms = %d entries, want 0", len(hub.userRooms))
	}
}
