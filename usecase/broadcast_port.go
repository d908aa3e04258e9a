package usecase

// Broadcaster abstracts room fan-out so use cases stay transport-agnostic.
// Implementations must deliver synchronously with respect to the caller:
// every mutating operation emits its broadcast in-line, immediately after the
// commit, on the same goroutine that performed the mutation, which preserves
// per-stream commit order.
type Broadcaster interface {
	// ToStream emits one event to every socket joined to the stream's room,
	// the originating sender included.
	ToStream(streamID, event string, payload interface{})
	// ToUser emits one event to every socket in the user's direct room.
	ToUser(userID, event string, payload interface{})
}

// Server→client events for stream rooms.
const (
	EventViewerJoined    = "stream:viewer-joined"
	EventViewerLeft      = "stream:viewer-left"
	EventMessage         = "stream:message"
	EventGiftSent        = "stream:gift-sent"
	EventLiked           = "stream:liked"
	EventEmojiReaction   = "stream:emoji-reaction"
	EventPollCreated     = "stream:poll-created"
	EventPollUpdated     = "stream:poll-updated"
	EventPollEnded       = "stream:poll-ended"
	EventSettingsUpdated = "stream:settings-updated"
	EventControlsUpdated = "stream:controls-updated"
	EventStreamPaused    = "stream:paused"
	EventStreamResumed   = "stream:resumed"
	EventStreamEnded     = "stream:ended"
)

// Server→client events for user rooms on the messaging channel.
const (
	EventNewNotification = "new_notification"
	EventUnreadCount     = "unread_count"
	EventDirectMessage   = "receive_message"
)

// NopBroadcaster drops every event. Useful in tests and as a default.
type NopBroadcaster struct{}

func (NopBroadcaster) ToStream(string, string, interface{}) {}
func (NopBroadcaster) ToUser(string, string, interface{})   {}
