package domain

import "time"

// ChatMessage is a single message posted into a stream's room.
type ChatMessage struct {
	ID        string    `json:"id"`
	StreamID  string    `json:"stream_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	ChatTypeText   = "text"
	ChatTypeEmoji  = "emoji"
	ChatTypeSystem = "system"
)
