package rtc

import (
	"fmt"

	"github.com/featherlive/backend/domain"
)

// RecordingWebhook is the callback payload the RTC provider posts when a
// cloud recording session changes state.
type RecordingWebhook struct {
	Event      string `json:"event" validate:"required"`
	ResourceID string `json:"resource_id" validate:"required"`
	SessionID  string `json:"session_id" validate:"required"`
	Channel    string `json:"channel"`
	FileURL    string `json:"file_url"`
	Timestamp  int64  `json:"timestamp"`
}

const (
	RecordingEventStarted  = "recording.started"
	RecordingEventStopped  = "recording.stopped"
	RecordingEventUploaded = "recording.uploaded"
)

// DedupKey identifies one delivery for idempotency marking. Redeliveries of
// the same event for the same recording session share the key.
func (w *RecordingWebhook) DedupKey() string {
	return fmt.Sprintf("webhook:%s:%s:%s", w.ResourceID, w.SessionID, w.Event)
}

// Validate checks the payload shape before any stream lookup happens.
func (w *RecordingWebhook) Validate() error {
	if w == nil || w.Event == "" {
		return domain.NewError(domain.ErrCodeInvalid, "webhook event is required")
	}
	if w.ResourceID == "" || w.SessionID == "" {
		return domain.NewError(domain.ErrCodeInvalid, "webhook resource and session ids are required")
	}
	switch w.Event {
	case RecordingEventStarted, RecordingEventStopped, RecordingEventUploaded:
		return nil
	default:
		return domain.NewError(domain.ErrCodeInvalid, "unknown webhook event "+w.Event)
	}
}
