package domain

import "time"

// StreamStatus is the single source of truth for a stream's lifecycle state.
type StreamStatus string

const (
	StreamStatusScheduled StreamStatus = "scheduled"
	StreamStatusLive      StreamStatus = "live"
	StreamStatusPaused    StreamStatus = "paused"
	StreamStatusEnded     StreamStatus = "ended"
)

// StreamSettings are the feature toggles checked by event processors before
// accepting an interaction.
type StreamSettings struct {
	AllowComments bool `json:"allow_comments"`
	AllowGifts    bool `json:"allow_gifts"`
	EnablePolls   bool `json:"enable_polls"`
}

// DefaultStreamSettings enables every audience feature.
func DefaultStreamSettings() StreamSettings {
	return StreamSettings{
		AllowComments: true,
		AllowGifts:    true,
		EnablePolls:   true,
	}
}

// StreamControls mirror the broadcaster's device state for viewers.
type StreamControls struct {
	CameraEnabled bool `json:"camera_enabled"`
	MicEnabled    bool `json:"mic_enabled"`
}

// Stream is the central live-session aggregate.
type Stream struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"owner_id"`
	Title         string         `json:"title"`
	Category      string         `json:"category,omitempty"`
	Visibility    string         `json:"visibility,omitempty"`
	ContentRating string         `json:"content_rating,omitempty"`
	Status        StreamStatus   `json:"status"`
	Settings      StreamSettings `json:"settings"`
	Controls      StreamControls `json:"controls"`

	// ViewerIDs is the authoritative membership set; CurrentViewerCount must
	// always equal its cardinality.
	ViewerIDs          []string `json:"viewer_ids"`
	CurrentViewerCount int      `json:"current_viewer_count"`
	PeakViewerCount    int      `json:"peak_viewer_count"`
	LikeCount          int64    `json:"like_count"`
	ChatCount          int64    `json:"chat_count"`
	GiftCount          int64    `json:"gift_count"`

	RTCChannel    string `json:"rtc_channel,omitempty"`
	RTCResourceID string `json:"rtc_resource_id,omitempty"`
	RTCSessionID  string `json:"rtc_session_id,omitempty"`
	RecordingURL  string `json:"recording_url,omitempty"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	// Duration is derived exactly once at the end transition, in seconds.
	Duration int64 `json:"duration"`

	// Version backs optimistic concurrency on read-modify-write cycles.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanTransition reports whether moving to the target status is legal.
// Paused is reachable only from live; ended is terminal.
func (s *Stream) CanTransition(to StreamStatus) bool {
	if s == nil {
		return false
	}
	switch to {
	case StreamStatusLive:
		return s.Status == StreamStatusScheduled || s.Status == StreamStatusPaused
	case StreamStatusPaused:
		return s.Status == StreamStatusLive
	case StreamStatusEnded:
		return s.Status == StreamStatusLive
	default:
		return false
	}
}

// IsActive reports whether the session still accepts viewers.
func (s *Stream) IsActive() bool {
	return s != nil && (s.Status == StreamStatusLive || s.Status == StreamStatusPaused)
}

// HasViewer reports membership in the viewer set.
func (s *Stream) HasViewer(userID string) bool {
	if s == nil {
		return false
	}
	for _, id := range s.ViewerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// AddViewer inserts userID into the viewer set. The add is idempotent: a
// viewer that is already present does not change the count. Returns true when
// the set changed.
func (s *Stream) AddViewer(userID string) bool {
	if s == nil || userID == "" || s.HasViewer(userID) {
		return false
	}
	s.ViewerIDs = append(s.ViewerIDs, userID)
	s.CurrentViewerCount = len(s.ViewerIDs)
	if s.CurrentViewerCount > s.PeakViewerCount {
		s.PeakViewerCount = s.CurrentViewerCount
	}
	return true
}

// RemoveViewer deletes userID from the viewer set. Removing an absent viewer
// is a no-op. Returns true when the set changed.
func (s *Stream) RemoveViewer(userID string) bool {
	if s == nil {
		return false
	}
	for i, id := range s.ViewerIDs {
		if id == userID {
			s.ViewerIDs = append(s.ViewerIDs[:i], s.ViewerIDs[i+1:]...)
			s.CurrentViewerCount = len(s.ViewerIDs)
			return true
		}
	}
	return false
}

// End moves the stream to its terminal state, computing duration exactly once.
func (s *Stream) End(now time.Time) {
	if s == nil {
		return
	}
	s.Status = StreamStatusEnded
	s.EndedAt = &now
	if s.StartedAt != nil {
		s.Duration = int64(now.Sub(*s.StartedAt).Seconds())
	}
}

// ModerationAction records an administrative intervention against a stream,
// composed with the end transition rather than being a distinct state.
type ModerationAction struct {
	ID          string    `json:"id"`
	StreamID    string    `json:"stream_id"`
	TargetID    string    `json:"target_id"`
	ModeratorID string    `json:"moderator_id"`
	Action      string    `json:"action"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
