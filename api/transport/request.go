package transport

// StartStreamRequest opens a new live session.
type StartStreamRequest struct {
	Title         string `json:"title" validate:"required,min=1,max=140"`
	Category      string `json:"category" validate:"max=64"`
	Visibility    string `json:"visibility" validate:"omitempty,oneof=public unlisted private"`
	ContentRating string `json:"content_rating" validate:"omitempty,oneof=general mature"`
	AllowComments *bool  `json:"allow_comments"`
	AllowGifts    *bool  `json:"allow_gifts"`
	EnablePolls   *bool  `json:"enable_polls"`
}

// StreamSettingsRequest toggles audience features mid-session.
type StreamSettingsRequest struct {
	AllowComments bool `json:"allow_comments"`
	AllowGifts    bool `json:"allow_gifts"`
	EnablePolls   bool `json:"enable_polls"`
}

// StreamControlsRequest toggles the broadcaster's devices.
type StreamControlsRequest struct {
	CameraEnabled bool `json:"camera_enabled"`
	MicEnabled    bool `json:"mic_enabled"`
}

// AdminEndRequest terminates a session on a moderator's authority.
type AdminEndRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

// ChatMessageRequest posts a message into a stream room.
type ChatMessageRequest struct {
	Content string `json:"content" validate:"required,min=1"`
	Type    string `json:"type" validate:"omitempty,oneof=text emoji system"`
}

// SendGiftRequest transfers a gift to the stream owner.
type SendGiftRequest struct {
	GiftID      string `json:"gift_id" validate:"required,uuid4"`
	Quantity    int    `json:"quantity" validate:"required,min=1,max=999"`
	Message     string `json:"message" validate:"max=200"`
	IsAnonymous bool   `json:"is_anonymous"`
}

// CreatePollRequest opens a poll on a live stream.
type CreatePollRequest struct {
	// StreamID is optional in the body; the route's path parameter wins.
	StreamID           string   `json:"stream_id" validate:"omitempty,uuid4"`
	Question           string   `json:"question" validate:"required,min=1,max=300"`
	Options            []string `json:"options" validate:"required,min=2,max=10,dive,min=1,max=100"`
	DurationSeconds    int      `json:"duration_seconds" validate:"required,min=30,max=3600"`
	AllowMultipleVotes bool     `json:"allow_multiple_votes"`
}

// VotePollRequest casts a vote.
type VotePollRequest struct {
	OptionIndex *int `json:"option_index" validate:"required,min=0"`
}
