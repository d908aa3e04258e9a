package domain

import "time"

// User represents an authenticated identity in the platform.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (u *User) IsActive() bool {
	return u != nil && u.Status == "active"
}

func (u *User) IsModerator() bool {
	return u != nil && (u.Role == "moderator" || u.Role == "admin")
}
