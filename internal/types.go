package internal

import "time"

const EventRedirect = "redirect"

type Link struct {
	ID        int64     `json:"id"`
	FullURL   string    `json:"full_url"`
	ShortCode string    `json:"short_code"`
	OwnerID   *int64    `json:"owner_id,omitempty"`
	DeviceID  *string   `json:"-"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type Account struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Event struct {
	ID        int64          `json:"id"`
	EventType string         `json:"event_type"`
	ShortCode *string        `json:"short_code"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// Identity is the acting caller of a request. It is either authenticated
// (OwnerID set) or anonymous, optionally carrying a device token.
type Identity struct {
	OwnerID  int64
	Email    string
	DeviceID string
}

func Anonymous(deviceID string) Identity {
	return Identity{DeviceID: deviceID}
}

func Authenticated(ownerID int64, email string) Identity {
	return Identity{OwnerID: ownerID, Email: email}
}

func (i Identity) IsAuthenticated() bool {
	return i.OwnerID > 0
}

func (i Identity) HasDevice() bool {
	return i.DeviceID != ""
}
