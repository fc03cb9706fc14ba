package types

import "time"

type TokenRequest struct {
	DeviceID string `json:"deviceId"`
}

type TokenResponse struct {
	Token     string `json:"token,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

// Device is an anonymous client identity; its ID is the opaque device id the
// browser or CLI generates and owns chats under.
type Device struct {
	ID        string    `json:"id"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}
