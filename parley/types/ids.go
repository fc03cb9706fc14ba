package types

import "github.com/google/uuid"

// NewID returns a time-ordered UUIDv7 string, so ids sort in creation order
// even when timestamps collide.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
