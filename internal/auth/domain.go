package auth

import "time"

// SessionRecord is the registry row kept for each console sign-in.
type SessionRecord struct {
	ID        string
	Email     string
	IP        string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
}
