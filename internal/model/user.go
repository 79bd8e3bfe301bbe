package model

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered publisher account.
type User struct {
	ID                  uuid.UUID `json:"id"`
	Email               string    `json:"email"`
	PasswordHash        string    `json:"-"`
	IsSuperUser         bool      `json:"isSuperUser"`
	ForcePasswordChange bool      `json:"forcePasswordChange"`
	CreatedAt           time.Time `json:"createdAt"`
}

// Token is an opaque API token issued to a user for CLI publishing or as a
// session credential.
type Token struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"userId"`
	Token     string     `json:"token"`
	Name      string     `json:"name"`
	Scope     []string   `json:"scope,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Expired reports whether the token has an expiry in the past.
func (t Token) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}
