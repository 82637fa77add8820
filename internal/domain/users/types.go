package users

import (
	"time"

	"github.com/civicsquare/server/internal/auth"
	"github.com/google/uuid"
)

// User is an account record. Email is the identity key; Role is fixed at
// creation and only changes through explicit admin action.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         auth.Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is a server-side login session. The cookie carries the plaintext
// token; only its hash is persisted. Logout deletes the row, which revokes
// the session immediately.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CreateParams are the inputs for persisting a new user.
type CreateParams struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         auth.Role
	IsActive     bool
}
