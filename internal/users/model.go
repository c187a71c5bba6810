package users

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered portal account. PasswordHash is never serialized.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
