package user

import "time"

// User is a platform account. This service only reads users: account
// provisioning lives in the identity system that issues our tokens.
type User struct {
	ID     string `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Email  string `json:"email" db:"email"`
	Role   string `json:"role" db:"role"`
	Active bool   `json:"active" db:"active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FallbackName is used wherever an actor cannot be resolved, e.g. audit
// entries written by background rules rather than a signed-in user.
const FallbackName = "System User"
