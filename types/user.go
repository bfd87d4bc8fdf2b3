package types

import "time"

// Roles a user may hold. The set is closed; anything else is rejected
// before it reaches the store.
const (
	RoleUser      = "user"
	RoleGuide     = "guide"
	RoleLeadGuide = "lead-guide"
	RoleAdmin     = "admin"
)

// ValidRole reports whether role belongs to the closed role set.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin:
		return true
	}
	return false
}

// User represents an account in the system.
// It contains identity, role, credential state, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Email is the user's email address, stored lower-cased and unique.
	Email string `json:"email" db:"email"`

	// Role indicates the user's authorization level within the system.
	Role string `json:"role" db:"role"`

	// Photo is the object-storage key of the user's avatar, if any.
	Photo string `json:"photo,omitempty" db:"photo"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// PasswordChangedAt is the time the password was last set. Bearer
	// tokens issued before this instant are considered revoked.
	PasswordChangedAt time.Time `json:"-" db:"password_changed_at"`

	// ResetTokenHash is the sha256 digest of an outstanding password-reset
	// secret. Nil when no reset is pending.
	ResetTokenHash *string `json:"-" db:"reset_token_hash"`

	// ResetTokenExpiresAt bounds the reset secret's validity. Set and
	// cleared together with ResetTokenHash.
	ResetTokenExpiresAt *time.Time `json:"-" db:"reset_token_expires_at"`

	// Active is false for soft-deleted accounts. Inactive users cannot
	// log in and are invisible to the auth middleware.
	Active bool `json:"-" db:"active"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
