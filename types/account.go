package types

import "time"

// Role priorities. Lower numbers carry more privilege.
const (
	RoleAdmin     = 1
	RoleLibrarian = 2
	RoleMember    = 3
	RoleMin       = 1
	RoleMax       = 5
)

// Account represents an identity record in the system.
// Credential material lives in a separate one-to-one record
// and is never exposed through the API.
type Account struct {
	// ID is the unique identifier of the account.
	ID int `json:"id" db:"id"`

	// FirstName and LastName form the account holder's display name.
	FirstName string `json:"firstname" db:"first_name"`
	LastName  string `json:"lastname" db:"last_name"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the account's unique email address, used as the
	// login identifier.
	Email string `json:"email" db:"email"`

	// Phone is the account's unique phone number, digits only.
	Phone string `json:"phone" db:"phone"`

	// Role is the account's priority level within [RoleMin, RoleMax].
	Role int `json:"role" db:"role"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Name returns the display name for token claims and responses.
func (a Account) Name() string {
	if a.FirstName == "" {
		return a.LastName
	}
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// Credential holds the salted password digest for an account.
// Exactly one Credential exists per Account; an Account must never
// persist without one.
type Credential struct {
	// AccountID links the credential to its account.
	AccountID int `json:"-" db:"account_id"`

	// Salt is the per-account random salt, base64-encoded.
	Salt string `json:"-" db:"salt"`

	// SaltedHash is the digest of (password, salt).
	SaltedHash string `json:"-" db:"salted_hash"`

	// CreatedAt is the timestamp when the credential was created.
	CreatedAt time.Time `json:"-" db:"created_at"`

	// UpdatedAt is the timestamp of the last password change.
	UpdatedAt time.Time `json:"-" db:"updated_at"`
}
