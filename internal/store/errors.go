package store

import (
	"errors"

	"github.com/lib/pq"
)

// Domain errors surfaced by repositories.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateUsername is returned when an account with the same
	// username already exists.
	ErrDuplicateUsername = errors.New("username exists")

	// ErrDuplicateEmail is returned when an account with the same
	// email already exists.
	ErrDuplicateEmail = errors.New("email exists")

	// ErrDuplicatePhone is returned when an account with the same
	// phone number already exists.
	ErrDuplicatePhone = errors.New("phone exists")

	// ErrDuplicateISBN is returned when a book with the same ISBN
	// already exists.
	ErrDuplicateISBN = errors.New("isbn exists")

	// ErrIntegrity is returned when the store violates one of its own
	// uniqueness invariants, e.g. two credentials for one email.
	ErrIntegrity = errors.New("integrity violation")
)

const pqUniqueViolation = "23505"

// mapConstraintError translates a postgres unique-violation into the
// matching domain error, keyed by constraint name. Unrecognized errors
// pass through unchanged.
func mapConstraintError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case "accounts_username_key":
		return ErrDuplicateUsername
	case "accounts_email_key":
		return ErrDuplicateEmail
	case "accounts_phone_key":
		return ErrDuplicatePhone
	case "books_isbn_key":
		return ErrDuplicateISBN
	}
	return err
}
