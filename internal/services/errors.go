package services

import "errors"

var (
	// ErrCopyUnavailable is returned when a checkout targets a copy that is
	// already loaned or damaged.
	ErrCopyUnavailable = errors.New("copy is not available")

	// ErrLoanNotFound is returned when the referenced loan does not exist.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrAlreadyReturned is returned when a return is attempted on a closed loan.
	ErrAlreadyReturned = errors.New("loan already returned")

	ErrCopyNotFound      = errors.New("copy not found")
	ErrBookNotFound      = errors.New("book not found")
	ErrMemberNotFound    = errors.New("member not found")
	ErrLibrarianNotFound = errors.New("librarian not found")

	// ErrCopyNotDamaged is returned when restoring a copy that was never marked damaged.
	ErrCopyNotDamaged = errors.New("copy is not damaged")

	ErrInvalidRate      = errors.New("daily rate must not be negative")
	ErrInvalidTimestamp = errors.New("timestamp precedes loan start")
	ErrInvalidInput     = errors.New("invalid input")
)
