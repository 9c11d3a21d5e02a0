package errs

import (
	"errors"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrBookNotFound = errors.New("book not found")

	ErrDuplicateBorrow     = errors.New("book already borrowed by this user")
	ErrBorrowLimitExceeded = errors.New("active loan limit exceeded")
	ErrBookUnavailable     = errors.New("no copies available")

	ErrNoActiveLoan    = errors.New("active loan not found")
	ErrAlreadyReturned = errors.New("loan already returned")
	ErrForbidden       = errors.New("not the loan owner")

	ErrIsbnExists         = errors.New("isbn already exists")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrBorrowedCopies        = errors.New("copies are currently borrowed")
	ErrQuantityBelowBorrowed = errors.New("quantity cannot be less than borrowed copies")
	ErrAvailableOutOfRange   = errors.New("available must be between 0 and quantity")

	// ErrTxConflict is returned when the storage transaction keeps aborting
	// after the internal retry; the caller sees a transient failure.
	ErrTxConflict = errors.New("storage conflict, retry later")
)
