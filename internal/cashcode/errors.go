package cashcode

import (
	"errors"
	"fmt"
)

// Domain outcomes. These are expected results of the weekly lifecycle, not faults.
var (
	ErrAlreadyDrawn       = errors.New("draw already executed for this week")
	ErrNoEligibleTickets  = errors.New("no eligible tickets for this week")
	ErrNotWinner          = errors.New("user is not this week's winner")
	ErrNotDrawn           = errors.New("winner has not been drawn yet")
	ErrClaimWindowExpired = errors.New("claim window expired")
	ErrIncorrectCode      = errors.New("incorrect code")
	ErrAlreadyClaimed     = errors.New("prize already claimed")
	ErrAlreadyRolledOver  = errors.New("week already opened")
	ErrTooManyAttempts    = errors.New("too many claim attempts")
	ErrDrawNotFound       = errors.New("draw not found")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// ErrStorageUnavailable wraps persistence faults. Callers may retry.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Store precondition results, translated into domain outcomes by the Engine.
var (
	// ErrConditionFailed means a conditional write matched no row
	ErrConditionFailed = errors.New("precondition failed")
	// ErrConflict means a uniqueness constraint rejected the write
	ErrConflict = errors.New("conflict")
)

var domainErrors = []error{
	ErrAlreadyDrawn,
	ErrNoEligibleTickets,
	ErrNotWinner,
	ErrNotDrawn,
	ErrClaimWindowExpired,
	ErrIncorrectCode,
	ErrAlreadyClaimed,
	ErrAlreadyRolledOver,
	ErrTooManyAttempts,
	ErrDrawNotFound,
	ErrInvalidArgument,
	ErrConditionFailed,
	ErrConflict,
}

// IsDomainError reports whether err is an expected lifecycle outcome
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// storageErr marks infrastructure failures as ErrStorageUnavailable and
// passes domain outcomes through untouched.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomainError(err) || errors.Is(err, ErrStorageUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
