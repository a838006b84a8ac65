package services

import (
	"errors"
	"fmt"

	"artpriyo-settlement/repository"
)

// Error kinds. Every error returned by this package wraps exactly one.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrInconsistent        = errors.New("inconsistent state, compensation required")
)

var (
	ErrInvalidAmount  = errors.New("amount must be strictly positive")
	ErrInvalidType    = errors.New("transaction type must be credit or debit")
	ErrMissingTitle   = errors.New("transaction title is required")
	ErrInvalidPayment = errors.New("payment reference missing or already used")
	ErrEventNotFound  = errors.New("event not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrEventClosed    = errors.New("event is no longer open for enrollment")
	ErrLeaveClosed    = errors.New("event has already started")
)

func kindError(kind, cause error) error {
	return fmt.Errorf("%w: %w", kind, cause)
}

// translate maps repository sentinels onto the service taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return kindError(ErrNotFound, ErrEventNotFound)
	case errors.Is(err, repository.ErrUserNotFound):
		return kindError(ErrNotFound, ErrUserNotFound)
	case errors.Is(err, repository.ErrAlreadyEnrolled),
		errors.Is(err, repository.ErrNotEnrolled),
		errors.Is(err, repository.ErrDuplicateTransaction):
		return kindError(ErrConflict, err)
	case errors.Is(err, repository.ErrCommitUncertain):
		return kindError(ErrInconsistent, err)
	}
	// Already classified (returned by a PrepareFunc).
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrConcurrencyConflict, ErrInconsistent} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return err
}

// Settlement stages reported by SettlementError.
const (
	StageClaim    = "claim"
	StageRelease  = "release"
	StageRank     = "rank"
	StageDistrib  = "distribute"
	StageComplete = "complete"
)

// errClaimLost means another runner holds or finished the settlement.
var errClaimLost = errors.New("settlement claim lost")

// SettlementError carries the event context of a failed settlement. The
// event keeps its status and is retried on the next scan.
type SettlementError struct {
	EventID   string
	EventName string
	Stage     string
	Err       error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settle event %s (%s) at %s: %v", e.EventID, e.EventName, e.Stage, e.Err)
}

func (e *SettlementError) Unwrap() error { return e.Err }
