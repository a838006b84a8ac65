// Package repository holds the persistence contracts the settlement engine
// relies on, with a PostgreSQL implementation on gorm and an in-process one
// used by tests and local runs.
package repository

import (
	"context"
	"errors"
	"time"

	"artpriyo-settlement/models"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested event does not exist.
var ErrNotFound = errors.New("not found")

// ErrUserNotFound is returned when a user has no wallet.
var ErrUserNotFound = errors.New("user wallet not found")

// ErrAlreadyEnrolled is returned when the user already holds an active enrollment.
var ErrAlreadyEnrolled = errors.New("user already enrolled in an active event")

// ErrNotEnrolled is returned by Withdraw when the user is not enrolled in the event.
var ErrNotEnrolled = errors.New("user is not enrolled in this event")

// ErrDuplicateTransaction is returned when a ledger business key is reused.
var ErrDuplicateTransaction = errors.New("transaction id already recorded")

// ErrCommitUncertain is returned when writes were issued but the commit
// failed, so the outcome must be verified and compensated by an operator.
var ErrCommitUncertain = errors.New("commit failed after writes were issued")

// PrepareFunc is evaluated against the locked event row inside Enroll and
// Withdraw. It rejects the operation by returning an error, or returns the
// ledger entry to apply (nil when no money moves).
type PrepareFunc func(ev *models.Event) (*models.Transaction, error)

// EventStore persists events and their lifecycle.
type EventStore interface {
	CreateEvent(ctx context.Context, ev *models.Event) error
	// GetEvent returns the event with participants in join order.
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	FindEventsByStatus(ctx context.Context, statuses ...models.EventStatus) ([]models.Event, error)
	// UpdateEventStatus moves id from expected to next. False means the row
	// no longer had the expected status (someone else won).
	UpdateEventStatus(ctx context.Context, id string, expected, next models.EventStatus) (bool, error)

	// ClaimSettlement takes the settlement lease on an unsettled event. A
	// claim older than lease may be taken over.
	ClaimSettlement(ctx context.Context, id, claim string, now time.Time, lease time.Duration) (bool, error)
	// AwardPlacement records userID for place and applies credit in one unit,
	// only if the placement is still empty and claim is the current lease.
	// False means nothing was written.
	AwardPlacement(ctx context.Context, eventID, claim string, place models.Placement, userID string, credit *models.Transaction) (bool, error)
	// CompleteSettlement sets status=completed and settled=true for the
	// holder of claim. It is the final write of a settlement.
	CompleteSettlement(ctx context.Context, id, claim string) (bool, error)
	// ReleaseSettlement drops claim without completing, so the next scan can
	// retry at once instead of waiting out the lease.
	ReleaseSettlement(ctx context.Context, id, claim string) (bool, error)
	// ReleaseActiveEnrollments frees every user actively enrolled in eventID.
	ReleaseActiveEnrollments(ctx context.Context, eventID string) (int64, error)

	// Enroll debits, adds the participant and records the active enrollment
	// together, after prepare accepted the locked event.
	Enroll(ctx context.Context, userID, eventID string, prepare PrepareFunc) (*models.Event, *models.Transaction, error)
	// Withdraw undoes an enrollment: removes the participant and the active
	// enrollment and applies the entry prepare returns.
	Withdraw(ctx context.Context, userID, eventID string, prepare PrepareFunc) (*models.Event, *models.Transaction, error)

	FindUnarchivedSettlements(ctx context.Context, limit int) ([]models.Event, error)
	SetReceiptURL(ctx context.Context, id, url string) error
}

// WalletStore owns balances and the ledger.
type WalletStore interface {
	// CreateWallet creates a zero-balance wallet. Idempotent.
	CreateWallet(ctx context.Context, userID string) error
	GetWalletBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	// ApplyEntry inserts entry and moves the balance by its signed amount atomically.
	ApplyEntry(ctx context.Context, entry *models.Transaction) error
	// ListTransactions returns the newest entries first.
	ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error)
	LedgerTotals(ctx context.Context, userID string) (credits, debits decimal.Decimal, err error)
}

// PostStore is the read side of the post collaborator.
type PostStore interface {
	CreatePost(ctx context.Context, post *models.Post) error
	// FindPostsByEventAndUsers returns one row per post tagged to eventID
	// authored by one of userIDs, in storage order.
	FindPostsByEventAndUsers(ctx context.Context, eventID string, userIDs []string) ([]models.PostLikes, error)
}

// Store is everything the engine needs from persistence.
type Store interface {
	EventStore
	WalletStore
	PostStore
}

// IsClaimLive reports whether a settlement claim taken at claimedAt still
// holds at now.
func IsClaimLive(claim string, claimedAt *time.Time, now time.Time, lease time.Duration) bool {
	if claim == "" || claimedAt == nil {
		return false
	}
	return now.Before(claimedAt.Add(lease))
}
