package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"artpriyo-settlement/models"
	"artpriyo-settlement/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// JoinResult is what a successful join hands back to the caller.
type JoinResult struct {
	Event       *models.Event       `json:"event"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
}

// EnrollmentService admits users into events. All checks run against the
// locked event row inside the store, so joins serialise with settlement.
type EnrollmentService struct {
	Store   repository.EventStore
	Ledger  *Ledger
	Ref     *ReferenceClock
	Codes   *CodeStore
	Metrics *Metrics
	Log     zerolog.Logger
}

func NewEnrollmentService(store repository.EventStore, ledger *Ledger, ref *ReferenceClock, codes *CodeStore, metrics *Metrics, log zerolog.Logger) *EnrollmentService {
	return &EnrollmentService{
		Store:   store,
		Ledger:  ledger,
		Ref:     ref,
		Codes:   codes,
		Metrics: metrics,
		Log:     log,
	}
}

// JoinEvent debits the entry fee, adds userID to the event and records the
// event as the user's active enrollment, all or nothing.
func (s *EnrollmentService) JoinEvent(ctx context.Context, userID, eventID, paymentRef string) (*JoinResult, error) {
	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" || !s.Codes.Remember(paymentRef) {
		s.Metrics.joinResult("invalid_payment")
		return nil, kindError(ErrValidation, ErrInvalidPayment)
	}

	prepare := func(ev *models.Event) (*models.Transaction, error) {
		if ev.Status == models.EventStatusCompleted || ev.Settled || ev.SettlementClaim != "" {
			return nil, kindError(ErrConflict, ErrEventClosed)
		}
		if s.Ref.Window(ev) == WindowAfter {
			return nil, kindError(ErrConflict, ErrEventClosed)
		}
		if !ev.EntryFee.IsPositive() {
			return nil, nil
		}
		return s.Ledger.NewEntry(
			userID,
			models.TransactionDebit,
			ev.EntryFee,
			fmt.Sprintf("Entry Fee - %s", ev.Name),
			ev.ID,
			"FEE_"+uuid.NewString(),
		)
	}

	ev, entry, err := s.Store.Enroll(ctx, userID, eventID, prepare)
	if err != nil {
		err = translate(err)
		if errors.Is(err, ErrInconsistent) {
			// The reference stays burned: the debit may have landed.
			s.Log.Error().Err(err).
				Str("user_id", userID).
				Str("event_id", eventID).
				Str("payment_ref", paymentRef).
				Msg("❌ join commit failed after writes, manual reconciliation required")
			s.Metrics.joinResult("inconsistent")
			return nil, err
		}
		s.Codes.Forget(paymentRef)
		s.Metrics.joinResult(joinOutcome(err))
		return nil, err
	}

	s.Metrics.joinResult("ok")
	s.Log.Info().
		Str("user_id", userID).
		Str("event_id", ev.ID).
		Int("participants", len(ev.Participants)).
		Msgf("✅ user joined %s", ev.Name)
	return &JoinResult{Event: ev, Transaction: entry}, nil
}

// LeaveEvent withdraws userID from an event that has not started yet and
// refunds the entry fee with an offsetting credit.
func (s *EnrollmentService) LeaveEvent(ctx context.Context, userID, eventID string) (*JoinResult, error) {
	prepare := func(ev *models.Event) (*models.Transaction, error) {
		if ev.Status != models.EventStatusUpcoming || ev.SettlementClaim != "" || s.Ref.Window(ev) != WindowBefore {
			return nil, kindError(ErrConflict, ErrLeaveClosed)
		}
		if !ev.EntryFee.IsPositive() {
			return nil, nil
		}
		return s.Ledger.NewEntry(
			userID,
			models.TransactionCredit,
			ev.EntryFee,
			fmt.Sprintf("Refund - %s", ev.Name),
			ev.ID,
			"REFUND_"+uuid.NewString(),
		)
	}

	ev, entry, err := s.Store.Withdraw(ctx, userID, eventID, prepare)
	if err != nil {
		err = translate(err)
		if errors.Is(err, ErrInconsistent) {
			s.Log.Error().Err(err).
				Str("user_id", userID).
				Str("event_id", eventID).
				Msg("❌ leave commit failed after writes, manual reconciliation required")
		}
		return nil, err
	}
	s.Log.Info().
		Str("user_id", userID).
		Str("event_id", ev.ID).
		Msgf("👋 user left %s", ev.Name)
	return &JoinResult{Event: ev, Transaction: entry}, nil
}

func joinOutcome(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
