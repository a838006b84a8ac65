package services

import (
	"sync"
	"testing"

	"artpriyo-settlement/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinEventDebitsFee(t *testing.T) {
	h := newHarness(t)
	ev := h.event(t, "Portraits", 500, 50, "2026-03-11", "2026-03-15")
	h.wallet(t, "u1", 80)

	res, err := h.enrollment.JoinEvent(h.ctx, "u1", ev.ID, "pay_1")
	require.NoError(t, err)

	require.NotNil(t, res.Transaction)
	assert.Equal(t, models.TransactionDebit, res.Transaction.Type)
	assert.Equal(t, "Entry Fee - Portraits", res.Transaction.Title)
	assert.Equal(t, ev.ID, res.Transaction.EventID)
	requireDecimal(t, 50, res.Transaction.Amount)
	assert.Equal(t, []string{"u1"}, res.Event.ParticipantIDs())
	requireDecimal(t, 30, h.balance(t, "u1"))
	h.requireBalanced(t, "u1")
}

func TestJoinEventAllowsOverdraft(t *testing.T) {
	h := newHarness(t)
	ev := h.event(t, "Pricey", 0, 50, "2026-03-10", "2026-03-15")
	h.wallet(t, "broke", 0)

	h.join(t, "broke", ev)

	requireDecimal(t, -50, h.balance(t, "broke"))
	h.requireBalanced(t, "broke")
}

func TestJoinFreeEventWritesNoLedgerEntry(t *testing.T) {
	h := newHarness(t)
	ev := h.event(t, "Free", 0, 0, "2026-03-10", "2026-03-15")
	h.wallet(t, "u1", 0)
	before := h.store.LedgerSize()

	res, err := h.enrollment.JoinEvent(h.ctx, "u1", ev.ID, "pay_free")
	require.NoError(t, err)

	assert.Nil(t, res.Transaction)
	assert.Equal(t, before, h.store.LedgerSize())
}

func TestJoinWhileEnrolledElsewhereConflicts(t *testing.T) {
	h := newHarness(t)
	first := h.event(t, "First", 0, 10, "2026-03-10", "2026-03-15")
	second := h.event(t, "Second", 0, 10, "2026-03-10", "2026-03-15")
	h.wallet(t, "u1", 100)
	h.join(t, "u1", first)
	size := h.store.LedgerSize()

	_, err := h.enrollment.JoinEvent(h.ctx, "u1", second.ID, "pay_dup")

	require.ErrorIs(t, err, ErrConflict)
	requireDecimal(t, 90, h.balance(t, "u1"))
	assert.Equal(t, size, h.store.LedgerSize())
	assert.Empty(t, h.reload(t, second).Participants)
}

func TestJoinRejections(t *testing.T) {
	h := newHarness(t)
	open := h.event(t, "Open", 0, 10, "2026-03-10", "2026-03-15")
	ended := h.event(t, "Ended", 0, 10, "2026-03-01", "2026-03-09")
	h.wallet(t, "u1", 100)

	cases := []struct {
		name     string
		user     string
		event    string
		ref      string
		kind     error
		specific error
	}{
		{"missing payment ref", "u1", open.ID, "  ", ErrValidation, ErrInvalidPayment},
		{"unknown event", "u1", "nope", "pay_a", ErrNotFound, ErrEventNotFound},
		{"unknown user", "ghost", open.ID, "pay_b", ErrNotFound, ErrUserNotFound},
		{"event already ended", "u1", ended.ID, "pay_c", ErrConflict, ErrEventClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.enrollment.JoinEvent(h.ctx, tc.user, tc.event, tc.ref)
			require.ErrorIs(t, err, tc.kind)
			require.ErrorIs(t, err, tc.specific)
		})
	}
	requireDecimal(t, 100, h.balance(t, "u1"))
	assert.Empty(t, h.reload(t, open).Participants)
}

func TestJoinCompletedEventConflicts(t *testing.T) {
	h := newHarness(t)
	ev := h.event(t, "Done", 0, 0, "2026-03-10", "2026-03-10")
	h.wallet(t, "a", 0)
	h.wallet(t, "b", 0)
	h.join(t, "a", ev)
	h.days(1)
	h.scan(t)

	_, err := h.enrollment.JoinEvent(h.ctx, "b", ev.ID, "pay_late")
	require.ErrorIs(t, err, ErrEventClosed)
}

func TestJoinSameEventTwiceConflicts(t *testing.T) {
	h := newHarness(t)
	ev := h.event(t, "Once", 0, 10, "2026-03-10", "2026-03-15")
	h.wallet(t, "u1", 100)
	h.join(t, "u1", ev)

	_, err := h.enrollment.JoinEvent(h.ctx, "u1", ev.ID, "pay_again")

	require.ErrorIs(t, err, ErrConflict)
	assert.Len(t, h.reload(t, ev).Participants, 1)
}

func TestPaymentRefCannotBeReplayed(t *testing.T) {
	h := newHarness(t)
	a := h.event(t, "A", 0, 10, "2026-03-10", "2026-03-15")
	h.wallet(t, "u1", 100)
	h.wallet(t, "u2", 100)

	_, err := h.enrollment.JoinEvent(h.ctx, "u1", a.ID, "pay_shared")
	require.NoError(t, err)

	_, err = h.enrollment.JoinEvent(h.ctx, "u2", a.ID, "pay_shared")
	require.ErrorIs(t, err, ErrInvalidPayment)
	requireDecimal(t, 100, h.balance(t, "u2"))
}

func TestFailedJoinReleasesPaymentRef(t *testing.T) {
	h := newHarness(t)
	a := h.event(t, "A", 0, 10, "2026-03-10", "2026-03-15")

	_, err := h.enrollment.JoinEvent(h.ctx, "ghost", a.ID, "pay_retry")
	require.ErrorIs(t, err, ErrUserNotFound)

	h.wallet(t, "ghost", 10)
	_, err = h.enrollment.JoinEvent(h.ctx, "ghost", a.ID, "pay_retry")
	require.NoError(t, err)
}

func TestConcurrentJoinsAcrossEventsOneWins(t *testing.T) {
	h := newHarness(t)
	a := h.event(t, "A", 0, 10, "2026-03-10", "2026-03-15")
	b := h.event(t, "B", 0, 10, "2026-03-10", "2026-03-15")
	h.wallet(t, "u1", 100)

	for round := 0; round < 20; round++ {
		u := "racer" + string(rune('a'+round))
		h.wallet(t, u, 100)

		var (
			wg   sync.WaitGroup
			errs [2]error
		)
		for i, ev := range []*models.Event{a, b} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = h.enrollment.JoinEvent(h.ctx, u, ev.ID, h.nextRef())
			}()
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
			} else {
				assert.ErrorIs(t, err, ErrConflict)
			}
		}
		assert.Equal(t, 1, ok, "exactly one join succeeds")
		requireDecimal(t, 90, h.balance(t, u))
		h.requireBalanced(t, u)
	}
}

func TestLeaveEventRefundsFee(t *testing.T) {
	h := newHarness(t)
	ev := h.event(t, "Later", 0, 25, "2026-03-12", "2026-03-15")
	other := h.event(t, "Other", 0, 0, "2026-03-10", "2026-03-15")
	h.wallet(t, "u1", 100)
	h.join(t, "u1", ev)

	res, err := h.enrollment.LeaveEvent(h.ctx, "u1", ev.ID)
	require.NoError(t, err)

	require.NotNil(t, res.Transaction)
	assert.Equal(t, models.TransactionCredit, res.Transaction.Type)
	assert.Equal(t, "Refund - Later", res.Transaction.Title)
	assert.Empty(t, res.Event.Participants)
	requireDecimal(t, 100, h.balance(t, "u1"))
	h.requireBalanced(t, "u1")

	h.join(t, "u1", other)
}

func TestLeaveAfterStartConflicts(t *testing.T) {
	h := newHarness(t)
	ev := h.event(t, "Running", 0, 25, "2026-03-10", "2026-03-15")
	h.wallet(t, "u1", 100)
	h.join(t, "u1", ev)

	_, err := h.enrollment.LeaveEvent(h.ctx, "u1", ev.ID)
	require.ErrorIs(t, err, ErrConflict)
	require.ErrorIs(t, err, ErrLeaveClosed)

	_, err = h.enrollment.LeaveEvent(h.ctx, "u2", ev.ID)
	require.ErrorIs(t, err, ErrConflict)
}
