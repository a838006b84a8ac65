package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"artpriyo-settlement/models"
	"artpriyo-settlement/repository"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

// 2026-03-10 12:00 IST
var baseNow = time.Date(2026, 3, 10, 12, 0, 0, 0, ist)

type harness struct {
	ctx        context.Context
	store      *repository.MemoryStore
	clock      *clockwork.FakeClock
	ref        *ReferenceClock
	ledger     *Ledger
	ranker     *Ranker
	lifecycle  *LifecycleService
	enrollment *EnrollmentService
	events     *EventService
	codes      *CodeStore

	refs atomic.Int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := repository.NewMemoryStore()
	return newHarnessWith(t, store, store)
}

// newHarnessWith lets a test swap the post store the ranker reads.
func newHarnessWith(t *testing.T, store *repository.MemoryStore, posts repository.PostStore) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(baseNow)
	ref := NewReferenceClock(clock, ist)
	log := zerolog.Nop()
	ledger := NewLedger(store, clock)
	ranker := NewRanker(posts, store)
	dist := NewDistributor(store, ledger, log)
	codes := NewCodeStore(clock, 10*time.Minute)
	t.Cleanup(codes.Close)

	return &harness{
		ctx:        context.Background(),
		store:      store,
		clock:      clock,
		ref:        ref,
		ledger:     ledger,
		ranker:     ranker,
		lifecycle:  NewLifecycleService(store, ranker, dist, ref, 5*time.Minute, 4, nil, log),
		enrollment: NewEnrollmentService(store, ledger, ref, codes, nil, log),
		events:     NewEventService(store, ref, log),
		codes:      codes,
	}
}

func day(s string) datatypes.Date {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return datatypes.Date(t)
}

func amt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func (h *harness) event(t *testing.T, name string, pool, fee int64, start, end string) *models.Event {
	t.Helper()
	ev := &models.Event{
		Name:      name,
		EntryFee:  amt(fee),
		PrizePool: amt(pool),
		StartDate: day(start),
		EndDate:   day(end),
		Status:    models.EventStatusUpcoming,
	}
	require.NoError(t, h.store.CreateEvent(h.ctx, ev))
	return ev
}

// wallet creates userID with an opening balance booked through the ledger.
func (h *harness) wallet(t *testing.T, userID string, opening int64) {
	t.Helper()
	require.NoError(t, h.store.CreateWallet(h.ctx, userID))
	if opening > 0 {
		_, err := h.ledger.ApplyEntry(h.ctx, userID, models.TransactionCredit, amt(opening), "Top up")
		require.NoError(t, err)
	}
}

func (h *harness) nextRef() string {
	return fmt.Sprintf("pay_%d", h.refs.Add(1))
}

func (h *harness) join(t *testing.T, userID string, ev *models.Event) {
	t.Helper()
	_, err := h.enrollment.JoinEvent(h.ctx, userID, ev.ID, h.nextRef())
	require.NoError(t, err)
}

// seat adds a participant without any checks or fee, for events that are
// already past their window.
func (h *harness) seat(t *testing.T, userID string, ev *models.Event) {
	t.Helper()
	_, _, err := h.store.Enroll(h.ctx, userID, ev.ID, func(*models.Event) (*models.Transaction, error) { return nil, nil })
	require.NoError(t, err)
}

func (h *harness) post(t *testing.T, ev *models.Event, userID string, likes int64) {
	t.Helper()
	require.NoError(t, h.store.CreatePost(h.ctx, &models.Post{EventID: ev.ID, UserID: userID, Likes: likes}))
}

func (h *harness) balance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	bal, err := h.ledger.Balance(h.ctx, userID)
	require.NoError(t, err)
	return bal
}

func (h *harness) reload(t *testing.T, ev *models.Event) *models.Event {
	t.Helper()
	got, err := h.store.GetEvent(h.ctx, ev.ID)
	require.NoError(t, err)
	return got
}

func (h *harness) days(n int) {
	h.clock.Advance(time.Duration(n) * 24 * time.Hour)
}

func (h *harness) scan(t *testing.T) *ScanReport {
	t.Helper()
	report, err := h.lifecycle.RunLifecycleScan(h.ctx)
	require.NoError(t, err)
	return report
}

func (h *harness) requireBalanced(t *testing.T, userIDs ...string) {
	t.Helper()
	for _, id := range userIDs {
		rec, err := h.ledger.Reconcile(h.ctx, id)
		require.NoError(t, err)
		require.Truef(t, rec.Balanced(), "wallet %s drifted: balance %s ledger %s", id, rec.Balance, rec.Ledger)
	}
}

func requireDecimal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, amt(want).Equal(got), "want %d, got %s", want, got)
}

func winner(t *testing.T, w models.Winners, p models.Placement) string {
	t.Helper()
	id, ok := w.Get(p)
	require.Truef(t, ok, "%s place unset", p.Label())
	return id
}
