package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"artpriyo-settlement/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store. Every composite operation holds the
// key locks of the event and user rows it touches for its whole duration,
// mirroring the row locks the Postgres store takes. mu only guards the maps
// and row contents during short read and write phases; it is never held
// across a PrepareFunc, so a slow prepare on one event or user does not
// stall the others.
type MemoryStore struct {
	locks *keyedLocker

	mu           sync.RWMutex
	events       map[string]*models.Event
	active       map[string]string // userID → eventID
	wallets      map[string]decimal.Decimal
	ledger       []models.Transaction
	ledgerKeys   map[string]struct{}
	posts        []models.Post
	participants int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:      newKeyedLocker(),
		events:     make(map[string]*models.Event),
		active:     make(map[string]string),
		wallets:    make(map[string]decimal.Decimal),
		ledgerKeys: make(map[string]struct{}),
	}
}

var _ Store = (*MemoryStore)(nil)

func eventKey(id string) string { return "event:" + id }
func userKey(id string) string  { return "user:" + id }

// --- events ---

func (m *MemoryStore) CreateEvent(_ context.Context, ev *models.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Status == "" {
		ev.Status = models.EventStatusUpcoming
	}
	now := time.Now()
	ev.CreatedAt, ev.UpdatedAt = now, now

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[ev.ID]; ok {
		return fmt.Errorf("event %s already exists", ev.ID)
	}
	m.events[ev.ID] = cloneEvent(ev)
	return nil
}

func (m *MemoryStore) GetEvent(_ context.Context, id string) (*models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEvent(ev), nil
}

func (m *MemoryStore) FindEventsByStatus(_ context.Context, statuses ...models.EventStatus) ([]models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Event
	for _, ev := range m.events {
		if slices.Contains(statuses, ev.Status) {
			out = append(out, *cloneEvent(ev))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateEventStatus(_ context.Context, id string, expected, next models.EventStatus) (bool, error) {
	unlock := m.locks.lock(eventKey(id))
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return false, ErrNotFound
	}
	if ev.Status != expected {
		return false, nil
	}
	ev.Status = next
	ev.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) ClaimSettlement(_ context.Context, id, claim string, now time.Time, lease time.Duration) (bool, error) {
	unlock := m.locks.lock(eventKey(id))
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return false, ErrNotFound
	}
	if ev.Settled || ev.Status == models.EventStatusCompleted {
		return false, nil
	}
	if IsClaimLive(ev.SettlementClaim, ev.SettlementClaimedAt, now, lease) {
		return false, nil
	}
	at := now
	ev.SettlementClaim = claim
	ev.SettlementClaimedAt = &at
	return true, nil
}

func (m *MemoryStore) AwardPlacement(_ context.Context, eventID, claim string, place models.Placement, userID string, credit *models.Transaction) (bool, error) {
	unlock := m.locks.lock(eventKey(eventID), userKey(userID))
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return false, ErrNotFound
	}
	if ev.Settled || ev.SettlementClaim != claim {
		return false, nil
	}
	if _, taken := ev.Winners().Get(place); taken {
		return false, nil
	}
	if credit != nil {
		if err := m.applyLocked(credit); err != nil {
			return false, err
		}
	}
	ev.SetWinner(place, userID)
	ev.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) CompleteSettlement(_ context.Context, id, claim string) (bool, error) {
	unlock := m.locks.lock(eventKey(id))
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return false, ErrNotFound
	}
	if ev.Settled || ev.SettlementClaim != claim || ev.Status == models.EventStatusCompleted {
		return false, nil
	}
	ev.Status = models.EventStatusCompleted
	ev.Settled = true
	ev.SettlementClaim = ""
	ev.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) ReleaseSettlement(_ context.Context, id, claim string) (bool, error) {
	unlock := m.locks.lock(eventKey(id))
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return false, ErrNotFound
	}
	if ev.Settled || ev.SettlementClaim != claim {
		return false, nil
	}
	ev.SettlementClaim = ""
	ev.SettlementClaimedAt = nil
	return true, nil
}

func (m *MemoryStore) ReleaseActiveEnrollments(_ context.Context, eventID string) (int64, error) {
	unlock := m.locks.lock(eventKey(eventID))
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for userID, evID := range m.active {
		if evID == eventID {
			delete(m.active, userID)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Enroll(_ context.Context, userID, eventID string, prepare PrepareFunc) (*models.Event, *models.Transaction, error) {
	unlock := m.locks.lock(eventKey(eventID), userKey(userID))
	defer unlock()

	// The key locks keep the event row and the user's state fixed between
	// the snapshot and the write below.
	snapshot, err := m.snapshot(eventID, func(ev *models.Event) error {
		if _, ok := m.wallets[userID]; !ok {
			return ErrUserNotFound
		}
		if _, ok := m.active[userID]; ok || ev.HasParticipant(userID) {
			return ErrAlreadyEnrolled
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	entry, err := prepare(snapshot)
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if entry != nil {
		if err := m.applyLocked(entry); err != nil {
			return nil, nil, err
		}
	}
	ev := m.events[eventID]
	m.participants++
	ev.Participants = append(ev.Participants, models.EventParticipant{
		ID:       uuid.NewString(),
		EventID:  eventID,
		UserID:   userID,
		Seq:      m.participants,
		JoinedAt: time.Now(),
	})
	m.active[userID] = eventID
	return cloneEvent(ev), entry, nil
}

func (m *MemoryStore) Withdraw(_ context.Context, userID, eventID string, prepare PrepareFunc) (*models.Event, *models.Transaction, error) {
	unlock := m.locks.lock(eventKey(eventID), userKey(userID))
	defer unlock()

	snapshot, err := m.snapshot(eventID, func(ev *models.Event) error {
		if !ev.HasParticipant(userID) {
			return ErrNotEnrolled
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	entry, err := prepare(snapshot)
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if entry != nil {
		if err := m.applyLocked(entry); err != nil {
			return nil, nil, err
		}
	}
	ev := m.events[eventID]
	ev.Participants = slices.DeleteFunc(ev.Participants, func(p models.EventParticipant) bool {
		return p.UserID == userID
	})
	delete(m.active, userID)
	return cloneEvent(ev), entry, nil
}

// snapshot runs check against the stored event under a read lock and
// returns a copy of it. The caller must hold the event key lock.
func (m *MemoryStore) snapshot(eventID string, check func(ev *models.Event) error) (*models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	if err := check(ev); err != nil {
		return nil, err
	}
	return cloneEvent(ev), nil
}

func (m *MemoryStore) FindUnarchivedSettlements(_ context.Context, limit int) ([]models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Event
	for _, ev := range m.events {
		if ev.Settled && ev.ReceiptURL == "" {
			out = append(out, *cloneEvent(ev))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) SetReceiptURL(_ context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return ErrNotFound
	}
	ev.ReceiptURL = url
	return nil
}

// --- wallets & ledger ---

func (m *MemoryStore) CreateWallet(_ context.Context, userID string) error {
	unlock := m.locks.lock(userKey(userID))
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.wallets[userID]; !ok {
		m.wallets[userID] = decimal.Zero
	}
	return nil
}

func (m *MemoryStore) GetWalletBalance(_ context.Context, userID string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bal, ok := m.wallets[userID]
	if !ok {
		return decimal.Zero, ErrUserNotFound
	}
	return bal, nil
}

func (m *MemoryStore) ApplyEntry(_ context.Context, entry *models.Transaction) error {
	unlock := m.locks.lock(userKey(entry.UserID))
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(entry)
}

// applyLocked requires m.mu and the user key lock.
func (m *MemoryStore) applyLocked(entry *models.Transaction) error {
	bal, ok := m.wallets[entry.UserID]
	if !ok {
		return ErrUserNotFound
	}
	if _, dup := m.ledgerKeys[entry.TransactionID]; dup {
		return ErrDuplicateTransaction
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	m.wallets[entry.UserID] = bal.Add(entry.Type.Signed(entry.Amount))
	m.ledger = append(m.ledger, *entry)
	m.ledgerKeys[entry.TransactionID] = struct{}{}
	return nil
}

func (m *MemoryStore) ListTransactions(_ context.Context, userID string, limit int) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Transaction
	for i := len(m.ledger) - 1; i >= 0; i-- {
		if m.ledger[i].UserID != userID {
			continue
		}
		out = append(out, m.ledger[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) LedgerTotals(_ context.Context, userID string) (decimal.Decimal, decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	credits, debits := decimal.Zero, decimal.Zero
	for _, tx := range m.ledger {
		if tx.UserID != userID {
			continue
		}
		switch tx.Type {
		case models.TransactionCredit:
			credits = credits.Add(tx.Amount)
		case models.TransactionDebit:
			debits = debits.Add(tx.Amount)
		}
	}
	return credits, debits, nil
}

// LedgerSize returns the total number of ledger entries.
func (m *MemoryStore) LedgerSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ledger)
}

// --- posts ---

func (m *MemoryStore) CreatePost(_ context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, *post)
	return nil
}

func (m *MemoryStore) FindPostsByEventAndUsers(_ context.Context, eventID string, userIDs []string) ([]models.PostLikes, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.PostLikes
	for _, p := range m.posts {
		if p.EventID == eventID && slices.Contains(userIDs, p.UserID) {
			out = append(out, models.PostLikes{UserID: p.UserID, LikeCount: p.Likes})
		}
	}
	return out, nil
}

func cloneEvent(ev *models.Event) *models.Event {
	c := *ev
	c.Participants = slices.Clone(ev.Participants)
	c.FirstPlaceUserID = cloneString(ev.FirstPlaceUserID)
	c.SecondPlaceUserID = cloneString(ev.SecondPlaceUserID)
	c.ThirdPlaceUserID = cloneString(ev.ThirdPlaceUserID)
	if ev.SettlementClaimedAt != nil {
		at := *ev.SettlementClaimedAt
		c.SettlementClaimedAt = &at
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// keyedLocker hands out one mutex per key. Keys are always taken in sorted
// order so multi-key callers cannot deadlock.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*refMutex)}
}

func (k *keyedLocker) lock(keys ...string) (unlock func()) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*refMutex, 0, len(keys))
	for _, key := range keys {
		k.mu.Lock()
		m, ok := k.locks[key]
		if !ok {
			m = &refMutex{}
			k.locks[key] = m
		}
		m.refs++
		k.mu.Unlock()

		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, keys[i])
			}
			k.mu.Unlock()
		}
	}
}
