package services

import (
	"sync"
	"testing"

	"artpriyo-settlement/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEntryMovesBalance(t *testing.T) {
	h := newHarness(t)
	h.wallet(t, "u1", 0)

	tx, err := h.ledger.ApplyEntry(h.ctx, "u1", models.TransactionCredit, amt(120), "Top up")
	require.NoError(t, err)
	assert.NotEmpty(t, tx.TransactionID)
	assert.Equal(t, h.clock.Now().UTC(), tx.Time)

	_, err = h.ledger.ApplyEntry(h.ctx, "u1", models.TransactionDebit, amt(200), "Entry Fee - X")
	require.NoError(t, err)

	requireDecimal(t, -80, h.balance(t, "u1"))
	h.requireBalanced(t, "u1")
}

func TestApplyEntryRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	h.wallet(t, "u1", 0)

	cases := []struct {
		name   string
		typ    models.TransactionType
		amount decimal.Decimal
		title  string
		want   error
	}{
		{"zero amount", models.TransactionCredit, decimal.Zero, "t", ErrInvalidAmount},
		{"negative amount", models.TransactionDebit, amt(-5), "t", ErrInvalidAmount},
		{"unknown type", models.TransactionType("refund"), amt(5), "t", ErrInvalidType},
		{"blank title", models.TransactionCredit, amt(5), " ", ErrMissingTitle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.ledger.ApplyEntry(h.ctx, "u1", tc.typ, tc.amount, tc.title)
			require.ErrorIs(t, err, ErrValidation)
			require.ErrorIs(t, err, tc.want)
		})
	}
	requireDecimal(t, 0, h.balance(t, "u1"))
	assert.Equal(t, 0, h.store.LedgerSize())
}

func TestApplyEntryUnknownUser(t *testing.T) {
	h := newHarness(t)

	_, err := h.ledger.ApplyEntry(h.ctx, "ghost", models.TransactionCredit, amt(5), "Top up")

	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestConcurrentEntriesKeepInvariant(t *testing.T) {
	h := newHarness(t)
	users := []string{"a", "b", "c"}
	for _, u := range users {
		h.wallet(t, u, 0)
	}

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := users[i%len(users)]
			typ := models.TransactionCredit
			if i%2 == 1 {
				typ = models.TransactionDebit
			}
			_, err := h.ledger.ApplyEntry(h.ctx, u, typ, amt(int64(i+1)), "load")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	h.requireBalanced(t, users...)
	assert.Equal(t, 60, h.store.LedgerSize())
}

func TestTransactionsSummary(t *testing.T) {
	h := newHarness(t)
	h.wallet(t, "u1", 0)
	for _, e := range []struct {
		typ models.TransactionType
		amt int64
	}{
		{models.TransactionCredit, 100},
		{models.TransactionDebit, 30},
		{models.TransactionCredit, 5},
	} {
		_, err := h.ledger.ApplyEntry(h.ctx, "u1", e.typ, amt(e.amt), "entry")
		require.NoError(t, err)
	}

	hist, err := h.ledger.Transactions(h.ctx, "u1", 2)
	require.NoError(t, err)

	require.Len(t, hist.Transactions, 2)
	requireDecimal(t, 5, hist.Transactions[0].Amount)
	requireDecimal(t, 105, hist.Summary.TotalCredit)
	requireDecimal(t, 30, hist.Summary.TotalDebit)
	requireDecimal(t, 75, hist.Summary.NetAmount)
}
