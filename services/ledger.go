package services

import (
	"context"
	"strings"

	"artpriyo-settlement/models"
	"artpriyo-settlement/repository"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// Ledger is the only path by which a wallet balance changes.
type Ledger struct {
	Store repository.WalletStore
	Clock clockwork.Clock
}

func NewLedger(store repository.WalletStore, clock clockwork.Clock) *Ledger {
	return &Ledger{Store: store, Clock: clock}
}

// NewEntry validates and builds a ledger entry without applying it. An empty
// txID gets a random one.
func (l *Ledger) NewEntry(userID string, typ models.TransactionType, amount decimal.Decimal, title, eventID, txID string) (*models.Transaction, error) {
	if !typ.Valid() {
		return nil, kindError(ErrValidation, ErrInvalidType)
	}
	if !amount.IsPositive() {
		return nil, kindError(ErrValidation, ErrInvalidAmount)
	}
	if strings.TrimSpace(title) == "" {
		return nil, kindError(ErrValidation, ErrMissingTitle)
	}
	if txID == "" {
		txID = "TXN_" + uuid.NewString()
	}
	return &models.Transaction{
		ID:            uuid.NewString(),
		TransactionID: txID,
		UserID:        userID,
		Type:          typ,
		Amount:        amount,
		Title:         title,
		EventID:       eventID,
		Time:          l.Clock.Now().UTC(),
	}, nil
}

// ApplyEntry moves userID's balance by amount in direction typ and records
// the matching entry in one atomic step.
func (l *Ledger) ApplyEntry(ctx context.Context, userID string, typ models.TransactionType, amount decimal.Decimal, title string) (*models.Transaction, error) {
	entry, err := l.NewEntry(userID, typ, amount, title, "", "")
	if err != nil {
		return nil, err
	}
	if err := l.Store.ApplyEntry(ctx, entry); err != nil {
		return nil, translate(err)
	}
	return entry, nil
}

func (l *Ledger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	bal, err := l.Store.GetWalletBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, translate(err)
	}
	return bal, nil
}

// TransactionSummary totals a user's whole ledger.
type TransactionSummary struct {
	TotalCredit decimal.Decimal `json:"total_credit"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	NetAmount   decimal.Decimal `json:"net_amount"`
}

type TransactionHistory struct {
	Transactions []models.Transaction `json:"transactions"`
	Summary      TransactionSummary   `json:"summary"`
}

// Transactions returns the newest limit entries and the ledger totals.
func (l *Ledger) Transactions(ctx context.Context, userID string, limit int) (*TransactionHistory, error) {
	if _, err := l.Store.GetWalletBalance(ctx, userID); err != nil {
		return nil, translate(err)
	}
	txs, err := l.Store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	credits, debits, err := l.Store.LedgerTotals(ctx, userID)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	return &TransactionHistory{
		Transactions: txs,
		Summary: TransactionSummary{
			TotalCredit: credits,
			TotalDebit:  debits,
			NetAmount:   credits.Sub(debits),
		},
	}, nil
}

// Reconciliation compares a wallet with its ledger.
type Reconciliation struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
	Ledger  decimal.Decimal `json:"ledger"`
	Drift   decimal.Decimal `json:"drift"`
}

func (r Reconciliation) Balanced() bool { return r.Drift.IsZero() }

// Reconcile recomputes credits minus debits for userID and reports any
// difference from the stored balance.
func (l *Ledger) Reconcile(ctx context.Context, userID string) (*Reconciliation, error) {
	bal, err := l.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	credits, debits, err := l.Store.LedgerTotals(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum := credits.Sub(debits)
	return &Reconciliation{
		UserID:  userID,
		Balance: bal,
		Ledger:  sum,
		Drift:   bal.Sub(sum),
	}, nil
}
