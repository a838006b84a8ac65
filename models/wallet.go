// models/wallet.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a ledger entry.
type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// Valid reports whether t is credit or debit.
func (t TransactionType) Valid() bool {
	return t == TransactionCredit || t == TransactionDebit
}

// Signed returns amount with the sign this direction applies to a balance.
func (t TransactionType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t == TransactionDebit {
		return amount.Neg()
	}
	return amount
}

// Wallet is the per-user balance. It only changes together with a ledger insert.
type Wallet struct {
	UserID    string          `json:"user_id" gorm:"primaryKey"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:numeric(18,2);not null;default:0"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// Transaction is an immutable ledger entry. Never updated, never deleted.
type Transaction struct {
	ID            string          `json:"id" gorm:"primaryKey"`
	TransactionID string          `json:"transaction_id" gorm:"not null;uniqueIndex"` // business key, e.g. WIN_<event>_<place>
	UserID        string          `json:"user_id" gorm:"not null;index"`
	Type          TransactionType `json:"type" gorm:"type:varchar(8);not null"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:numeric(18,2);not null"`
	Title         string          `json:"title" gorm:"not null"`
	EventID       string          `json:"event_id,omitempty" gorm:"index"`
	Time          time.Time       `json:"time" gorm:"not null;index"`
}
