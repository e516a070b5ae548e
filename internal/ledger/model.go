package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type CreditClass string

type EntryKind string

const (
	ClassFree CreditClass = "free"
	ClassPaid CreditClass = "paid"

	KindBonus    EntryKind = "bonus"
	KindPurchase EntryKind = "purchase"
	KindSpend    EntryKind = "spend"
	KindRefund   EntryKind = "refund"
	KindExpiry   EntryKind = "expiry"
)

const (
	// WelcomeBonusCredits is granted once, on first access to an account's balance.
	WelcomeBonusCredits = 10
	// WelcomeBonusMonths is how long welcome credits stay spendable.
	WelcomeBonusMonths = 3
)

// Balance is the per-account aggregate. TotalBalance always equals
// FreeCredits + PaidCredits.
type Balance struct {
	AccountID      int        `db:"account_id" json:"account_id"`
	TotalBalance   int        `db:"total_balance" json:"total_balance"`
	FreeCredits    int        `db:"free_credits" json:"free_credits"`
	PaidCredits    int        `db:"paid_credits" json:"paid_credits"`
	LifetimeEarned int        `db:"lifetime_earned" json:"lifetime_earned"`
	LifetimeSpent  int        `db:"lifetime_spent" json:"lifetime_spent"`
	LastPurchaseAt *time.Time `db:"last_purchase_at" json:"last_purchase_at,omitempty"`
	LastSpendAt    *time.Time `db:"last_spend_at" json:"last_spend_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Entry is one append-only ledger row. History is immutable except for
// RemainingAmount, which only ever decreases.
type Entry struct {
	ID              int64       `db:"id" json:"id"`
	AccountID       int         `db:"account_id" json:"account_id"`
	Kind            EntryKind   `db:"kind" json:"kind"`
	CreditClass     CreditClass `db:"credit_class" json:"credit_class"`
	Amount          int         `db:"amount" json:"amount"`
	BalanceBefore   int         `db:"balance_before" json:"balance_before"`
	BalanceAfter    int         `db:"balance_after" json:"balance_after"`
	Description     string      `db:"description" json:"description"`
	ExpiresAt       *time.Time  `db:"expires_at" json:"expires_at,omitempty"`
	RemainingAmount int         `db:"remaining_amount" json:"remaining_amount"`
	Metadata        Metadata    `db:"metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
}

// IsEarning reports whether the entry added credits and can serve as a FIFO lot.
func (e *Entry) IsEarning() bool {
	return e.Kind == KindBonus || e.Kind == KindPurchase || e.Kind == KindRefund
}

// ExpiryResult summarizes one sweeper pass.
type ExpiryResult struct {
	ExpiredEntries int `json:"expired_entries"`
	TotalExpired   int `json:"total_expired"`
}

// Metadata is opaque correlation data stored as JSONB.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("metadata: unsupported scan type")
	}
	return json.Unmarshal(data, m)
}
