package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

type TransactionStatus string

const (
	TypeDeposit      TransactionType = "deposit"
	TypeWithdrawal   TransactionType = "withdrawal"
	TypeTrade        TransactionType = "trade"
	TypeSubscription TransactionType = "subscription"

	StatusPending  TransactionStatus = "pending"
	StatusApproved TransactionStatus = "approved"
	StatusDeclined TransactionStatus = "declined"
	StatusRefunded TransactionStatus = "refunded"
)

// Metadata is the free-form key/value blob stored as JSONB alongside a
// transaction. Admin notes and processor identifiers accumulate here across
// updates.
type Metadata map[string]any

// Merge layers incoming on top of m: every existing key survives unless
// incoming sets the same key. Neither input is modified.
func (m Metadata) Merge(incoming Metadata) Metadata {
	merged := make(Metadata, len(m)+len(incoming))
	for k, v := range m {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}

// Scan tolerates NULL and malformed legacy values by falling back to an
// empty map, so historical rows with a bad blob stay updatable.
func (m *Metadata) Scan(src any) error {
	*m = Metadata{}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return nil
	}
	var parsed Metadata
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed == nil {
		return nil
	}
	*m = parsed
	return nil
}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		m = Metadata{}
	}
	return json.Marshal(m)
}

// Transaction is a financial platform transaction under administrative
// review. It is created upstream in status pending and mutated only through
// the transaction service.
type Transaction struct {
	ID          string            `json:"id" db:"id"`
	UserID      string            `json:"user_id" db:"user_id"`
	Type        TransactionType   `json:"type" db:"type"`
	Amount      decimal.Decimal   `json:"amount" db:"amount"`
	Asset       string            `json:"asset" db:"asset"`
	Status      TransactionStatus `json:"status" db:"status"`
	ReferenceID string            `json:"reference_id,omitempty" db:"reference_id"`
	Metadata    Metadata          `json:"metadata" db:"metadata"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time        `json:"processed_at" db:"processed_at"`
}

// Refundable reports whether the transaction type is eligible for the
// refund path at all. Trades and subscriptions never are.
func (t TransactionType) Refundable() bool {
	return t == TypeDeposit || t == TypeWithdrawal
}
