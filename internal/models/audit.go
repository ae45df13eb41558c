package models

import (
	"encoding/json"
	"time"
)

type AuditAction string

const (
	AuditTransactionApproved AuditAction = "transaction_approved"
	AuditTransactionDeclined AuditAction = "transaction_declined"
	AuditTransactionRefunded AuditAction = "transaction_refunded"
)

// AuditEntry records one committed mutation. Entries are append-only: no
// update or delete path exists anywhere in the codebase. Before and After
// hold full serialized snapshots so an auditor can reconstruct state at any
// point without replaying history.
type AuditEntry struct {
	ID         string          `json:"id" db:"id"`
	ActorID    string          `json:"actor_id" db:"actor_id"`
	Action     AuditAction     `json:"action" db:"action"`
	TargetType string          `json:"target_type" db:"target_type"`
	TargetID   string          `json:"target_id" db:"target_id"`
	Before     json.RawMessage `json:"before" db:"before"`
	After      json.RawMessage `json:"after" db:"after"`
	Reason     string          `json:"reason,omitempty" db:"reason"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
