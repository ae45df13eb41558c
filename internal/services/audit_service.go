package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vaultadmin/backend/internal/models"
)

// AuditService appends and reads the immutable audit trail. It performs no
// authorization or validation of its own; by the time an append happens the
// mutation has already been authorized and validated upstream.
type AuditService struct {
	db *sql.DB
}

func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// AppendTx inserts one audit entry inside the caller's database transaction
// so the state change and its audit record commit or roll back together.
func (s *AuditService) AppendTx(ctx context.Context, dbTx *sql.Tx, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()

	_, err := dbTx.ExecContext(ctx, `
		INSERT INTO audit_entries
		(id, actor_id, action, target_type, target_id, before, after, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.ActorID, entry.Action, entry.TargetType, entry.TargetID,
		[]byte(entry.Before), []byte(entry.After), entry.Reason, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry for %s %s: %w", entry.TargetType, entry.TargetID, err)
	}

	return nil
}

// ListByTarget returns the audit entries for one target, newest first.
func (s *AuditService) ListByTarget(ctx context.Context, targetType, targetID string) ([]models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, action, target_type, target_id, before, after, COALESCE(reason, ''), created_at
		FROM audit_entries
		WHERE target_type = $1 AND target_id = $2
		ORDER BY created_at DESC
	`, targetType, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var entry models.AuditEntry
		var before, after []byte
		if err := rows.Scan(
			&entry.ID, &entry.ActorID, &entry.Action, &entry.TargetType, &entry.TargetID,
			&before, &after, &entry.Reason, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.Before = before
		entry.After = after
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
