package services

import (
	"time"

	"github.com/vaultadmin/backend/internal/auth"
	"github.com/vaultadmin/backend/internal/models"
)

type transitionKey struct {
	from   models.TransactionStatus
	action auth.Action
}

// transitions is the complete edge set of the transaction lifecycle.
// Declined and refunded have no outgoing edges, so post-terminal mutation
// and double-approval are impossible by construction.
var transitions = map[transitionKey]models.TransactionStatus{
	{models.StatusPending, auth.ActionApprove}: models.StatusApproved,
	{models.StatusPending, auth.ActionDecline}: models.StatusDeclined,
	{models.StatusApproved, auth.ActionRefund}: models.StatusRefunded,
}

// ApplyTransition validates the requested edge against the current status
// and returns an updated copy of the transaction. The input record is never
// modified. Re-invoking a transition on an already-transitioned transaction
// is rejected, not silently repeated, so a retried request cannot refund
// twice. Persistence and audit emission belong to the caller.
func ApplyTransition(tx *models.Transaction, action auth.Action, actorID, reason string, now time.Time) (*models.Transaction, error) {
	target, ok := transitions[transitionKey{tx.Status, action}]
	if !ok {
		return nil, &TransitionError{Current: tx.Status, Action: action}
	}

	if action == auth.ActionRefund && !tx.Type.Refundable() {
		return nil, &TransitionError{
			Current: tx.Status,
			Action:  action,
			Detail:  string(tx.Type) + " transactions are not refundable",
		}
	}

	updated := *tx
	updated.Status = target

	// processed_at is set exactly once, on the transition out of pending.
	if tx.Status == models.StatusPending {
		processedAt := now
		updated.ProcessedAt = &processedAt
	}

	incoming := models.Metadata{"processed_by": actorID}
	if reason != "" {
		incoming["admin_note"] = reason
	}
	updated.Metadata = tx.Metadata.Merge(incoming)

	return &updated, nil
}
