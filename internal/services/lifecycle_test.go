package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/vaultadmin/backend/internal/auth"
	"github.com/vaultadmin/backend/internal/models"
)

func pendingTransaction(txType models.TransactionType) *models.Transaction {
	return &models.Transaction{
		ID:        "tx-1",
		UserID:    "user-1",
		Type:      txType,
		Amount:    decimal.NewFromInt(5000),
		Asset:     "USD",
		Status:    models.StatusPending,
		Metadata:  models.Metadata{"processor_ref": "abc"},
		CreatedAt: time.Now().Add(-time.Hour),
	}
}

func TestApplyTransition_Approve(t *testing.T) {
	tx := pendingTransaction(models.TypeWithdrawal)
	now := time.Now().UTC()

	updated, err := ApplyTransition(tx, auth.ActionApprove, "admin-1", "looks fine", now)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusApproved, updated.Status)
	assert.NotNil(t, updated.ProcessedAt)
	assert.Equal(t, now, *updated.ProcessedAt)

	// existing metadata survives, actor and note are merged in
	assert.Equal(t, "abc", updated.Metadata["processor_ref"])
	assert.Equal(t, "admin-1", updated.Metadata["processed_by"])
	assert.Equal(t, "looks fine", updated.Metadata["admin_note"])

	// input record untouched
	assert.Equal(t, models.StatusPending, tx.Status)
	assert.Nil(t, tx.ProcessedAt)
	assert.NotContains(t, tx.Metadata, "processed_by")
}

func TestApplyTransition_Decline(t *testing.T) {
	tx := pendingTransaction(models.TypeTrade)

	updated, err := ApplyTransition(tx, auth.ActionDecline, "mod-1", "suspicious", time.Now().UTC())
	assert.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, updated.Status)
	assert.NotNil(t, updated.ProcessedAt)
	assert.Equal(t, "suspicious", updated.Metadata["admin_note"])
}

func TestApplyTransition_EmptyReasonOmitsNote(t *testing.T) {
	tx := pendingTransaction(models.TypeDeposit)

	updated, err := ApplyTransition(tx, auth.ActionApprove, "admin-1", "", time.Now().UTC())
	assert.NoError(t, err)
	assert.NotContains(t, updated.Metadata, "admin_note")
}

func TestApplyTransition_Refund(t *testing.T) {
	processedAt := time.Now().Add(-time.Minute)

	approved := func(txType models.TransactionType) *models.Transaction {
		tx := pendingTransaction(txType)
		tx.Status = models.StatusApproved
		tx.ProcessedAt = &processedAt
		return tx
	}

	t.Run("approved withdrawal is refundable", func(t *testing.T) {
		updated, err := ApplyTransition(approved(models.TypeWithdrawal), auth.ActionRefund, "admin-1", "chargeback", time.Now().UTC())
		assert.NoError(t, err)
		assert.Equal(t, models.StatusRefunded, updated.Status)
		// processed_at was set on the transition out of pending and stays put
		assert.Equal(t, processedAt, *updated.ProcessedAt)
	})

	t.Run("approved deposit is refundable", func(t *testing.T) {
		updated, err := ApplyTransition(approved(models.TypeDeposit), auth.ActionRefund, "admin-1", "", time.Now().UTC())
		assert.NoError(t, err)
		assert.Equal(t, models.StatusRefunded, updated.Status)
	})

	t.Run("approved trade is not refundable", func(t *testing.T) {
		tx := approved(models.TypeTrade)
		updated, err := ApplyTransition(tx, auth.ActionRefund, "admin-1", "", time.Now().UTC())
		assert.Nil(t, updated)
		var transition *TransitionError
		assert.ErrorAs(t, err, &transition)
		assert.Contains(t, transition.Error(), "not refundable")
		assert.Equal(t, models.StatusApproved, tx.Status)
	})

	t.Run("approved subscription is not refundable", func(t *testing.T) {
		_, err := ApplyTransition(approved(models.TypeSubscription), auth.ActionRefund, "admin-1", "", time.Now().UTC())
		var transition *TransitionError
		assert.ErrorAs(t, err, &transition)
	})
}

func TestApplyTransition_RejectsUndefinedEdges(t *testing.T) {
	processedAt := time.Now()

	cases := []struct {
		name   string
		status models.TransactionStatus
		action auth.Action
	}{
		{"double approval", models.StatusApproved, auth.ActionApprove},
		{"decline after approval", models.StatusApproved, auth.ActionDecline},
		{"refund from pending", models.StatusPending, auth.ActionRefund},
		{"approve declined", models.StatusDeclined, auth.ActionApprove},
		{"refund declined", models.StatusDeclined, auth.ActionRefund},
		{"refund twice", models.StatusRefunded, auth.ActionRefund},
		{"read is not a transition", models.StatusPending, auth.ActionRead},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := pendingTransaction(models.TypeDeposit)
			tx.Status = tc.status
			if tc.status != models.StatusPending {
				tx.ProcessedAt = &processedAt
			}

			updated, err := ApplyTransition(tx, tc.action, "admin-1", "", time.Now().UTC())
			assert.Nil(t, updated)

			var transition *TransitionError
			assert.ErrorAs(t, err, &transition)
			assert.Equal(t, tc.status, transition.Current)
			assert.Equal(t, tc.action, transition.Action)

			// rejected input stays unchanged
			assert.Equal(t, tc.status, tx.Status)
		})
	}
}
