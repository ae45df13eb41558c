package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
	"github.com/vaultadmin/backend/internal/auth"
	"github.com/vaultadmin/backend/internal/models"
)

// TransactionService orchestrates every mutation of a transaction:
// authorize, validate the transition, persist, and audit as one unit of
// work. It also owns the HTTP surface for the transaction review endpoints.
type TransactionService struct {
	db        *sql.DB
	gate      *auth.Gate
	audit     *AuditService
	validator *ValidationHelper
}

func NewTransactionService(db *sql.DB) *TransactionService {
	return &TransactionService{
		db:        db,
		gate:      auth.NewGate(),
		audit:     NewAuditService(db),
		validator: NewValidationHelper(),
	}
}

var auditActions = map[auth.Action]models.AuditAction{
	auth.ActionApprove: models.AuditTransactionApproved,
	auth.ActionDecline: models.AuditTransactionDeclined,
	auth.ActionRefund:  models.AuditTransactionRefunded,
}

// PerformAction runs the full mutation sequence against one transaction:
// load under a row lock, authorize, apply the transition, persist with a
// status-equality precondition, and append the audit entry in the same
// database transaction. Every failure branch returns before any write
// becomes visible.
func (ts *TransactionService) PerformAction(ctx context.Context, caller auth.Caller, txID string, action auth.Action, reason string) (*models.Transaction, error) {
	dbTx, err := ts.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	current, err := ts.fetchForUpdate(ctx, dbTx, txID)
	if err != nil {
		return nil, err
	}

	if decision := ts.gate.Authorize(caller.Role, action, auth.ResourceContext{Amount: current.Amount}); !decision.Allowed {
		logger.WithFields(logger.Fields{
			"actor_id":       caller.ID,
			"role":           caller.Role,
			"action":         action,
			"transaction_id": txID,
			"reason":         decision.Reason,
		}).Info("action denied by authorization gate")
		return nil, &ForbiddenError{Reason: decision.Reason}
	}

	updated, err := ApplyTransition(current, action, caller.ID, reason, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	// The status-equality precondition makes the losing side of a racing
	// pair observe an invalid transition even if the row lock was bypassed
	// by another access path.
	result, err := dbTx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, processed_at = $2, metadata = $3
		WHERE id = $4 AND status = $5
	`, updated.Status, updated.ProcessedAt, updated.Metadata, txID, current.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to persist transaction %s: %w", txID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to persist transaction %s: %w", txID, err)
	}
	if affected == 0 {
		return nil, &TransitionError{Current: current.Status, Action: action, Detail: "transaction was modified concurrently"}
	}

	before, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot transaction %s: %w", txID, err)
	}
	after, err := json.Marshal(updated)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot transaction %s: %w", txID, err)
	}

	entry := &models.AuditEntry{
		ActorID:    caller.ID,
		Action:     auditActions[action],
		TargetType: "transaction",
		TargetID:   txID,
		Before:     before,
		After:      after,
		Reason:     reason,
	}
	if err := ts.audit.AppendTx(ctx, dbTx, entry); err != nil {
		// The rollback also discards the state change, so no mutation ever
		// commits without its audit record.
		logger.WithError(err).WithField("transaction_id", txID).Error("audit append failed, rolling back state change")
		return nil, err
	}

	if err := dbTx.Commit(); err != nil {
		// A commit error leaves the outcome unknown on the server side. If
		// the state change did land, it may have landed without a readable
		// audit confirmation, which is the worst failure mode this service
		// exists to prevent.
		logger.WithError(err).WithFields(logger.Fields{
			"transaction_id": txID,
			"action":         action,
			"audit_at_risk":  true,
		}).Error("commit failed after state change and audit append")
		return nil, fmt.Errorf("failed to commit transaction %s: %w", txID, err)
	}

	return updated, nil
}

const transactionColumns = `id, user_id, type, amount, asset, status, COALESCE(reference_id, ''), metadata, created_at, processed_at`

func scanTransaction(row interface{ Scan(...any) error }) (*models.Transaction, error) {
	tx := &models.Transaction{}
	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.Type, &tx.Amount, &tx.Asset, &tx.Status,
		&tx.ReferenceID, &tx.Metadata, &tx.CreatedAt, &tx.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (ts *TransactionService) fetchForUpdate(ctx context.Context, dbTx *sql.Tx, txID string) (*models.Transaction, error) {
	row := dbTx.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, txID)

	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", txID, err)
	}
	return tx, nil
}

func (ts *TransactionService) fetchTransaction(ctx context.Context, txID string) (*models.Transaction, error) {
	row := ts.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1
	`, txID)

	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", txID, err)
	}
	return tx, nil
}

func (ts *TransactionService) fetchTransactions(ctx context.Context, userID string, status, txType string, limit int) ([]models.Transaction, error) {
	var conditions []string
	var args []any
	argIndex := 1

	baseQuery := `SELECT ` + transactionColumns + ` FROM transactions`

	if userID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIndex))
		args = append(args, userID)
		argIndex++
	}
	if status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, status)
		argIndex++
	}
	if txType != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIndex))
		args = append(args, txType)
		argIndex++
	}

	query := baseQuery
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := ts.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}

	return transactions, rows.Err()
}

// HTTP surface

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=approved declined"`
	Reason string `json:"reason" validate:"max=500"`
}

type refundRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func callerFromRequest(w http.ResponseWriter, r *http.Request) (auth.Caller, bool) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return auth.Caller{}, false
	}
	return caller, true
}

func (ts *TransactionService) authorizeRead(w http.ResponseWriter, caller auth.Caller) bool {
	decision := ts.gate.Authorize(caller.Role, auth.ActionRead, auth.ResourceContext{})
	if !decision.Allowed {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "Forbidden", Reason: string(decision.Reason)})
		return false
	}
	return true
}

// writeActionError maps orchestration failures onto the HTTP taxonomy.
// Authorization and validation failures never produced a write, so a 4xx
// here guarantees the record is unchanged.
func writeActionError(w http.ResponseWriter, txID string, err error) {
	var forbidden *ForbiddenError
	var transition *TransitionError

	switch {
	case errors.Is(err, ErrTransactionNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Transaction not found"})
	case errors.As(err, &forbidden):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "Forbidden", Reason: string(forbidden.Reason)})
	case errors.As(err, &transition):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: transition.Error(), Reason: "invalid_transition"})
	default:
		logger.WithError(err).WithField("transaction_id", txID).Error("transaction action failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to process transaction"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

// GetTransaction retrieves a transaction
// @Summary Get transaction by ID
// @Description Retrieve a transaction record by its ID
// @Tags transactions
// @Produce json
// @Param txId path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /transactions/{txId} [get]
func (ts *TransactionService) GetTransaction(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}
	if !ts.authorizeRead(w, caller) {
		return
	}

	txID := chi.URLParam(r, "txId")
	tx, err := ts.fetchTransaction(r.Context(), txID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Transaction not found"})
		} else {
			logger.WithError(err).WithField("transaction_id", txID).Error("failed to fetch transaction")
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch transaction"})
		}
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// ListTransactions retrieves transactions with optional filters
// @Summary List transactions
// @Description Get transactions with optional userId, status and type filters
// @Tags transactions
// @Produce json
// @Param userId query string false "Filter by owning user ID"
// @Param status query string false "Filter by status"
// @Param type query string false "Filter by transaction type"
// @Param limit query int false "Number of transactions to return (default: 50, max: 100)"
// @Success 200 {object} object{transactions=[]models.Transaction,count=int}
// @Failure 403 {object} ErrorResponse
// @Router /transactions [get]
func (ts *TransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}
	if !ts.authorizeRead(w, caller) {
		return
	}

	var filters struct {
		Status string `validate:"omitempty,oneof=pending approved declined refunded"`
		Type   string `validate:"omitempty,oneof=deposit withdrawal trade subscription"`
		Limit  int    `validate:"min=1,max=100"`
	}
	filters.Status = r.URL.Query().Get("status")
	filters.Type = r.URL.Query().Get("type")
	filters.Limit = 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Validation failed",
				Details: map[string]string{"Limit": "limit must be an integer"},
			})
			return
		}
		filters.Limit = l
	}

	if err := ts.validator.ValidateStruct(&filters); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	transactions, err := ts.fetchTransactions(r.Context(), r.URL.Query().Get("userId"), filters.Status, filters.Type, filters.Limit)
	if err != nil {
		logger.WithError(err).Error("failed to list transactions")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch transactions"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// UpdateTransactionStatus approves or declines a pending transaction
// @Summary Update transaction status
// @Description Approve or decline a pending transaction; every change is audited
// @Tags transactions
// @Accept json
// @Produce json
// @Param txId path string true "Transaction ID"
// @Param body body updateStatusRequest true "Target status and optional reason"
// @Success 200 {object} object{transaction=models.Transaction,message=string}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /transactions/{txId} [put]
func (ts *TransactionService) UpdateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var action auth.Action
	switch req.Status {
	case "approved":
		action = auth.ActionApprove
	case "declined":
		if req.Reason == "" {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Validation failed",
				Details: map[string]string{"Reason": "reason is required when declining a transaction"},
			})
			return
		}
		action = auth.ActionDecline
	}

	txID := chi.URLParam(r, "txId")
	tx, err := ts.PerformAction(r.Context(), caller, txID, action, req.Reason)
	if err != nil {
		writeActionError(w, txID, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transaction": tx,
		"message":     fmt.Sprintf("Transaction %s successfully", req.Status),
	})
}

// RefundTransaction refunds an approved deposit or withdrawal
// @Summary Refund a transaction
// @Description Refund an approved deposit or withdrawal; trades and subscriptions are not refundable
// @Tags transactions
// @Accept json
// @Produce json
// @Param txId path string true "Transaction ID"
// @Param body body refundRequest true "Optional reason"
// @Success 200 {object} object{transaction=models.Transaction,message=string}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /transactions/{txId}/refund [post]
func (ts *TransactionService) RefundTransaction(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	var req refundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	txID := chi.URLParam(r, "txId")
	tx, err := ts.PerformAction(r.Context(), caller, txID, auth.ActionRefund, req.Reason)
	if err != nil {
		writeActionError(w, txID, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transaction": tx,
		"message":     "Transaction refunded successfully",
	})
}

// GetTransactionAudit lists the audit trail for a transaction
// @Summary Get transaction audit trail
// @Description List every audited mutation of a transaction, newest first
// @Tags transactions
// @Produce json
// @Param txId path string true "Transaction ID"
// @Success 200 {object} object{entries=[]models.AuditEntry,count=int}
// @Failure 403 {object} ErrorResponse
// @Router /transactions/{txId}/audit [get]
func (ts *TransactionService) GetTransactionAudit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}
	if !ts.authorizeRead(w, caller) {
		return
	}

	txID := chi.URLParam(r, "txId")
	entries, err := ts.audit.ListByTarget(r.Context(), "transaction", txID)
	if err != nil {
		logger.WithError(err).WithField("transaction_id", txID).Error("failed to list audit entries")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch audit entries"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
