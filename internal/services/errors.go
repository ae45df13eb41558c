package services

import (
	"errors"
	"fmt"

	"github.com/vaultadmin/backend/internal/auth"
	"github.com/vaultadmin/backend/internal/models"
)

// ErrTransactionNotFound marks a lookup miss; mapped to 404.
var ErrTransactionNotFound = errors.New("transaction not found")

// ForbiddenError carries the gate's machine-readable deny reason so the UI
// can distinguish role-insufficient from value-restricted.
type ForbiddenError struct {
	Reason auth.DenyReason
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

// TransitionError names the current and attempted states so a caller can
// tell "already approved" apart from a malformed request.
type TransitionError struct {
	Current models.TransactionStatus
	Action  auth.Action
	Detail  string
}

func (e *TransitionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("invalid transition: cannot %s a transaction in status %s (%s)", e.Action, e.Current, e.Detail)
	}
	return fmt.Sprintf("invalid transition: cannot %s a transaction in status %s", e.Action, e.Current)
}
