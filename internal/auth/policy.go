package auth

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Role string

type Action string

type DenyReason string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleModerator  Role = "moderator"
	RoleAuditor    Role = "auditor"

	ActionRead       Action = "read"
	ActionApprove    Action = "approve"
	ActionDecline    Action = "decline"
	ActionRefund     Action = "refund"
	ActionAdminister Action = "administer"

	DenyInsufficientRole    DenyReason = "insufficient_role"
	DenyHighValueRestricted DenyReason = "high_value_restricted"
)

// roleCapabilities is the static baseline policy. Auditor is read-only by
// construction; moderator cannot refund or administer.
var roleCapabilities = map[Role]map[Action]bool{
	RoleSuperAdmin: {ActionRead: true, ActionApprove: true, ActionDecline: true, ActionRefund: true, ActionAdminister: true},
	RoleAdmin:      {ActionRead: true, ActionApprove: true, ActionDecline: true, ActionRefund: true, ActionAdminister: true},
	RoleModerator:  {ActionRead: true, ActionApprove: true, ActionDecline: true},
	RoleAuditor:    {ActionRead: true},
}

// highValueApprovers is the narrowed set allowed to approve above the
// threshold, regardless of baseline capability.
var highValueApprovers = map[Role]bool{
	RoleSuperAdmin: true,
	RoleAdmin:      true,
}

func ValidRole(r Role) bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Decision is the outcome of an authorization check. Denial is a normal,
// representable outcome, not an error.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// ResourceContext carries the attributes of the target resource that policy
// decisions depend on.
type ResourceContext struct {
	Amount decimal.Decimal
}

// Gate answers whether a role may perform an action against a resource.
// Pure decision logic; callers surface the transport-level error.
type Gate struct {
	highValueThreshold decimal.Decimal
}

func NewGate() *Gate {
	viper.SetDefault("authz.high_value_threshold", "10000")
	threshold, err := decimal.NewFromString(viper.GetString("authz.high_value_threshold"))
	if err != nil {
		threshold = decimal.NewFromInt(10000)
	}
	return &Gate{highValueThreshold: threshold}
}

// Authorize applies the baseline capability set, then narrows approvals of
// amounts above the high-value threshold to the high-value approver set.
func (g *Gate) Authorize(role Role, action Action, resource ResourceContext) Decision {
	if !roleCapabilities[role][action] {
		return deny(DenyInsufficientRole)
	}
	if action == ActionApprove && resource.Amount.GreaterThan(g.highValueThreshold) && !highValueApprovers[role] {
		return deny(DenyHighValueRestricted)
	}
	return allow()
}
