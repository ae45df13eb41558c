package auth

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestGate_BaselineCapabilities(t *testing.T) {
	gate := NewGate()
	resource := ResourceContext{Amount: decimal.NewFromInt(100)}

	cases := []struct {
		role    Role
		action  Action
		allowed bool
	}{
		{RoleSuperAdmin, ActionRead, true},
		{RoleSuperAdmin, ActionApprove, true},
		{RoleSuperAdmin, ActionDecline, true},
		{RoleSuperAdmin, ActionRefund, true},
		{RoleSuperAdmin, ActionAdminister, true},
		{RoleAdmin, ActionRead, true},
		{RoleAdmin, ActionApprove, true},
		{RoleAdmin, ActionDecline, true},
		{RoleAdmin, ActionRefund, true},
		{RoleAdmin, ActionAdminister, true},
		{RoleModerator, ActionRead, true},
		{RoleModerator, ActionApprove, true},
		{RoleModerator, ActionDecline, true},
		{RoleModerator, ActionRefund, false},
		{RoleModerator, ActionAdminister, false},
		{RoleAuditor, ActionRead, true},
		{RoleAuditor, ActionApprove, false},
		{RoleAuditor, ActionDecline, false},
		{RoleAuditor, ActionRefund, false},
		{RoleAuditor, ActionAdminister, false},
	}

	for _, tc := range cases {
		decision := gate.Authorize(tc.role, tc.action, resource)
		assert.Equal(t, tc.allowed, decision.Allowed, "%s %s", tc.role, tc.action)
		if !tc.allowed {
			assert.Equal(t, DenyInsufficientRole, decision.Reason)
		}
	}
}

func TestGate_HighValueNarrowing(t *testing.T) {
	gate := NewGate()
	highValue := ResourceContext{Amount: decimal.NewFromInt(15000)}

	t.Run("moderator loses approve above threshold", func(t *testing.T) {
		decision := gate.Authorize(RoleModerator, ActionApprove, highValue)
		assert.False(t, decision.Allowed)
		assert.Equal(t, DenyHighValueRestricted, decision.Reason)
	})

	t.Run("admin and super_admin keep approve above threshold", func(t *testing.T) {
		assert.True(t, gate.Authorize(RoleAdmin, ActionApprove, highValue).Allowed)
		assert.True(t, gate.Authorize(RoleSuperAdmin, ActionApprove, highValue).Allowed)
	})

	t.Run("threshold is exclusive", func(t *testing.T) {
		atThreshold := ResourceContext{Amount: decimal.NewFromInt(10000)}
		assert.True(t, gate.Authorize(RoleModerator, ActionApprove, atThreshold).Allowed)
	})

	t.Run("narrowing only applies to approve", func(t *testing.T) {
		decision := gate.Authorize(RoleModerator, ActionDecline, highValue)
		assert.True(t, decision.Allowed)
	})

	t.Run("baseline denial wins over narrowing reason", func(t *testing.T) {
		decision := gate.Authorize(RoleAuditor, ActionApprove, highValue)
		assert.False(t, decision.Allowed)
		assert.Equal(t, DenyInsufficientRole, decision.Reason)
	})
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleAuditor))
	assert.True(t, ValidRole(RoleModerator))
	assert.False(t, ValidRole(Role("intern")))
	assert.False(t, ValidRole(Role("")))
}
