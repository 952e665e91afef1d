package model

import (
	"testing"

	"backend/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionAllowedEdges(t *testing.T) {
	cases := []struct {
		from, to, role string
	}{
		{StatusAwaitingFee, StatusProcessing, RoleAdmin},
		{StatusAwaitingFee, StatusProcessing, RoleStaff},
		{StatusProcessing, StatusAwaitingFee, RoleAdmin},
		{StatusProcessing, StatusAwaitingFee, RoleStaff},
		{StatusProcessing, StatusSubmitted, RoleApplicant},
		{StatusSubmitted, StatusApproved, RoleAdmin},
		{StatusSubmitted, StatusRejected, RoleAdmin},
	}

	for _, tc := range cases {
		assert.NoError(t, CanTransition(tc.from, tc.to, tc.role),
			"%s -> %s by %s should be allowed", tc.from, tc.to, tc.role)
	}
}

func TestCanTransitionRejectsMissingEdges(t *testing.T) {
	cases := []struct {
		from, to string
	}{
		// The detail form cannot be skipped past the fee.
		{StatusAwaitingFee, StatusSubmitted},
		{StatusAwaitingFee, StatusApproved},
		{StatusAwaitingFee, StatusRejected},
		{StatusProcessing, StatusApproved},
		{StatusProcessing, StatusRejected},
		{StatusSubmitted, StatusAwaitingFee},
		{StatusSubmitted, StatusProcessing},
	}

	for _, tc := range cases {
		err := CanTransition(tc.from, tc.to, RoleAdmin)
		require.Error(t, err, "%s -> %s must not exist", tc.from, tc.to)
		assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	}
}

func TestCanTransitionRejectsDisallowedRoles(t *testing.T) {
	cases := []struct {
		from, to, role string
	}{
		// Applicants never drive the fee or the decision.
		{StatusAwaitingFee, StatusProcessing, RoleApplicant},
		{StatusProcessing, StatusAwaitingFee, RoleApplicant},
		{StatusSubmitted, StatusApproved, RoleApplicant},
		{StatusSubmitted, StatusRejected, RoleApplicant},
		// Staff can handle the fee but not decide.
		{StatusSubmitted, StatusApproved, RoleStaff},
		{StatusSubmitted, StatusRejected, RoleStaff},
		// Staff never submit on behalf of the applicant.
		{StatusProcessing, StatusSubmitted, RoleStaff},
		{StatusProcessing, StatusSubmitted, RoleAdmin},
	}

	for _, tc := range cases {
		err := CanTransition(tc.from, tc.to, tc.role)
		require.Error(t, err, "%s -> %s by %s must be denied", tc.from, tc.to, tc.role)
		assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	for _, from := range []string{StatusApproved, StatusRejected} {
		require.True(t, Terminal(from))
		for _, to := range []string{StatusAwaitingFee, StatusProcessing, StatusSubmitted, StatusApproved, StatusRejected} {
			err := CanTransition(from, to, RoleAdmin)
			require.Error(t, err)
			assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
		}
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, Terminal(StatusAwaitingFee))
	assert.False(t, Terminal(StatusProcessing))
	assert.False(t, Terminal(StatusSubmitted))
	assert.True(t, Terminal(StatusApproved))
	assert.True(t, Terminal(StatusRejected))
}
