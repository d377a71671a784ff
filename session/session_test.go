package session_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nxank4/go-llct-client/session"
)

func TestAuthenticated(t *testing.T) {
	require.False(t, (*session.Session)(nil).Authenticated())
	require.False(t, (&session.Session{Status: session.StatusLoading}).Authenticated())
	require.False(t, (&session.Session{Status: session.StatusUnauthenticated}).Authenticated())
	require.True(t, (&session.Session{Status: session.StatusAuthenticated}).Authenticated())
}

func TestHasRole(t *testing.T) {
	sess := &session.Session{Roles: []session.Role{session.RoleInstructor, session.RoleStudent}}

	require.True(t, sess.HasRole(session.RoleInstructor))
	require.True(t, sess.HasRole(session.RoleStudent))
	require.False(t, sess.HasRole(session.RoleAdmin))
	require.False(t, (*session.Session)(nil).HasRole(session.RoleAdmin))
}

func TestHasAnyRole(t *testing.T) {
	sess := &session.Session{Roles: []session.Role{session.RoleStudent}}

	require.True(t, sess.HasAnyRole([]session.Role{session.RoleAdmin, session.RoleStudent}))
	require.False(t, sess.HasAnyRole([]session.Role{session.RoleAdmin, session.RoleInstructor}))
	require.False(t, sess.HasAnyRole(nil))
}
