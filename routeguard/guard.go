// Package routeguard decides whether a page may render for the current
// session. The decision is a pure function of the session snapshot, the
// path, and the route's declared roles; performing the redirect is left to a
// thin adapter at the edge, so re-evaluation after a redirect repeats the
// same decision instead of looping.
package routeguard

import (
	"strings"

	"github.com/nxank4/go-llct-client/session"
)

// State is the guard's position in its state machine for a given evaluation.
type State string

const (
	StateLoading                State = "loading"
	StateAllowed                State = "allowed"
	StateDeniedUnauthenticated  State = "denied_unauthenticated"
	StateDeniedRole             State = "denied_role"
	StateDeniedUnconfirmedEmail State = "denied_unconfirmed_email"
)

// Decision is the derived render/redirect outcome. It is recomputed on every
// session or path change and never persisted.
type Decision struct {
	State      State
	Allow      bool
	RedirectTo string
}

// Config carries the redirect targets and the route prefixes that are never
// gated (auth pages and the backend proxy).
type Config struct {
	LoginPath        string
	ConfirmEmailPath string
	// RoleLandingPaths maps each role to its landing page for the
	// wrong-role redirect.
	RoleLandingPaths map[session.Role]string
	ExcludedPrefixes []string
}

// rolePriority orders the wrong-role redirect target when a user holds
// several roles. The gate itself is any-match; only the redirect picks the
// highest-priority role. Product-defined ordering.
var rolePriority = []session.Role{session.RoleAdmin, session.RoleInstructor, session.RoleStudent}

type Guard struct {
	cfg Config
}

// New initializes a Guard, filling in default paths for anything unset.
func New(cfg Config) *Guard {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.ConfirmEmailPath == "" {
		cfg.ConfirmEmailPath = "/confirm-email"
	}
	if cfg.RoleLandingPaths == nil {
		cfg.RoleLandingPaths = map[session.Role]string{
			session.RoleAdmin:      "/admin",
			session.RoleInstructor: "/instructor",
			session.RoleStudent:    "/student",
		}
	}
	if cfg.ExcludedPrefixes == nil {
		cfg.ExcludedPrefixes = []string{"/login", "/register", "/confirm-email", "/auth/callback", "/api"}
	}
	return &Guard{cfg: cfg}
}

// Evaluate computes the render/redirect decision for a route. requiredRoles
// empty means any authenticated user may enter.
func (g *Guard) Evaluate(sess *session.Session, path string, requiredRoles []session.Role) Decision {
	if sess == nil || sess.Status == session.StatusLoading {
		// Render a placeholder; no redirect until the session settles.
		return Decision{State: StateLoading}
	}

	if sess.Status != session.StatusAuthenticated {
		return Decision{State: StateDeniedUnauthenticated, RedirectTo: g.cfg.LoginPath}
	}

	// The confirmation gate applies regardless of role, unless the route
	// itself is excluded (the confirmation page must stay reachable).
	if !g.excluded(path) && !sess.EmailConfirmed {
		return Decision{State: StateDeniedUnconfirmedEmail, RedirectTo: g.cfg.ConfirmEmailPath}
	}

	if len(requiredRoles) > 0 && !sess.HasAnyRole(requiredRoles) {
		return Decision{State: StateDeniedRole, RedirectTo: g.roleLanding(sess)}
	}

	return Decision{State: StateAllowed, Allow: true}
}

// roleLanding picks the redirect target for a wrong-role denial by role
// priority. A session with no recognized role falls back to the login page.
func (g *Guard) roleLanding(sess *session.Session) string {
	for _, role := range rolePriority {
		if sess.HasRole(role) {
			if path, ok := g.cfg.RoleLandingPaths[role]; ok {
				return path
			}
		}
	}
	return g.cfg.LoginPath
}

func (g *Guard) excluded(path string) bool {
	for _, prefix := range g.cfg.ExcludedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// RedirectFunc performs a navigation side effect at the edge.
type RedirectFunc func(path string)

// Apply executes a decision's redirect, if any. Loading takes no action and
// repeated application of the same decision is idempotent.
func Apply(d Decision, redirect RedirectFunc) {
	if d.Allow || d.State == StateLoading || d.RedirectTo == "" || redirect == nil {
		return
	}
	redirect(d.RedirectTo)
}
