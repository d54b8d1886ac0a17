// Package policy decides whether an authenticated identity may reach a
// role-gated surface. The decision is a pure function over the identity,
// its resolved role, and the role the surface requires; callers translate
// the decision into an HTTP status or a client-side redirect.
package policy

// Role is the access role attached to an identity.
type Role string

const (
	RoleStudent Role = "student"
	RoleWarden  Role = "warden"
	RoleGuard   Role = "guard"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleWarden || r == RoleGuard
}

// Kind classifies an authorization decision.
type Kind int

const (
	// Allow grants access.
	Allow Kind = iota
	// Pending means the identity is known but its role lookup has not
	// resolved yet. The caller must show a neutral waiting state, never a
	// provisional allow or deny.
	Pending
	// RedirectLogin denies access because no identity is present; Target
	// names the login surface for the required role.
	RedirectLogin
	// RedirectHome denies access because the identity carries a different
	// role than required.
	RedirectHome
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Kind   Kind
	Target string
}

// Authorize resolves (identity, role, requiredRole) to a decision.
// An empty identity is an anonymous caller. An empty role with a present
// identity means the role lookup is still in flight.
func Authorize(identity string, role Role, required Role) Decision {
	if identity == "" {
		return Decision{Kind: RedirectLogin, Target: loginTarget(required)}
	}
	if role == "" {
		return Decision{Kind: Pending}
	}
	if role != required || !role.Valid() {
		return Decision{Kind: RedirectHome, Target: "/"}
	}
	return Decision{Kind: Allow}
}

// AuthorizeAny allows access when the identity holds any of the listed
// roles. Used for surfaces shared between roles, e.g. a student's own pass
// being visible to the warden.
func AuthorizeAny(identity string, role Role, required ...Role) Decision {
	last := Decision{Kind: RedirectHome, Target: "/"}
	for _, req := range required {
		d := Authorize(identity, role, req)
		if d.Kind == Allow || d.Kind == Pending || d.Kind == RedirectLogin {
			return d
		}
		last = d
	}
	return last
}

func loginTarget(required Role) string {
	switch required {
	case RoleWarden:
		return "/warden/login"
	case RoleGuard:
		return "/guard/login"
	case RoleStudent:
		return "/student/login"
	}
	return "/select"
}
