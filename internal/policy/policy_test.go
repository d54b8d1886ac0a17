package policy

import "testing"

func TestAuthorize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		identity string
		role     Role
		required Role
		want     Kind
		target   string
	}{
		{"anonymous goes to role login", "", "", RoleWarden, RedirectLogin, "/warden/login"},
		{"anonymous guard surface", "", "", RoleGuard, RedirectLogin, "/guard/login"},
		{"anonymous student surface", "", "", RoleStudent, RedirectLogin, "/student/login"},
		{"role unresolved is pending", "uid-1", "", RoleWarden, Pending, ""},
		{"matching role allowed", "uid-1", RoleGuard, RoleGuard, Allow, ""},
		{"wrong role goes home", "uid-1", RoleStudent, RoleWarden, RedirectHome, "/"},
		{"unknown role goes home", "uid-1", Role("admin"), RoleWarden, RedirectHome, "/"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Authorize(tc.identity, tc.role, tc.required)
			if got.Kind != tc.want {
				t.Fatalf("Authorize kind = %v, want %v", got.Kind, tc.want)
			}
			if tc.target != "" && got.Target != tc.target {
				t.Fatalf("Authorize target = %q, want %q", got.Target, tc.target)
			}
		})
	}
}

// A guard identity must never reach a warden surface, whatever the identity.
func TestGuardNeverAllowedOnWardenSurface(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"uid-1", "warden-impostor", "x"} {
		if d := Authorize(id, RoleGuard, RoleWarden); d.Kind == Allow {
			t.Fatalf("guard identity %q allowed on warden surface", id)
		}
	}
}

func TestAuthorizeAny(t *testing.T) {
	t.Parallel()

	if d := AuthorizeAny("uid-1", RoleWarden, RoleStudent, RoleWarden); d.Kind != Allow {
		t.Fatalf("warden should pass student-or-warden surface, got %v", d.Kind)
	}
	if d := AuthorizeAny("uid-1", RoleGuard, RoleStudent, RoleWarden); d.Kind != RedirectHome {
		t.Fatalf("guard should be denied on student-or-warden surface, got %v", d.Kind)
	}
	if d := AuthorizeAny("", "", RoleStudent, RoleWarden); d.Kind != RedirectLogin {
		t.Fatalf("anonymous should be redirected to login, got %v", d.Kind)
	}
}
