package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	t.Parallel()

	pair, err := Issue("uid-1", "guard", "", "campuspass", "secret", time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	claims, err := Parse(pair.AccessToken, "secret", "campuspass")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if claims.Subject != "uid-1" || claims.Role != "guard" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestParseCarriesEnrollment(t *testing.T) {
	t.Parallel()

	pair, err := Issue("uid-2", "student", "ASU2023001", "campuspass", "secret", time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	claims, err := Parse(pair.AccessToken, "secret", "campuspass")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if claims.Enrollment != "ASU2023001" {
		t.Fatalf("enrollment claim = %q, want ASU2023001", claims.Enrollment)
	}
}

func TestParseRejectsWrongKeyAndIssuer(t *testing.T) {
	t.Parallel()

	pair, err := Issue("uid-1", "warden", "", "campuspass", "secret", time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "other-secret", "campuspass"); err == nil {
		t.Fatal("expected error for wrong signing key")
	}
	if _, err := Parse(pair.AccessToken, "secret", "someone-else"); err == nil {
		t.Fatal("expected error for issuer mismatch")
	}
}

func TestParseExpired(t *testing.T) {
	t.Parallel()

	pair, err := Issue("uid-1", "warden", "", "campuspass", "secret", -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "secret", "campuspass"); err == nil {
		t.Fatal("expected error for expired token")
	}
}
