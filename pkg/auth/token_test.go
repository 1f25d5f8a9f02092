package auth

import (
	"testing"
	"time"

	"lexdocs/pkg/domain"
)

func TestIssueAndVerify(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret-0123456789", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	user := domain.User{ID: "u1", Email: "a@example.com", Name: "Ada"}
	token, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "u1" || claims.Email != "a@example.com" || claims.Name != "Ada" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a, _ := NewTokenIssuer("secret-one-0123456789", time.Hour)
	b, _ := NewTokenIssuer("secret-two-0123456789", time.Hour)
	token, err := a.Issue(domain.User{ID: "u1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Verify(token); err == nil {
		t.Fatalf("expected verification failure with different secret")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	issuer, _ := NewTokenIssuer("test-secret-0123456789", time.Hour)
	issuer.ttl = -2 * time.Minute
	issuer.leeway = 0
	token, err := issuer.Issue(domain.User{ID: "u1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Verify(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	issuer, _ := NewTokenIssuer("test-secret-0123456789", time.Hour)
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := issuer.Verify(tok); err == nil {
			t.Fatalf("expected rejection for %q", tok)
		}
	}
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	if _, err := NewTokenIssuer("  ", time.Hour); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
