package auth

import (
	"errors"
	"testing"
	"time"
)

func TestAdminTokenRoundTrip(t *testing.T) {
	manager := NewJWTManager("secret", time.Minute)

	token, expiresAt, err := manager.GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("generate admin token: %v", err)
	}
	if expiresAt.Before(time.Now()) {
		t.Fatalf("token must not be issued expired")
	}

	subject, err := manager.ValidateAdminToken(token)
	if err != nil {
		t.Fatalf("validate admin token: %v", err)
	}
	if subject != "ops" {
		t.Fatalf("unexpected subject %q", subject)
	}
}

func TestAdminTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewJWTManager("secret-a", time.Minute)
	validator := NewJWTManager("secret-b", time.Minute)

	token, _, err := issuer.GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("generate admin token: %v", err)
	}

	if _, err := validator.ValidateAdminToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAdminTokenExpires(t *testing.T) {
	manager := NewJWTManager("secret", time.Minute)
	issuedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return issuedAt }

	token, _, err := manager.GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("generate admin token: %v", err)
	}

	manager.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	if _, err := manager.ValidateAdminToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}
