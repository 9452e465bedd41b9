package auth

import (
	"testing"
	"time"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("pass1!")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "pass1!" {
		t.Fatal("hash must not equal the plain password")
	}
	if !CheckPasswordHash("pass1!", hash) {
		t.Fatal("expected matching password to verify")
	}
	if CheckPasswordHash("other", hash) {
		t.Fatal("expected mismatching password to fail")
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	service, err := NewAuthService([]byte("test-secret"), 30*time.Minute)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}

	token, err := service.GenerateToken(7, "jane@example.com", "admin")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := service.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != 7 || claims.Email != "jane@example.com" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ExpiresAt == nil {
		t.Fatal("expected expiry claim")
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 || ttl > 30*time.Minute {
		t.Fatalf("unexpected token ttl: %v", ttl)
	}
}

func TestValidateToken_RejectsWrongSecret(t *testing.T) {
	issuer, err := NewAuthService([]byte("secret-a"), 30*time.Minute)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	verifier, err := NewAuthService([]byte("secret-b"), 30*time.Minute)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}

	token, err := issuer.GenerateToken(1, "jane@example.com", "user")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := verifier.ValidateToken(token); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
}

func TestValidateToken_RejectsExpired(t *testing.T) {
	service, err := NewAuthService([]byte("test-secret"), time.Nanosecond)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}

	token, err := service.GenerateToken(1, "jane@example.com", "user")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := service.ValidateToken(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestNewAuthService_RequiresSecret(t *testing.T) {
	if _, err := NewAuthService(nil, 30*time.Minute); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewAuthService([]byte("secret"), 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
