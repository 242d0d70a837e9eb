package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestManager() *Manager {
	return NewManager(Config{SecretKey: "test-secret-key", TokenDuration: time.Hour, Issuer: "test-issuer"})
}

func TestManager_GenerateAndValidate(t *testing.T) {
	manager := newTestManager()

	token, err := manager.GenerateToken("user-123", "ana")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateToken() returned empty token")
	}

	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.Subject != "user-123" {
		t.Errorf("claims.Subject = %v, want user-123", claims.Subject)
	}
	if claims.Username != "ana" {
		t.Errorf("claims.Username = %v, want ana", claims.Username)
	}
	if claims.Issuer != "test-issuer" {
		t.Errorf("claims.Issuer = %v, want test-issuer", claims.Issuer)
	}

	id, err := manager.UserID(token)
	if err != nil || id != "user-123" {
		t.Errorf("UserID() = %q, %v", id, err)
	}
}

func TestManager_ExpiredToken(t *testing.T) {
	manager := newTestManager()
	manager.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := manager.GenerateToken("user-123", "")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	manager.now = time.Now
	if _, err := manager.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("ValidateToken() error = %v, want %v", err, ErrExpiredToken)
	}
}

func TestManager_RejectsForeignTokens(t *testing.T) {
	manager := newTestManager()

	other := NewManager(Config{SecretKey: "another-secret", Issuer: "test-issuer"})
	foreign, _ := other.GenerateToken("user-123", "")

	wrongIssuer := NewManager(Config{SecretKey: "test-secret-key", Issuer: "someone-else"})
	misissued, _ := wrongIssuer.GenerateToken("user-123", "")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-123", Issuer: "test-issuer"},
	})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"wrong issuer", misissued},
		{"unsigned", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := manager.ValidateToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ValidateToken() error = %v, want %v", err, ErrInvalidToken)
			}
		})
	}
}

func TestManager_Disabled(t *testing.T) {
	manager := NewManager(Config{})
	if manager.Enabled() {
		t.Fatal("manager without secret must be disabled")
	}
	if _, err := manager.GenerateToken("user-123", ""); !errors.Is(err, ErrNoSecret) {
		t.Errorf("GenerateToken() error = %v, want %v", err, ErrNoSecret)
	}
	if _, err := manager.ValidateToken("anything"); !errors.Is(err, ErrNoSecret) {
		t.Errorf("ValidateToken() error = %v, want %v", err, ErrNoSecret)
	}

	var nilManager *Manager
	if nilManager.Enabled() {
		t.Error("nil manager must be disabled")
	}
}
