package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/mmynk/quozen/internal/models"
)

func TestJWTManager(t *testing.T) {
	user := models.User{ID: "u-alice", Email: "alice@example.com", Name: "Alice"}

	t.Run("round trip", func(t *testing.T) {
		m := NewJWTManager("secret", time.Hour)
		token, err := m.Generate(user)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		claims, err := m.Validate(token)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if claims.User() != user {
			t.Errorf("Expected %+v, got %+v", user, claims.User())
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, _ := NewJWTManager("secret", time.Hour).Generate(user)
		_, err := NewJWTManager("other", time.Hour).Validate(token)
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		m := NewJWTManager("secret", time.Hour)
		issued := time.Now().Add(-2 * time.Hour)
		m.now = func() time.Time { return issued }
		token, err := m.Generate(user)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		m.now = time.Now
		_, err = m.Validate(token)
		if !errors.Is(err, ErrTokenExpired) {
			t.Errorf("Expected ErrTokenExpired, got %v", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := NewJWTManager("secret", time.Hour).Validate("not-a-token")
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("identity required", func(t *testing.T) {
		if _, err := NewJWTManager("secret", time.Hour).Generate(models.User{Email: "x@example.com"}); err == nil {
			t.Error("Expected error for user without id")
		}
	})
}
