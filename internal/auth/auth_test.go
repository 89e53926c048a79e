package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const secret = "test-secret"

func mint(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims(id int64, username string) Claims {
	return Claims{
		ID:       id,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestJWTVerifier(t *testing.T) {
	v := NewJWTVerifier(secret)

	identity, err := v.Verify(mint(t, secret, validClaims(7, "alice")))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.ID != 7 || identity.Username != "alice" {
		t.Fatalf("identity = %+v, want {7 alice}", identity)
	}

	t.Run("wrong secret", func(t *testing.T) {
		if _, err := v.Verify(mint(t, "other-secret", validClaims(7, "alice"))); err == nil {
			t.Fatal("token signed with another secret verified")
		}
	})

	t.Run("expired", func(t *testing.T) {
		claims := validClaims(7, "alice")
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		if _, err := v.Verify(mint(t, secret, claims)); err == nil {
			t.Fatal("expired token verified")
		}
	})

	t.Run("zero subject", func(t *testing.T) {
		if _, err := v.Verify(mint(t, secret, validClaims(0, "nobody"))); err == nil {
			t.Fatal("token without a user id verified")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := v.Verify("not-a-token"); err == nil {
			t.Fatal("garbage token verified")
		}
	})
}

func TestGateAuthenticate(t *testing.T) {
	gate := NewGate(NewJWTVerifier(secret))
	token := mint(t, secret, validClaims(7, "alice"))

	t.Run("query param", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?token="+token, nil)
		identity, err := gate.Authenticate(r)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if identity.ID != 7 {
			t.Fatalf("identity.ID = %d, want 7", identity.ID)
		}
	})

	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		if _, err := gate.Authenticate(r); err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
	})

	t.Run("missing credential", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		if _, err := gate.Authenticate(r); err == nil {
			t.Fatal("request without a credential authenticated")
		}
	})

	t.Run("invalid credential", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?token=bogus", nil)
		if _, err := gate.Authenticate(r); err == nil {
			t.Fatal("request with a bogus credential authenticated")
		}
	})
}
