package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"user_id":  "d1",
		"email":    "driver1@truckvoice.kr",
		"nickname": "김기사",
		"role":     "driver",
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
}

func TestParseToken(t *testing.T) {
	t.Setenv("APP_JWT_SECRET", "test-secret")

	t.Run("valid token round-trips the claims", func(t *testing.T) {
		claims, err := ParseToken(signToken(t, "test-secret", validClaims()))
		if err != nil {
			t.Fatalf("ParseToken() error = %v", err)
		}
		if claims.UserID != "d1" || claims.Nickname != "김기사" || claims.Role != "driver" {
			t.Errorf("claims = %+v", claims)
		}
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		if _, err := ParseToken(signToken(t, "other-secret", validClaims())); err == nil {
			t.Error("token signed with another secret accepted")
		}
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		claims := validClaims()
		claims["exp"] = time.Now().Add(-time.Hour).Unix()
		if _, err := ParseToken(signToken(t, "test-secret", claims)); err == nil {
			t.Error("expired token accepted")
		}
	})

	t.Run("missing user_id is rejected", func(t *testing.T) {
		claims := validClaims()
		delete(claims, "user_id")
		if _, err := ParseToken(signToken(t, "test-secret", claims)); err == nil {
			t.Error("token without user_id accepted")
		}
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Setenv("APP_JWT_SECRET", "test-secret")

	handler := Auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetUserFromContext(r)
		if !ok {
			t.Error("claims missing from request context")
		}
		if claims.UserID != "d1" {
			t.Errorf("user_id = %q, want d1", claims.UserID)
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/driving-status/d1", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", validClaims()))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("token query parameter for websocket upgrades", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws?token="+signToken(t, "test-secret", validClaims()), nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/driving-status/d1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/driving-status/d1", nil)
		req.Header.Set("Authorization", "Basic abc123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}
