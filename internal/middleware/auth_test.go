package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func authedRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAuth(t *testing.T) {
	var gotUserID string
	var gotScopes []string
	handler := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserID(r.Context())
		gotScopes = GetScopes(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "teen-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: []string{"conversations:write"},
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(signToken(t, testSecret, claims)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "teen-123", gotUserID)
	assert.Equal(t, []string{"conversations:write"}, gotScopes)
}

func TestAuth_Rejections(t *testing.T) {
	handler := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	expired := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "teen-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}

	tests := []struct {
		name  string
		token string
	}{
		{"missing header", ""},
		{"malformed token", "garbage"},
		{"wrong secret", signToken(t, "other-secret", Claims{})},
		{"expired", signToken(t, testSecret, expired)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, authedRequest(tt.token))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireScope(t *testing.T) {
	handler := Auth(testSecret)(RequireScope("messages:block")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	withScope := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "moderator-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: []string{"messages:block"},
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(signToken(t, testSecret, withScope)))
	assert.Equal(t, http.StatusOK, rec.Code)

	withoutScope := withScope
	withoutScope.Scopes = nil
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(signToken(t, testSecret, withoutScope)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
