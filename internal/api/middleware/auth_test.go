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

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, secret string, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "cardgen-client",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func protectedRequest(t *testing.T, authHeader string) *httptest.ResponseRecorder {
	t.Helper()

	m := NewAuthMiddleware(testSecret)
	reached := false
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code == http.StatusOK {
		assert.True(t, reached)
	} else {
		assert.False(t, reached, "rejected requests must not reach the handler")
	}
	return w
}

func TestAuthenticateValidToken(t *testing.T) {
	t.Parallel()

	w := protectedRequest(t, "Bearer "+signToken(t, testSecret, time.Hour))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticateMissingHeader(t *testing.T) {
	t.Parallel()

	w := protectedRequest(t, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticateMalformedHeader(t *testing.T) {
	t.Parallel()

	for _, header := range []string{
		"Basic dXNlcjpwYXNz",
		"Bearer",
		"Bearer too many parts",
	} {
		w := protectedRequest(t, header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	t.Parallel()

	w := protectedRequest(t, "Bearer "+signToken(t, testSecret, -time.Hour))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Token expired")
}

func TestAuthenticateWrongSecret(t *testing.T) {
	t.Parallel()

	other := "ffffffffffffffffffffffffffffffff"
	w := protectedRequest(t, "Bearer "+signToken(t, other, time.Hour))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid token")
}

func TestAuthenticateGarbageToken(t *testing.T) {
	t.Parallel()

	w := protectedRequest(t, "Bearer not.a.jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
