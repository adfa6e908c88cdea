package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	InitJWT("test-secret", time.Hour)

	token, expiresAt, err := GenerateJWT("amy", "s1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "amy", claims.UserID)
	assert.Equal(t, "s1", claims.SessionID)

	_, err = ValidateJWT(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	InitJWT("other-secret", time.Hour)
	_, err = ValidateJWT(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenRejected(t *testing.T) {
	InitJWT("test-secret", time.Nanosecond)
	token, _, err := GenerateJWT("amy", "s1")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	// jwt/v4 validates expiry with one second granularity
	require.Eventually(t, func() bool {
		_, err := ValidateJWT(token)
		return err != nil
	}, 3*time.Second, 50*time.Millisecond)
}

func TestAuthMiddleware(t *testing.T) {
	InitJWT("test-secret", time.Hour)
	token, _, err := GenerateJWT("amy", "s1")
	require.NoError(t, err)

	var seen string
	h := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
		assert.Equal(t, "s1", GetSessionID(r.Context()))
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users/friends", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, "amy", seen)
}
