package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthenticate(t *testing.T) {
	var gotID int
	handler := Authenticate(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := GetUserIDFromContext(r.Context())
		require.NoError(t, err)
		gotID = id
		w.WriteHeader(http.StatusNoContent)
	}))

	exp := float64(time.Now().Add(time.Hour).Unix())
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantID     int
	}{
		{"valid numeric claim", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": 42, "exp": exp}), http.StatusNoContent, 42},
		{"valid string claim", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": "7"}), http.StatusNoContent, 7},
		{"missing header", "", http.StatusUnauthorized, 0},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, 0},
		{"wrong secret", "Bearer " + signToken(t, "other", jwt.MapClaims{"user_id": 1}), http.StatusUnauthorized, 0},
		{"expired", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": 1, "exp": float64(time.Now().Add(-time.Hour).Unix())}), http.StatusUnauthorized, 0},
		{"missing user id", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "x"}), http.StatusUnauthorized, 0},
		{"non-positive user id", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": 0}), http.StatusUnauthorized, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID = 0
			req := httptest.NewRequest(http.MethodPost, "/rounds/1/scores", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantID, gotID)
		})
	}
}

func TestGetUserIDFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := GetUserIDFromContext(req.Context())
	assert.Error(t, err)

	for _, id := range []int{1, 15} {
		t.Run(strconv.Itoa(id), func(t *testing.T) {
			got, err := GetUserIDFromContext(WithUserID(req.Context(), id))
			require.NoError(t, err)
			assert.Equal(t, id, got)
		})
	}
}
