package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/city-competitions/middleware"
	"github.com/Dosada05/city-competitions/services"
)

func TestMapServiceErrorToHTTP(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", services.ErrRoundNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("%w: round participation 9", services.ErrNotInRound), http.StatusNotFound},
		{"conflict", services.ErrDuplicateFinale, http.StatusConflict},
		{"dependency", services.ErrHasSubsequentRounds, http.StatusConflict},
		{"invalid transition", services.ErrInvalidStatusTransition, http.StatusUnprocessableEntity},
		{"invalid operation", services.ErrRoundArchived, http.StatusUnprocessableEntity},
		{"locked", services.ErrResultLocked, http.StatusLocked},
		{"validation", services.ErrInvalidPosition, http.StatusBadRequest},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/rounds/1/winners", nil)
			rec := httptest.NewRecorder()

			mapServiceErrorToHTTP(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			if tt.wantStatus == http.StatusInternalServerError {
				assert.NotContains(t, body["error"], "connection reset")
			} else {
				assert.Equal(t, tt.err.Error(), body["error"])
			}
		})
	}
}

func TestReadJSON(t *testing.T) {
	type payload struct {
		Count int `json:"count"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"count": 3}`, ""},
		{"empty", ``, "body must not be empty"},
		{"malformed", `{"count": `, "badly-formed JSON"},
		{"wrong type", `{"count": "three"}`, `incorrect JSON type for field "count"`},
		{"unknown field", `{"count": 1, "extra": true}`, "unknown key"},
		{"two values", `{"count": 1}{"count": 2}`, "single JSON value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			var dst payload
			err := readJSON(rec, req, &dst)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, 3, dst.Count)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetIDFromURL(t *testing.T) {
	withParam := func(value string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("roundID", value)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	id, err := getIDFromURL(withParam("12"), "roundID")
	require.NoError(t, err)
	assert.Equal(t, 12, id)

	for _, bad := range []string{"", "abc", "0", "-4"} {
		_, err := getIDFromURL(withParam(bad), "roundID")
		assert.Error(t, err, "value %q", bad)
	}
}

func TestQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/results?city_id=4&include_archived=true&limit=x", nil)

	cityID, err := optionalIntQuery(req, "city_id")
	require.NoError(t, err)
	require.NotNil(t, cityID)
	assert.Equal(t, 4, *cityID)

	missing, err := optionalIntQuery(req, "competition_id")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = optionalIntQuery(req, "limit")
	assert.Error(t, err)

	archived, err := boolQuery(req, "include_archived")
	require.NoError(t, err)
	assert.True(t, archived)
}

func TestOperatorID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	_, ok := operatorID(rec, req)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	id, ok := operatorID(rec, req.WithContext(middleware.WithUserID(req.Context(), 5)))
	assert.True(t, ok)
	assert.Equal(t, 5, id)
}
