package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guarzo/killfeed-indexer/internal/supervise"
)

func newTestHandler(sups ...*supervise.Supervisor) *Handler {
	return NewHandler(nil, nil, nil, sups, zap.NewNop(), "test-token")
}

func TestHealthIsPublic(t *testing.T) {
	h := newTestHandler()
	router := h.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRequireAuth(t *testing.T) {
	h := newTestHandler()
	router := h.NewRouter()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic test-token", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer test-token", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandleTasks(t *testing.T) {
	sup := supervise.New(supervise.Config{Name: "test", MaxDuration: 5 * time.Second})
	h := newTestHandler(sup)
	router := h.NewRouter()

	release := make(chan struct{})
	_, err := sup.StartTask(func(ctx context.Context) error {
		<-release
		return nil
	}, "match", map[string]string{"killmail_id": "42"})
	require.NoError(t, err)
	defer func() {
		close(release)
		sup.Drain()
	}()

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tasks []struct {
			Tag      string            `json:"tag"`
			Metadata map[string]string `json:"metadata"`
		} `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tasks, 1)
	assert.Equal(t, "match", body.Tasks[0].Tag)
	assert.Equal(t, "42", body.Tasks[0].Metadata["killmail_id"])
}

func TestKillDetailRejectsBadID(t *testing.T) {
	h := newTestHandler()
	router := h.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/kills/not-a-number", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpointIsPublic(t *testing.T) {
	h := newTestHandler()
	router := h.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
