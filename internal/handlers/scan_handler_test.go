package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shaibs3/LinkWatch/internal/checker"
	"github.com/shaibs3/LinkWatch/internal/config"
	"github.com/shaibs3/LinkWatch/internal/extract"
	"github.com/shaibs3/LinkWatch/internal/linkstore"
	"github.com/shaibs3/LinkWatch/internal/scanner"
)

func setupScanRouter(t *testing.T, store linkstore.Store) *mux.Router {
	t.Helper()
	logger := zap.NewNop()
	chk := checker.NewChecker(config.CheckerConfig{
		Timeout:       2 * time.Second,
		UserAgent:     "linkwatch-test",
		MaxRedirects:  5,
		RetryAttempts: 0,
	}, logger)
	ext, err := extract.NewExtractor("https://example.com", logger)
	require.NoError(t, err)
	sc := scanner.NewScanner(store, chk, ext, nil, "https://example.com", config.ScanConfig{StallWindow: time.Hour}, logger)

	r := mux.NewRouter()
	NewScanHandler(sc).RegisterRoutes(r, logger)
	return r
}

func TestScanHandler_StartAndProgress(t *testing.T) {
	store := linkstore.NewMemoryStore()
	r := setupScanRouter(t, store)

	req := httptest.NewRequest(http.MethodPost, "/v1/scan/start?type=full", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Scan linkstore.Scan `json:"scan"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Scan.ID)
	require.Equal(t, linkstore.ScanTypeFull, resp.Scan.Type)

	// With no sources the scan drains immediately.
	require.Eventually(t, func() bool {
		scan, err := store.GetScan(context.Background(), resp.Scan.ID)
		return err == nil && scan.Status == linkstore.ScanStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	req = httptest.NewRequest(http.MethodGet, "/v1/scan/progress", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var progress struct {
		Running bool `json:"running"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &progress))
	require.False(t, progress.Running)
}

func TestScanHandler_StartRejectsUnknownType(t *testing.T) {
	r := setupScanRouter(t, linkstore.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/v1/scan/start?type=sideways", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScanHandler_StartConflictsWithActiveScan(t *testing.T) {
	store := linkstore.NewMemoryStore()
	require.NoError(t, store.CreateScan(context.Background(), &linkstore.Scan{
		ID:        "busy",
		Status:    linkstore.ScanStatusRunning,
		StartedAt: time.Now(),
	}))
	r := setupScanRouter(t, store)

	req := httptest.NewRequest(http.MethodPost, "/v1/scan/start", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestScanHandler_Stop(t *testing.T) {
	r := setupScanRouter(t, linkstore.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/v1/scan/stop", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestScanHandler_ForceStop(t *testing.T) {
	store := linkstore.NewMemoryStore()
	require.NoError(t, store.CreateScan(context.Background(), &linkstore.Scan{
		ID:        "busy",
		Status:    linkstore.ScanStatusRunning,
		StartedAt: time.Now(),
	}))
	r := setupScanRouter(t, store)

	req := httptest.NewRequest(http.MethodPost, "/v1/scan/force-stop", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Cancelled int `json:"cancelled"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Cancelled)
}
