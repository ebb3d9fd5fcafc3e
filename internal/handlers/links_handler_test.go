package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shaibs3/LinkWatch/internal/checker"
	"github.com/shaibs3/LinkWatch/internal/config"
	"github.com/shaibs3/LinkWatch/internal/content"
	"github.com/shaibs3/LinkWatch/internal/extract"
	"github.com/shaibs3/LinkWatch/internal/linkstore"
	"github.com/shaibs3/LinkWatch/internal/recheck"
	"github.com/shaibs3/LinkWatch/internal/scanner"
)

func setupLinksRouter(t *testing.T, store linkstore.Store) *mux.Router {
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
	sc := scanner.NewScanner(store, chk, ext, nil, "https://example.com", config.ScanConfig{}, logger)
	rr := recheck.NewRunner(store, sc, config.RecheckConfig{CronSpec: "@every 1h", BatchSize: 10}, logger)

	r := mux.NewRouter()
	NewLinksHandler(store, sc, rr).RegisterRoutes(r, logger)
	return r
}

func seedCheckedLink(t *testing.T, store linkstore.Store, url string, res checker.Result) int64 {
	t.Helper()
	normalized := linkstore.NormalizeURL(url)
	id, err := store.UpsertLink(context.Background(), &linkstore.Link{
		URLHash:     linkstore.HashURL(normalized),
		URL:         url,
		SourceID:    1,
		SourceType:  content.SourceTypePost,
		SourceField: "content",
	})
	require.NoError(t, err)
	require.NoError(t, store.RecordCheckResult(context.Background(), id, res))
	return id
}

func doJSON(t *testing.T, r *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLinksHandler_List(t *testing.T) {
	store := linkstore.NewMemoryStore()
	seedCheckedLink(t, store, "https://a.com/broken", checker.Result{StatusCode: 404, Broken: true})
	seedCheckedLink(t, store, "https://b.com/ok", checker.Result{StatusCode: 200})
	r := setupLinksRouter(t, store)

	w := doJSON(t, r, http.MethodGet, "/v1/links?status=broken", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count int              `json:"count"`
		Links []linkstore.Link `json:"links"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	require.Equal(t, "https://a.com/broken", resp.Links[0].URL)
}

func TestLinksHandler_List_RejectsBadInput(t *testing.T) {
	r := setupLinksRouter(t, linkstore.NewMemoryStore())

	w := doJSON(t, r, http.MethodGet, "/v1/links?sort=evil", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/links?checked_from=yesterday", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/links?limit=-1", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown status values are rejected up front; store backends must never
	// see a filter they could interpret differently.
	w = doJSON(t, r, http.MethodGet, "/v1/links?status=bogus", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/links?status=skipped", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestLinksHandler_BulkDismiss(t *testing.T) {
	store := linkstore.NewMemoryStore()
	id1 := seedCheckedLink(t, store, "https://a.com/1", checker.Result{StatusCode: 404, Broken: true})
	id2 := seedCheckedLink(t, store, "https://a.com/2", checker.Result{StatusCode: 404, Broken: true})
	r := setupLinksRouter(t, store)

	w := doJSON(t, r, http.MethodPost, "/v1/links/bulk", map[string]any{
		"action": "dismiss",
		"ids":    []int64{id1, id2},
	})
	require.Equal(t, http.StatusOK, w.Code)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, stats.Dismissed)
	require.Zero(t, stats.Broken)
}

func TestLinksHandler_BulkRejectsUnknownAction(t *testing.T) {
	r := setupLinksRouter(t, linkstore.NewMemoryStore())
	w := doJSON(t, r, http.MethodPost, "/v1/links/bulk", map[string]any{
		"action": "explode",
		"ids":    []int64{1},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLinksHandler_DismissAndRestore(t *testing.T) {
	store := linkstore.NewMemoryStore()
	id := seedCheckedLink(t, store, "https://a.com/1", checker.Result{StatusCode: 404, Broken: true})
	r := setupLinksRouter(t, store)

	idStr := strconv.FormatInt(id, 10)
	w := doJSON(t, r, http.MethodPost, "/v1/links/"+idStr+"/dismiss", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got, err := store.GetLink(context.Background(), id)
	require.NoError(t, err)
	require.True(t, got.Dismissed)

	w = doJSON(t, r, http.MethodPost, "/v1/links/"+idStr+"/undismiss", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got, err = store.GetLink(context.Background(), id)
	require.NoError(t, err)
	require.False(t, got.Dismissed)
}

func TestLinksHandler_Delete(t *testing.T) {
	store := linkstore.NewMemoryStore()
	id := seedCheckedLink(t, store, "https://a.com/1", checker.Result{StatusCode: 404, Broken: true})
	r := setupLinksRouter(t, store)

	w := doJSON(t, r, http.MethodDelete, "/v1/links/"+strconv.FormatInt(id, 10), nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, err := store.GetLink(context.Background(), id)
	require.ErrorIs(t, err, linkstore.ErrNotFound)
}

func TestLinksHandler_RecheckOne(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := linkstore.NewMemoryStore()
	id := seedCheckedLink(t, store, srv.URL+"/page", checker.Result{StatusCode: 404, Broken: true})
	r := setupLinksRouter(t, store)

	w := doJSON(t, r, http.MethodPost, "/v1/links/"+strconv.FormatInt(id, 10)+"/recheck", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Link linkstore.Link `json:"link"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.False(t, resp.Link.Broken)
	require.Equal(t, http.StatusOK, resp.Link.StatusCode)

	w = doJSON(t, r, http.MethodPost, "/v1/links/99999/recheck", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestLinksHandler_RecheckBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := linkstore.NewMemoryStore()
	seedCheckedLink(t, store, srv.URL+"/page", checker.Result{StatusCode: 404, Broken: true})
	r := setupLinksRouter(t, store)

	w := doJSON(t, r, http.MethodPost, "/v1/links/recheck-batch", map[string]any{"limit": 10})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Rechecked int `json:"rechecked"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Rechecked)

	// A non-positive limit is rejected.
	w = doJSON(t, r, http.MethodPost, "/v1/links/recheck-batch", map[string]any{"limit": 0})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLinksHandler_ExportCSV(t *testing.T) {
	store := linkstore.NewMemoryStore()
	seedCheckedLink(t, store, "https://a.com/broken", checker.Result{StatusCode: 404, Broken: true})
	r := setupLinksRouter(t, store)

	w := doJSON(t, r, http.MethodGet, "/v1/links/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "links.csv")
	require.Contains(t, w.Body.String(), "url,link_type,source_type")
	require.Contains(t, w.Body.String(), "https://a.com/broken")

	w = doJSON(t, r, http.MethodGet, "/v1/links/export?format=json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	w = doJSON(t, r, http.MethodGet, "/v1/links/export?format=xml", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLinksHandler_Stats(t *testing.T) {
	store := linkstore.NewMemoryStore()
	seedCheckedLink(t, store, "https://a.com/broken", checker.Result{StatusCode: 404, Broken: true})
	seedCheckedLink(t, store, "https://a.com/ok", checker.Result{StatusCode: 200})
	r := setupLinksRouter(t, store)

	w := doJSON(t, r, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats linkstore.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.Broken)
	require.Equal(t, 1, stats.Working)
}

func TestLinksHandler_RedirectRules(t *testing.T) {
	store := linkstore.NewMemoryStore()
	r := setupLinksRouter(t, store)

	// Code defaults to 301.
	w := doJSON(t, r, http.MethodPost, "/v1/redirects", map[string]any{
		"source_url": "https://a.com/old",
		"target_url": "https://a.com/new",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Rule linkstore.RedirectRule `json:"rule"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, http.StatusMovedPermanently, created.Rule.Code)
	require.NotZero(t, created.Rule.ID)

	w = doJSON(t, r, http.MethodPost, "/v1/redirects", map[string]any{
		"source_url": "https://a.com/x",
		"target_url": "https://a.com/y",
		"code":       308,
	})
	require.Equal(t, http.StatusBadRequest, w.Code, "only 301, 302 and 307 are accepted")

	w = doJSON(t, r, http.MethodPost, "/v1/redirects", map[string]any{
		"source_url": "https://a.com/x",
	})
	require.Equal(t, http.StatusBadRequest, w.Code, "target_url is required")

	w = doJSON(t, r, http.MethodGet, "/v1/redirects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Rules []linkstore.RedirectRule `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Rules, 1)

	w = doJSON(t, r, http.MethodDelete, "/v1/redirects/"+strconv.FormatInt(created.Rule.ID, 10), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/v1/redirects/"+strconv.FormatInt(created.Rule.ID, 10), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestLinksHandler_ReplaceRequiresURL(t *testing.T) {
	store := linkstore.NewMemoryStore()
	id := seedCheckedLink(t, store, "https://a.com/old", checker.Result{StatusCode: 404, Broken: true})
	r := setupLinksRouter(t, store)

	w := doJSON(t, r, http.MethodPost, "/v1/links/"+strconv.FormatInt(id, 10)+"/replace", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/v1/links/99999/replace", map[string]any{"url": "https://a.com/new"})
	require.Equal(t, http.StatusNotFound, w.Code)
}
