package recheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shaibs3/LinkWatch/internal/checker"
	"github.com/shaibs3/LinkWatch/internal/config"
	"github.com/shaibs3/LinkWatch/internal/content"
	"github.com/shaibs3/LinkWatch/internal/extract"
	"github.com/shaibs3/LinkWatch/internal/linkstore"
	"github.com/shaibs3/LinkWatch/internal/scanner"
)

func newTestRunner(t *testing.T, store linkstore.Store) *Runner {
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
	return NewRunner(store, sc, config.RecheckConfig{CronSpec: "@every 1h", BatchSize: 10}, logger)
}

func seedLink(t *testing.T, store linkstore.Store, url string, res checker.Result) int64 {
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

func TestRunBatch_RechecksBrokenLinks(t *testing.T) {
	// The page came back since the last scan.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := linkstore.NewMemoryStore()
	id := seedLink(t, store, srv.URL+"/page", checker.Result{StatusCode: 404, Broken: true})

	r := newTestRunner(t, store)
	n, err := r.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := store.GetLink(context.Background(), id)
	require.NoError(t, err)
	require.False(t, got.Broken)
	require.Equal(t, http.StatusOK, got.StatusCode)
	require.Equal(t, 2, got.CheckCount)
}

func TestRunBatch_SkipsDismissed(t *testing.T) {
	store := linkstore.NewMemoryStore()
	id := seedLink(t, store, "https://gone.example.net/", checker.Result{StatusCode: 404, Broken: true})
	require.NoError(t, store.SetDismissed(context.Background(), []int64{id}, true))

	r := newTestRunner(t, store)
	n, err := r.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRunBatch_YieldsToActiveScan(t *testing.T) {
	store := linkstore.NewMemoryStore()
	seedLink(t, store, "https://gone.example.net/", checker.Result{StatusCode: 404, Broken: true})
	require.NoError(t, store.CreateScan(context.Background(), &linkstore.Scan{
		ID:     "running",
		Status: linkstore.ScanStatusRunning,
	}))

	r := newTestRunner(t, store)
	n, err := r.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, n, "recheck yields instead of contending with a scan")
}

func TestRunBatch_RejectsNonPositiveLimit(t *testing.T) {
	r := newTestRunner(t, linkstore.NewMemoryStore())
	_, err := r.RunBatch(context.Background(), 0)
	require.Error(t, err)
	_, err = r.RunBatch(context.Background(), -5)
	require.Error(t, err)
}

func TestRunner_StartRejectsBadCronSpec(t *testing.T) {
	store := linkstore.NewMemoryStore()
	r := newTestRunner(t, store)
	r.cfg.CronSpec = "not a cron spec"
	require.Error(t, r.Start())
}
