package scanner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaibs3/LinkWatch/internal/checker"
	"github.com/shaibs3/LinkWatch/internal/classify"
	"github.com/shaibs3/LinkWatch/internal/config"
	"github.com/shaibs3/LinkWatch/internal/content"
	"github.com/shaibs3/LinkWatch/internal/extract"
	"github.com/shaibs3/LinkWatch/internal/linkstore"
)

// CompletionHook is invoked once per completed scan with the final scan
// record. Hooks are registered at construction time, never looked up through
// ambient state.
type CompletionHook func(scan linkstore.Scan)

// Progress is the externally readable state of the engine.
type Progress struct {
	Running bool            `json:"running"`
	Scan    *linkstore.Scan `json:"scan,omitempty"`
	Stats   linkstore.Stats `json:"stats"`
}

// Scanner walks all content units across the enabled sources, discovers
// links, schedules checks through a bounded worker pool and persists results.
// At most one scan is active at a time; the store enforces the invariant so
// two racing starts resolve to exactly one winner.
type Scanner struct {
	store      linkstore.Store
	checker    *checker.Checker
	extractor  *extract.Extractor
	sources    []content.Source
	siteOrigin string
	cfg        config.ScanConfig
	logger     *zap.Logger
	hooks      []CompletionHook

	mu     sync.Mutex
	cancel context.CancelFunc

	// stopping is the cooperative stop signal, observed between batches.
	// Force-stop does not rely on it.
	stopping atomic.Bool
}

func NewScanner(
	store linkstore.Store,
	chk *checker.Checker,
	extractor *extract.Extractor,
	sources []content.Source,
	siteOrigin string,
	cfg config.ScanConfig,
	logger *zap.Logger,
	hooks ...CompletionHook,
) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	return &Scanner{
		store:      store,
		checker:    chk,
		extractor:  extractor,
		sources:    sources,
		siteOrigin: siteOrigin,
		cfg:        cfg,
		logger:     logger.Named("scanner"),
		hooks:      hooks,
	}
}

// StartScan creates a scan and begins processing in the background. It fails
// fast with linkstore.ErrScanActive when another scan is pending or running;
// it does not queue. With fresh set, all prior link data is cleared before
// discovery begins.
func (s *Scanner) StartScan(ctx context.Context, scanType linkstore.ScanType, fresh bool) (*linkstore.Scan, error) {
	scan := &linkstore.Scan{
		ID:        uuid.NewString(),
		Type:      scanType,
		Status:    linkstore.ScanStatusPending,
		StartedAt: time.Now(),
	}

	err := s.store.CreateScan(ctx, scan)
	if errors.Is(err, linkstore.ErrScanActive) {
		// The blocking scan may itself be stalled; give it one observation
		// so a dead scan cannot hold the lock forever.
		if s.reapStalled(ctx) {
			err = s.store.CreateScan(ctx, scan)
		}
	}
	if err != nil {
		return nil, err
	}

	if fresh {
		if clearErr := s.store.ClearLinks(ctx); clearErr != nil {
			// All-or-nothing: release the scan slot and report failure with
			// prior data untouched.
			_, _ = s.store.TransitionScan(ctx, scan.ID, linkstore.ScanStatusPending, linkstore.ScanStatusCancelled)
			return nil, fmt.Errorf("fresh scan aborted, could not clear link data: %w", clearErr)
		}
	}

	if _, err := s.store.TransitionScan(ctx, scan.ID, linkstore.ScanStatusPending, linkstore.ScanStatusRunning); err != nil {
		return nil, err
	}
	scan.Status = linkstore.ScanStatusRunning

	// The scan outlives the request that started it.
	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.stopping.Store(false)
	s.mu.Unlock()

	go s.run(runCtx, scan.ID)

	s.logger.Info("scan started",
		zap.String("scan_id", scan.ID),
		zap.String("scan_type", string(scanType)),
		zap.Bool("fresh", fresh))
	return scan, nil
}

// counters aggregates scan progress. Worker goroutines bump the check
// counters; the discovery loop owns the discovered counter.
type counters struct {
	discovered int64
	checked    int64
	broken     int64
	warning    int64
	skipped    int64
}

func (s *Scanner) run(ctx context.Context, scanID string) {
	var c counters
	var pending []linkstore.Link

	cancelled := false

	flush := func() {
		if len(pending) > 0 {
			s.dispatchBatch(ctx, pending, &c)
			pending = pending[:0]
		}
		if err := s.store.UpdateScanProgress(ctx, scanID,
			int(atomic.LoadInt64(&c.discovered)), int(atomic.LoadInt64(&c.checked)),
			int(atomic.LoadInt64(&c.broken)), int(atomic.LoadInt64(&c.warning)),
			int(atomic.LoadInt64(&c.skipped))); err != nil {
			s.logger.Warn("failed to update scan progress", zap.String("scan_id", scanID), zap.Error(err))
		}
	}

	stopRequested := func() bool {
		return s.stopping.Load() || ctx.Err() != nil
	}

discovery:
	for _, source := range s.sources {
		units, err := source.ListUnits(ctx)
		if err != nil {
			// One bad source does not abort the scan.
			s.logger.Warn("failed to list content units",
				zap.String("source_type", string(source.Type())), zap.Error(err))
			continue
		}

		for _, unit := range units {
			for _, link := range s.discoverUnit(ctx, unit, &c) {
				pending = append(pending, link)
				if len(pending) >= s.cfg.BatchSize {
					flush()
					if stopRequested() {
						cancelled = true
						break discovery
					}
				}
			}
			if stopRequested() {
				cancelled = true
				break discovery
			}
		}
	}

	flush()

	if cancelled {
		if ok, _ := s.store.TransitionScan(ctx, scanID, linkstore.ScanStatusRunning, linkstore.ScanStatusCancelled); ok {
			s.logger.Info("scan cancelled", zap.String("scan_id", scanID))
		}
		return
	}

	ok, err := s.store.TransitionScan(ctx, scanID, linkstore.ScanStatusRunning, linkstore.ScanStatusCompleted)
	if err != nil || !ok {
		// Lost to a force-stop or stall transition; nothing to announce.
		return
	}

	final, err := s.store.GetScan(ctx, scanID)
	if err != nil {
		s.logger.Warn("completed scan not readable", zap.String("scan_id", scanID), zap.Error(err))
		return
	}
	s.logger.Info("scan completed",
		zap.String("scan_id", scanID),
		zap.Int("discovered", final.TotalDiscovered),
		zap.Int("checked", final.TotalChecked),
		zap.Int("broken", final.TotalBroken))

	for _, hook := range s.hooks {
		hook(*final)
	}
}

// discoverUnit runs extract → classify → upsert for one content unit and
// returns the links due for checking: new records plus records whose last
// check fell out of the freshness window. Links of a unit are always
// registered before any of them is dispatched.
func (s *Scanner) discoverUnit(ctx context.Context, unit content.Unit, c *counters) []linkstore.Link {
	raws := s.extractor.Extract(unit)

	keep := make(map[string]struct{}, len(raws))
	var due []linkstore.Link

	for _, raw := range raws {
		normalized := linkstore.NormalizeURL(raw.URL)
		link := linkstore.Link{
			URLHash:     linkstore.HashURL(normalized),
			URL:         raw.URL,
			SourceID:    unit.ID,
			SourceType:  unit.SourceType,
			SourceField: unit.Field,
			LinkType:    classify.Classify(raw.URL, raw.Kind, s.siteOrigin),
			Anchor:      raw.Anchor,
		}
		keep[link.URLHash] = struct{}{}

		id, err := s.store.UpsertLink(ctx, &link)
		if err != nil {
			// Soft failure: counted and logged, the batch goes on.
			s.logger.Warn("failed to upsert link", zap.String("url", raw.URL), zap.Error(err))
			continue
		}
		atomic.AddInt64(&c.discovered, 1)

		stored, err := s.store.GetLink(ctx, id)
		if err != nil {
			continue
		}
		if stored.Pending() || time.Since(*stored.LastCheck) > s.cfg.Freshness {
			due = append(due, *stored)
		}
	}

	// Records whose URL the unit no longer contains are confirmed gone.
	if err := s.store.PruneUnitLinks(ctx, unit.SourceType, unit.ID, keep); err != nil {
		s.logger.Warn("failed to prune vanished links",
			zap.Int64("source_id", unit.ID), zap.Error(err))
	}
	return due
}

// dispatchBatch checks one batch of links through the bounded worker pool.
// Only the network call suspends; everything around it stays on the calling
// goroutine's batch cadence.
func (s *Scanner) dispatchBatch(ctx context.Context, batch []linkstore.Link, c *counters) {
	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup

	for i := range batch {
		wg.Add(1)
		go func(link linkstore.Link) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			s.checkOne(ctx, link, c)
		}(batch[i])
	}
	wg.Wait()
}

func (s *Scanner) checkOne(ctx context.Context, link linkstore.Link, c *counters) {
	res := s.resolveAndCheck(ctx, link)

	if err := s.store.RecordCheckResult(ctx, link.ID, res); err != nil {
		s.logger.Warn("failed to record check result",
			zap.Int64("link_id", link.ID), zap.Error(err))
		return
	}
	atomic.AddInt64(&c.checked, 1)
	switch {
	case res.Skipped:
		atomic.AddInt64(&c.skipped, 1)
	case res.Broken:
		atomic.AddInt64(&c.broken, 1)
	case res.Warning:
		atomic.AddInt64(&c.warning, 1)
	}
}

// resolveAndCheck applies any operator-authored redirect rule before hitting
// the network: a rule means the URL will be served as a redirect, so the
// rule's target is what gets verified.
func (s *Scanner) resolveAndCheck(ctx context.Context, link linkstore.Link) checker.Result {
	if rule, err := s.store.RedirectRuleFor(ctx, link.URL); err == nil {
		res := s.checker.Check(ctx, rule.TargetURL)
		res.URL = link.URL
		res.RedirectURL = rule.TargetURL
		if res.RedirectCount == 0 {
			res.RedirectCount = 1
		}
		return res
	}
	return s.checker.Check(ctx, link.URL)
}

// Stop requests a cooperative stop: no new work is dispatched, in-flight
// checks finish, and the scan is marked cancelled within one batch's worth of
// latency.
func (s *Scanner) Stop() {
	s.stopping.Store(true)
	s.logger.Info("cooperative stop requested")
}

// ForceStop cancels all pending and running scans by mutating shared state
// directly. It does not depend on the scan loop cooperating and is the
// escape hatch for a genuinely stuck scan.
func (s *Scanner) ForceStop(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.stopping.Store(false)
	s.mu.Unlock()

	n, err := s.store.CancelActiveScans(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("force stop", zap.Int("scans_cancelled", n))
	return n, nil
}

// Progress reports current scan state without blocking the scan itself. Any
// reader that finds a running scan stalled beyond the configured window
// transitions it to timed_out; the guarded transition keeps concurrent
// readers from double-firing.
func (s *Scanner) Progress(ctx context.Context) (Progress, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return Progress{}, err
	}

	scan, err := s.store.ActiveScan(ctx)
	if errors.Is(err, linkstore.ErrNotFound) {
		return Progress{Running: false, Stats: stats}, nil
	}
	if err != nil {
		return Progress{}, err
	}

	if s.observeStall(ctx, scan) {
		scan.Status = linkstore.ScanStatusTimedOut
		return Progress{Running: false, Scan: scan, Stats: stats}, nil
	}
	return Progress{Running: scan.Status.Active(), Scan: scan, Stats: stats}, nil
}

// observeStall applies the stall rule to one scan, returning true when this
// reader performed the transition to timed_out. Pending scans stall too: a
// process that died between creating a scan and starting it leaves a pending
// record that would otherwise hold the active slot forever.
func (s *Scanner) observeStall(ctx context.Context, scan *linkstore.Scan) bool {
	if !scan.Status.Active() {
		return false
	}
	if time.Since(scan.LastProgress) <= s.cfg.StallWindow {
		return false
	}
	won, err := s.store.TransitionScan(ctx, scan.ID, scan.Status, linkstore.ScanStatusTimedOut)
	if err != nil {
		s.logger.Warn("stall transition failed", zap.String("scan_id", scan.ID), zap.Error(err))
		return false
	}
	if won {
		s.logger.Warn("scan stalled, marked timed out",
			zap.String("scan_id", scan.ID),
			zap.Duration("stall_window", s.cfg.StallWindow))
	}
	return won
}

// reapStalled checks whether the currently active scan is stalled and, if
// so, retires it. Returns true when the active slot was freed.
func (s *Scanner) reapStalled(ctx context.Context) bool {
	scan, err := s.store.ActiveScan(ctx)
	if err != nil {
		return false
	}
	return s.observeStall(ctx, scan)
}

// RecheckLink re-verifies a single link immediately and returns the stored
// record.
func (s *Scanner) RecheckLink(ctx context.Context, linkID int64) (*linkstore.Link, error) {
	link, err := s.store.GetLink(ctx, linkID)
	if err != nil {
		return nil, err
	}
	res := s.resolveAndCheck(ctx, *link)
	if err := s.store.RecordCheckResult(ctx, link.ID, res); err != nil {
		return nil, err
	}
	return s.store.GetLink(ctx, linkID)
}

// RecheckLinks re-verifies a set of links through the worker pool.
func (s *Scanner) RecheckLinks(ctx context.Context, links []linkstore.Link) {
	var c counters
	s.dispatchBatch(ctx, links, &c)
}

// anchorTagRe matches the <a> element wrapping a given href so Unlink can
// keep the anchor text.
func anchorTagRe(rawURL string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?is)<a\b[^>]*href=["']?` + regexp.QuoteMeta(rawURL) + `["']?[^>]*>(.*?)</a>`)
}

// ReplaceLinkURL rewrites every occurrence of the link's URL inside its
// source unit to newURL, then re-registers and re-checks the link under its
// new identity. A link that already vanished from the source is treated as
// success; content gets edited out-of-band.
func (s *Scanner) ReplaceLinkURL(ctx context.Context, linkID int64, newURL string) error {
	if newURL == "" {
		return fmt.Errorf("replacement URL is required")
	}
	link, err := s.store.GetLink(ctx, linkID)
	if err != nil {
		return err
	}

	err = s.rewriteUnit(ctx, link, func(raw string) string {
		return strings.ReplaceAll(raw, link.URL, newURL)
	})
	if err != nil {
		return err
	}

	if err := s.store.DeleteLinks(ctx, []int64{link.ID}); err != nil {
		return err
	}

	normalized := linkstore.NormalizeURL(newURL)
	replacement := linkstore.Link{
		URLHash:     linkstore.HashURL(normalized),
		URL:         newURL,
		SourceID:    link.SourceID,
		SourceType:  link.SourceType,
		SourceField: link.SourceField,
		LinkType:    classify.Classify(newURL, classify.TagAnchor, s.siteOrigin),
		Anchor:      link.Anchor,
	}
	id, err := s.store.UpsertLink(ctx, &replacement)
	if err != nil {
		return err
	}
	res := s.checker.Check(ctx, newURL)
	return s.store.RecordCheckResult(ctx, id, res)
}

// UnlinkURL strips the anchor tag around the link's URL from its source
// unit, keeping the anchor text, and deletes the record. Bare occurrences of
// the URL are removed outright.
func (s *Scanner) UnlinkURL(ctx context.Context, linkID int64) error {
	link, err := s.store.GetLink(ctx, linkID)
	if err != nil {
		return err
	}

	re, err := anchorTagRe(link.URL)
	if err != nil {
		return err
	}
	err = s.rewriteUnit(ctx, link, func(raw string) string {
		raw = re.ReplaceAllString(raw, "$1")
		return strings.ReplaceAll(raw, link.URL, "")
	})
	if err != nil {
		return err
	}
	return s.store.DeleteLinks(ctx, []int64{link.ID})
}

// rewriteUnit applies an edit to the source unit holding the link. A missing
// unit or a no-op edit counts as success.
func (s *Scanner) rewriteUnit(ctx context.Context, link *linkstore.Link, edit func(string) string) error {
	source := s.sourceFor(link.SourceType)
	if source == nil {
		return fmt.Errorf("no content source registered for type %q", link.SourceType)
	}

	units, err := source.ListUnits(ctx)
	if err != nil {
		return fmt.Errorf("failed to list %s units: %w", link.SourceType, err)
	}

	for _, unit := range units {
		if unit.ID != link.SourceID || unit.Field != link.SourceField {
			continue
		}
		edited := edit(unit.Raw)
		if edited == unit.Raw {
			// URL already gone from the content; not an error.
			return nil
		}
		ok, err := source.RewriteUnit(ctx, unit.ID, unit.Field, edited)
		if err != nil {
			return fmt.Errorf("failed to rewrite unit %d: %w", unit.ID, err)
		}
		if !ok {
			// Unit vanished between listing and rewrite.
			s.logger.Debug("unit disappeared during rewrite", zap.Int64("unit_id", unit.ID))
		}
		return nil
	}
	// Unit no longer exists at all; the edit's goal is already met.
	return nil
}

func (s *Scanner) sourceFor(t content.SourceType) content.Source {
	for _, src := range s.sources {
		if src.Type() == t {
			return src
		}
	}
	return nil
}
