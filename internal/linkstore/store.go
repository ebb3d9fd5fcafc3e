package linkstore

import (
	"context"

	"github.com/shaibs3/LinkWatch/internal/checker"
	"github.com/shaibs3/LinkWatch/internal/content"
)

// Store is the persistence collaborator for links, scans and redirect rules.
// Implementations must make UpsertLink safe against two concurrent upserts
// for the same identity tuple, and CreateScan safe against two concurrent
// scan starts.
type Store interface {
	// UpsertLink registers a discovered link. An existing record with the
	// same identity tuple gets its mutable fields (anchor, raw URL, link
	// type) refreshed without touching status, history or check_count; a new
	// record is inserted with status unset. Returns the record id.
	UpsertLink(ctx context.Context, link *Link) (int64, error)

	// RecordCheckResult overwrites status fields, bumps check_count and
	// updates last_check. A failed check never deletes; broken is a status,
	// not an absence.
	RecordCheckResult(ctx context.Context, linkID int64, res checker.Result) error

	GetLink(ctx context.Context, id int64) (*Link, error)
	ListLinks(ctx context.Context, filter LinkFilter) ([]Link, error)
	DeleteLinks(ctx context.Context, ids []int64) error
	SetDismissed(ctx context.Context, ids []int64, dismissed bool) error

	// PruneUnitLinks removes records for a source unit whose URL hash is no
	// longer present in the unit, confirming the source dropped them.
	PruneUnitLinks(ctx context.Context, sourceType content.SourceType, sourceID int64, keep map[string]struct{}) error

	// LinksForRecheck selects up to limit non-dismissed links currently
	// marked broken or warning.
	LinksForRecheck(ctx context.Context, limit int) ([]Link, error)

	Stats(ctx context.Context) (Stats, error)

	// ClearLinks removes all link records in one atomic operation. Used by
	// fresh scans; it either fully clears or leaves everything untouched.
	ClearLinks(ctx context.Context) error

	// CreateScan persists a new scan, failing with ErrScanActive when
	// another scan is pending or running. The check-then-insert race is
	// resolved by the implementation, not the caller.
	CreateScan(ctx context.Context, scan *Scan) error
	GetScan(ctx context.Context, id string) (*Scan, error)
	// ActiveScan returns the pending or running scan, or ErrNotFound.
	ActiveScan(ctx context.Context) (*Scan, error)
	// UpdateScanProgress overwrites the scan counters and advances
	// last_progress.
	UpdateScanProgress(ctx context.Context, id string, discovered, checked, broken, warning, skipped int) error
	// TransitionScan moves a scan from one status to another, returning
	// false without error when the scan is no longer in the from status.
	// Concurrent readers can race on the same transition; exactly one wins.
	TransitionScan(ctx context.Context, id string, from, to ScanStatus) (bool, error)
	// CancelActiveScans unconditionally cancels every pending and running
	// scan, returning how many were cancelled.
	CancelActiveScans(ctx context.Context) (int, error)

	PutRedirectRule(ctx context.Context, rule *RedirectRule) error
	DeleteRedirectRule(ctx context.Context, id int64) error
	ListRedirectRules(ctx context.Context) ([]RedirectRule, error)
	// RedirectRuleFor returns the operator rule matching a source URL, or
	// ErrNotFound.
	RedirectRuleFor(ctx context.Context, sourceURL string) (*RedirectRule, error)

	Close() error
}
