package linkstore

import "github.com/shaibs3/LinkWatch/internal/model"

// Re-export shared model types for convenience
type (
	Link         = model.Link
	Identity     = model.Identity
	Scan         = model.Scan
	ScanType     = model.ScanType
	ScanStatus   = model.ScanStatus
	RedirectRule = model.RedirectRule
	Stats        = model.Stats
	LinkFilter   = model.LinkFilter
)

// Re-export constants
const (
	ScanTypeFull    = model.ScanTypeFull
	ScanTypePartial = model.ScanTypePartial
	ScanTypeRecheck = model.ScanTypeRecheck

	ScanStatusPending   = model.ScanStatusPending
	ScanStatusRunning   = model.ScanStatusRunning
	ScanStatusCompleted = model.ScanStatusCompleted
	ScanStatusCancelled = model.ScanStatusCancelled
	ScanStatusTimedOut  = model.ScanStatusTimedOut

	FilterStatusAll       = model.FilterStatusAll
	FilterStatusBroken    = model.FilterStatusBroken
	FilterStatusWarning   = model.FilterStatusWarning
	FilterStatusWorking   = model.FilterStatusWorking
	FilterStatusSkipped   = model.FilterStatusSkipped
	FilterStatusDismissed = model.FilterStatusDismissed
)

// Re-export sentinel errors and identity helpers
var (
	ErrScanActive     = model.ErrScanActive
	ErrNotFound       = model.ErrNotFound
	ErrInvalidSortKey = model.ErrInvalidSortKey

	NormalizeURL = model.NormalizeURL
	HashURL      = model.HashURL
)
