package model

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/shaibs3/LinkWatch/internal/classify"
	"github.com/shaibs3/LinkWatch/internal/content"
)

// Link represents one discovered URL occurrence. Exactly one record exists
// per identity tuple (url_hash, source_id, source_type, source_field);
// re-discovery updates, never duplicates.
type Link struct {
	ID          int64              `db:"id" json:"id"`
	URLHash     string             `db:"url_hash" json:"-"`
	URL         string             `db:"url" json:"url"`
	SourceID    int64              `db:"source_id" json:"source_id"`
	SourceType  content.SourceType `db:"source_type" json:"source_type"`
	SourceField string             `db:"source_field" json:"source_field"`
	LinkType    classify.LinkType  `db:"link_type" json:"link_type"`
	Anchor      string             `db:"anchor" json:"anchor"`

	StatusCode    int    `db:"status_code" json:"status_code"`
	StatusText    string `db:"status_text" json:"status_text"`
	Broken        bool   `db:"is_broken" json:"is_broken"`
	Warning       bool   `db:"is_warning" json:"is_warning"`
	Skipped       bool   `db:"is_skipped" json:"is_skipped"`
	Dismissed     bool   `db:"is_dismissed" json:"is_dismissed"`
	RedirectURL   string `db:"redirect_url" json:"redirect_url,omitempty"`
	RedirectCount int    `db:"redirect_count" json:"redirect_count"`

	ResponseTimeMS int64      `db:"response_time_ms" json:"response_time_ms"`
	FirstDetected  time.Time  `db:"first_detected" json:"first_detected"`
	LastCheck      *time.Time `db:"last_check" json:"last_check,omitempty"`
	CheckCount     int        `db:"check_count" json:"check_count"`
	ErrorMessage   string     `db:"error_message" json:"error_message,omitempty"`
}

// Pending reports whether the link has never been checked.
func (l *Link) Pending() bool { return l.LastCheck == nil }

// Identity is the dedup key for a Link record.
type Identity struct {
	URLHash     string
	SourceID    int64
	SourceType  content.SourceType
	SourceField string
}

func (l *Link) Identity() Identity {
	return Identity{
		URLHash:     l.URLHash,
		SourceID:    l.SourceID,
		SourceType:  l.SourceType,
		SourceField: l.SourceField,
	}
}

// NormalizeURL canonicalizes a URL for identity hashing: lowercased host,
// fragment stripped, default scheme casing. The raw string is kept on the
// record for display.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Host != "" {
		host := strings.ToLower(u.Hostname())
		if port := u.Port(); port != "" {
			u.Host = host + ":" + port
		} else {
			u.Host = host
		}
	}
	return u.String()
}

// HashURL keeps the identity key bounded and indexable regardless of URL
// length.
func HashURL(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ScanType distinguishes discovery runs.
type ScanType string

const (
	ScanTypeFull    ScanType = "full"
	ScanTypePartial ScanType = "partial"
	ScanTypeRecheck ScanType = "recheck"
)

// ScanStatus is the lifecycle state of a scan.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusCancelled ScanStatus = "cancelled"
	ScanStatusTimedOut  ScanStatus = "timed_out"
)

// Active reports whether the status counts against the single-active-scan
// invariant.
func (s ScanStatus) Active() bool {
	return s == ScanStatusPending || s == ScanStatusRunning
}

// Scan is one discovery+check run.
type Scan struct {
	ID        string     `db:"id" json:"id"`
	Type      ScanType   `db:"scan_type" json:"scan_type"`
	Status    ScanStatus `db:"status" json:"status"`
	StartedAt time.Time  `db:"started_at" json:"started_at"`
	EndedAt   *time.Time `db:"ended_at" json:"ended_at,omitempty"`

	TotalDiscovered int `db:"total_discovered" json:"total_discovered"`
	TotalChecked    int `db:"total_checked" json:"total_checked"`
	TotalBroken     int `db:"total_broken" json:"total_broken"`
	TotalWarning    int `db:"total_warning" json:"total_warning"`
	TotalSkipped    int `db:"total_skipped" json:"total_skipped"`

	// LastProgress advances with every counter update and drives stall
	// detection.
	LastProgress time.Time `db:"last_progress" json:"last_progress"`
}

// RedirectRule maps a known-broken source URL to an operator-authored
// replacement target.
type RedirectRule struct {
	ID        int64  `db:"id" json:"id"`
	SourceURL string `db:"source_url" json:"source_url"`
	TargetURL string `db:"target_url" json:"target_url"`
	// Code is the HTTP redirect code the rule serves: 301, 302 or 307.
	Code int `db:"code" json:"code"`
}

// Stats aggregates link counts. Dismissed links are excluded from the broken
// and warning buckets.
type Stats struct {
	Total     int `json:"total"`
	Broken    int `json:"broken"`
	Warning   int `json:"warning"`
	Working   int `json:"working"`
	Skipped   int `json:"skipped"`
	Dismissed int `json:"dismissed"`
	Pending   int `json:"pending"`
}

// Filter statuses recognized by ListLinks.
const (
	FilterStatusAll       = "all"
	FilterStatusBroken    = "broken"
	FilterStatusWarning   = "warning"
	FilterStatusWorking   = "working"
	FilterStatusSkipped   = "skipped"
	FilterStatusDismissed = "dismissed"
)

// sortColumns is the allow-list of sort keys; anything else is rejected
// before it can reach a query.
var sortColumns = map[string]string{
	"url":            "url",
	"link_type":      "link_type",
	"status_code":    "status_code",
	"last_check":     "last_check",
	"check_count":    "check_count",
	"first_detected": "first_detected",
}

// LinkFilter is the recognized filter/sort/pagination surface for link
// queries.
type LinkFilter struct {
	Status      string
	LinkType    classify.LinkType
	Search      string
	CheckedFrom *time.Time
	CheckedTo   *time.Time
	StatusCode  *int
	SortBy      string
	SortDesc    bool
	Limit       int
	Offset      int
}

// SortColumn resolves the filter's sort key against the allow-list. An empty
// key sorts by last_check.
func (f *LinkFilter) SortColumn() (string, bool) {
	if f.SortBy == "" {
		return "last_check", true
	}
	col, ok := sortColumns[f.SortBy]
	return col, ok
}
