package linkstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shaibs3/LinkWatch/internal/checker"
	"github.com/shaibs3/LinkWatch/internal/content"
)

// MemoryStore is the in-memory Store used by tests and as the default
// provider when no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	links    map[int64]*Link
	identity map[Identity]int64
	scans    map[string]*Scan
	rules    map[int64]*RedirectRule
	nextID   int64
	nextRule int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links:    make(map[int64]*Link),
		identity: make(map[Identity]int64),
		scans:    make(map[string]*Scan),
		rules:    make(map[int64]*RedirectRule),
		nextID:   1,
		nextRule: 1,
	}
}

func (m *MemoryStore) UpsertLink(ctx context.Context, link *Link) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.identity[link.Identity()]; ok {
		existing := m.links[id]
		existing.URL = link.URL
		existing.Anchor = link.Anchor
		existing.LinkType = link.LinkType
		return id, nil
	}

	stored := *link
	stored.ID = m.nextID
	m.nextID++
	if stored.FirstDetected.IsZero() {
		stored.FirstDetected = time.Now()
	}
	m.links[stored.ID] = &stored
	m.identity[stored.Identity()] = stored.ID
	return stored.ID, nil
}

func (m *MemoryStore) RecordCheckResult(ctx context.Context, linkID int64, res checker.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.links[linkID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	l.StatusCode = res.StatusCode
	l.StatusText = res.StatusText
	l.Broken = res.Broken
	l.Warning = res.Warning
	l.Skipped = res.Skipped
	l.RedirectURL = res.RedirectURL
	l.RedirectCount = res.RedirectCount
	l.ResponseTimeMS = res.ResponseTime.Milliseconds()
	l.ErrorMessage = res.ErrorMessage
	l.LastCheck = &now
	l.CheckCount++
	return nil
}

func (m *MemoryStore) GetLink(ctx context.Context, id int64) (*Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.links[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryStore) ListLinks(ctx context.Context, filter LinkFilter) ([]Link, error) {
	col, ok := filter.SortColumn()
	if !ok {
		return nil, ErrInvalidSortKey
	}

	m.mu.RLock()
	out := make([]Link, 0, len(m.links))
	for _, l := range m.links {
		if matchesFilter(l, &filter) {
			out = append(out, *l)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		less := lessByColumn(&out[i], &out[j], col)
		if filter.SortDesc {
			return !less
		}
		return less
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []Link{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchesFilter(l *Link, f *LinkFilter) bool {
	switch f.Status {
	case "", FilterStatusAll:
	case FilterStatusBroken:
		if !l.Broken || l.Dismissed {
			return false
		}
	case FilterStatusWarning:
		if !l.Warning || l.Dismissed {
			return false
		}
	case FilterStatusWorking:
		if l.Broken || l.Warning || l.Skipped || l.Dismissed || l.Pending() {
			return false
		}
	case FilterStatusSkipped:
		if !l.Skipped || l.Dismissed {
			return false
		}
	case FilterStatusDismissed:
		if !l.Dismissed {
			return false
		}
	default:
		return false
	}

	if f.LinkType != "" && l.LinkType != f.LinkType {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(l.URL), needle) &&
			!strings.Contains(strings.ToLower(l.Anchor), needle) {
			return false
		}
	}
	if f.CheckedFrom != nil && (l.LastCheck == nil || l.LastCheck.Before(*f.CheckedFrom)) {
		return false
	}
	if f.CheckedTo != nil && (l.LastCheck == nil || l.LastCheck.After(*f.CheckedTo)) {
		return false
	}
	if f.StatusCode != nil && l.StatusCode != *f.StatusCode {
		return false
	}
	return true
}

func lessByColumn(a, b *Link, col string) bool {
	switch col {
	case "url":
		return a.URL < b.URL
	case "link_type":
		return a.LinkType < b.LinkType
	case "status_code":
		return a.StatusCode < b.StatusCode
	case "check_count":
		return a.CheckCount < b.CheckCount
	case "first_detected":
		return a.FirstDetected.Before(b.FirstDetected)
	default: // last_check
		switch {
		case a.LastCheck == nil:
			return b.LastCheck != nil
		case b.LastCheck == nil:
			return false
		default:
			return a.LastCheck.Before(*b.LastCheck)
		}
	}
}

func (m *MemoryStore) DeleteLinks(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if l, ok := m.links[id]; ok {
			delete(m.identity, l.Identity())
			delete(m.links, id)
		}
	}
	return nil
}

func (m *MemoryStore) SetDismissed(ctx context.Context, ids []int64, dismissed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if l, ok := m.links[id]; ok {
			l.Dismissed = dismissed
		}
	}
	return nil
}

func (m *MemoryStore) PruneUnitLinks(ctx context.Context, sourceType content.SourceType, sourceID int64, keep map[string]struct{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, l := range m.links {
		if l.SourceType != sourceType || l.SourceID != sourceID {
			continue
		}
		if _, ok := keep[l.URLHash]; !ok {
			delete(m.identity, l.Identity())
			delete(m.links, id)
		}
	}
	return nil
}

func (m *MemoryStore) LinksForRecheck(ctx context.Context, limit int) ([]Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Link, 0, limit)
	for _, l := range m.links {
		if l.Dismissed || (!l.Broken && !l.Warning) {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		return lessByColumn(&out[i], &out[j], "last_check")
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s Stats
	for _, l := range m.links {
		s.Total++
		switch {
		case l.Dismissed:
			s.Dismissed++
		case l.Pending():
			s.Pending++
		case l.Broken:
			s.Broken++
		case l.Warning:
			s.Warning++
		case l.Skipped:
			s.Skipped++
		default:
			s.Working++
		}
	}
	return s, nil
}

func (m *MemoryStore) ClearLinks(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = make(map[int64]*Link)
	m.identity = make(map[Identity]int64)
	return nil
}

func (m *MemoryStore) CreateScan(ctx context.Context, scan *Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.scans {
		if s.Status.Active() {
			return ErrScanActive
		}
	}
	cp := *scan
	if cp.StartedAt.IsZero() {
		cp.StartedAt = time.Now()
	}
	if cp.LastProgress.IsZero() {
		cp.LastProgress = cp.StartedAt
	}
	m.scans[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) GetScan(ctx context.Context, id string) (*Scan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scans[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) ActiveScan(ctx context.Context) (*Scan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.scans {
		if s.Status.Active() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpdateScanProgress(ctx context.Context, id string, discovered, checked, broken, warning, skipped int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return ErrNotFound
	}
	s.TotalDiscovered = discovered
	s.TotalChecked = checked
	s.TotalBroken = broken
	s.TotalWarning = warning
	s.TotalSkipped = skipped
	s.LastProgress = time.Now()
	return nil
}

func (m *MemoryStore) TransitionScan(ctx context.Context, id string, from, to ScanStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return false, ErrNotFound
	}
	if s.Status != from {
		return false, nil
	}
	s.Status = to
	if !to.Active() {
		now := time.Now()
		s.EndedAt = &now
	}
	return true, nil
}

func (m *MemoryStore) CancelActiveScans(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := time.Now()
	for _, s := range m.scans {
		if s.Status.Active() {
			s.Status = ScanStatusCancelled
			s.EndedAt = &now
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) PutRedirectRule(ctx context.Context, rule *RedirectRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rule.ID == 0 {
		rule.ID = m.nextRule
		m.nextRule++
	}
	cp := *rule
	m.rules[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteRedirectRule(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *MemoryStore) ListRedirectRules(ctx context.Context) ([]RedirectRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RedirectRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) RedirectRuleFor(ctx context.Context, sourceURL string) (*RedirectRule, error) {
	key := NormalizeURL(sourceURL)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rules {
		if NormalizeURL(r.SourceURL) == key {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Close() error { return nil }
