package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/shaibs3/LinkWatch/internal/checker"
	"github.com/shaibs3/LinkWatch/internal/content"
	"github.com/shaibs3/LinkWatch/internal/model"
)

// uniqueViolation is the postgres error code raised when an insert hits a
// uniqueness constraint.
const uniqueViolation = "23505"

const linkColumns = `id, url_hash, url, source_id, source_type, source_field, link_type, anchor,
	status_code, status_text, is_broken, is_warning, is_skipped, is_dismissed, redirect_url, redirect_count,
	response_time_ms, first_detected, last_check, check_count, error_message`

// Store is the postgres-backed link store. Database failures are retried
// with backoff behind a circuit breaker.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	cb     *gobreaker.CircuitBreaker
}

func NewStore(connStr string, logger *zap.Logger, meter metric.Meter) (*Store, error) {
	pgLogger := logger.Named("postgres")

	if meter != nil {
		InitStoreMetrics(meter)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		pgLogger.Error("failed to open Postgres connection", zap.Error(err))
		return nil, fmt.Errorf("failed to open Postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		pgLogger.Error("failed to ping Postgres", zap.Error(err))
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	if _, err := db.Exec(model.Schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "LinkStoreDB",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
	})

	pgLogger.Info("Postgres store initialized successfully")
	return &Store{db: db, logger: pgLogger, cb: cb}, nil
}

// run executes one store operation through the circuit breaker with retries.
// Conflict and not-found outcomes are never retried; they are answers, not
// failures.
func (s *Store) run(op string, fn func() error) error {
	return retry.Do(
		func() error {
			_, err := s.cb.Execute(func() (interface{}, error) {
				return nil, fn()
			})
			return err
		},
		retry.Attempts(3),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if errors.Is(err, model.ErrNotFound) ||
				errors.Is(err, model.ErrScanActive) ||
				errors.Is(err, model.ErrInvalidSortKey) {
				return false
			}
			return true
		}),
		retry.OnRetry(func(n uint, err error) {
			countStoreRetry(op)
			s.logger.Warn("retrying store operation",
				zap.String("op", op), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

func (s *Store) UpsertLink(ctx context.Context, link *model.Link) (int64, error) {
	var id int64
	err := s.run("UpsertLink", func() error {
		// The unique index on the identity tuple resolves the
		// check-then-insert race; the conflicting insert becomes an update.
		return s.db.QueryRowContext(ctx, `
			INSERT INTO links (url_hash, url, source_id, source_type, source_field, link_type, anchor)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (url_hash, source_id, source_type, source_field)
			DO UPDATE SET url = EXCLUDED.url, anchor = EXCLUDED.anchor, link_type = EXCLUDED.link_type
			RETURNING id`,
			link.URLHash, link.URL, link.SourceID, link.SourceType,
			link.SourceField, link.LinkType, link.Anchor,
		).Scan(&id)
	})
	return id, err
}

func (s *Store) RecordCheckResult(ctx context.Context, linkID int64, res checker.Result) error {
	return s.run("RecordCheckResult", func() error {
		result, err := s.db.ExecContext(ctx, `
			UPDATE links SET
				status_code = $2, status_text = $3, is_broken = $4, is_warning = $5,
				is_skipped = $6, redirect_url = $7, redirect_count = $8,
				response_time_ms = $9, error_message = $10,
				last_check = NOW(), check_count = check_count + 1
			WHERE id = $1`,
			linkID, res.StatusCode, res.StatusText, res.Broken, res.Warning,
			res.Skipped, res.RedirectURL, res.RedirectCount,
			res.ResponseTime.Milliseconds(), res.ErrorMessage,
		)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return model.ErrNotFound
		}
		return nil
	})
}

func (s *Store) GetLink(ctx context.Context, id int64) (*model.Link, error) {
	var link model.Link
	err := s.run("GetLink", func() error {
		row := s.db.QueryRowContext(ctx,
			`SELECT `+linkColumns+` FROM links WHERE id = $1`, id)
		if err := scanLink(row, &link); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return model.ErrNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (s *Store) ListLinks(ctx context.Context, filter model.LinkFilter) ([]model.Link, error) {
	col, ok := filter.SortColumn()
	if !ok {
		return nil, model.ErrInvalidSortKey
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	where, args := buildLinkWhere(&filter)
	query := `SELECT ` + linkColumns + ` FROM links` + where +
		fmt.Sprintf(" ORDER BY %s %s NULLS FIRST", col, direction)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var links []model.Link
	err := s.run("ListLinks", func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		links = links[:0]
		for rows.Next() {
			var l model.Link
			if err := scanLink(rows, &l); err != nil {
				return err
			}
			links = append(links, l)
		}
		return rows.Err()
	})
	return links, err
}

// buildLinkWhere assembles the WHERE clause for the recognized filters. Sort
// keys never pass through here; they come from the allow-list.
func buildLinkWhere(f *model.LinkFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch f.Status {
	case model.FilterStatusBroken:
		clauses = append(clauses, "is_broken AND NOT is_dismissed")
	case model.FilterStatusWarning:
		clauses = append(clauses, "is_warning AND NOT is_dismissed")
	case model.FilterStatusWorking:
		clauses = append(clauses, "NOT is_broken AND NOT is_warning AND NOT is_skipped AND NOT is_dismissed AND last_check IS NOT NULL")
	case model.FilterStatusSkipped:
		clauses = append(clauses, "is_skipped AND NOT is_dismissed")
	case model.FilterStatusDismissed:
		clauses = append(clauses, "is_dismissed")
	}

	if f.LinkType != "" {
		clauses = append(clauses, "link_type = "+arg(string(f.LinkType)))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		clauses = append(clauses, fmt.Sprintf("(url ILIKE %s OR anchor ILIKE %s)", p, p))
	}
	if f.CheckedFrom != nil {
		clauses = append(clauses, "last_check >= "+arg(*f.CheckedFrom))
	}
	if f.CheckedTo != nil {
		clauses = append(clauses, "last_check <= "+arg(*f.CheckedTo))
	}
	if f.StatusCode != nil {
		clauses = append(clauses, "status_code = "+arg(*f.StatusCode))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *Store) DeleteLinks(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.run("DeleteLinks", func() error {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM links WHERE id = ANY($1)`, pq.Array(ids))
		return err
	})
}

func (s *Store) SetDismissed(ctx context.Context, ids []int64, dismissed bool) error {
	if len(ids) == 0 {
		return nil
	}
	return s.run("SetDismissed", func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE links SET is_dismissed = $2 WHERE id = ANY($1)`,
			pq.Array(ids), dismissed)
		return err
	})
}

func (s *Store) PruneUnitLinks(ctx context.Context, sourceType content.SourceType, sourceID int64, keep map[string]struct{}) error {
	hashes := make([]string, 0, len(keep))
	for h := range keep {
		hashes = append(hashes, h)
	}
	return s.run("PruneUnitLinks", func() error {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM links
			WHERE source_type = $1 AND source_id = $2 AND url_hash <> ALL($3)`,
			sourceType, sourceID, pq.Array(hashes))
		return err
	})
}

func (s *Store) LinksForRecheck(ctx context.Context, limit int) ([]model.Link, error) {
	var links []model.Link
	err := s.run("LinksForRecheck", func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+linkColumns+` FROM links
			WHERE (is_broken OR is_warning) AND NOT is_dismissed
			ORDER BY last_check ASC NULLS FIRST
			LIMIT $1`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		links = links[:0]
		for rows.Next() {
			var l model.Link
			if err := scanLink(rows, &l); err != nil {
				return err
			}
			links = append(links, l)
		}
		return rows.Err()
	})
	return links, err
}

func (s *Store) Stats(ctx context.Context) (model.Stats, error) {
	var st model.Stats
	err := s.run("Stats", func() error {
		return s.db.QueryRowContext(ctx, `
			SELECT
				COUNT(*),
				COUNT(*) FILTER (WHERE is_broken AND NOT is_dismissed),
				COUNT(*) FILTER (WHERE is_warning AND NOT is_broken AND NOT is_dismissed),
				COUNT(*) FILTER (WHERE NOT is_broken AND NOT is_warning AND NOT is_skipped AND NOT is_dismissed AND last_check IS NOT NULL),
				COUNT(*) FILTER (WHERE is_skipped AND NOT is_broken AND NOT is_warning AND NOT is_dismissed),
				COUNT(*) FILTER (WHERE is_dismissed),
				COUNT(*) FILTER (WHERE last_check IS NULL AND NOT is_dismissed)
			FROM links`).
			Scan(&st.Total, &st.Broken, &st.Warning, &st.Working, &st.Skipped, &st.Dismissed, &st.Pending)
	})
	return st, err
}

func (s *Store) ClearLinks(ctx context.Context) error {
	return s.run("ClearLinks", func() error {
		_, err := s.db.ExecContext(ctx, `TRUNCATE links`)
		return err
	})
}

func (s *Store) CreateScan(ctx context.Context, scan *model.Scan) error {
	return s.run("CreateScan", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO scans (id, scan_type, status, started_at, last_progress)
			VALUES ($1, $2, $3, NOW(), NOW())`,
			scan.ID, scan.Type, scan.Status)
		// The partial unique index on active scans turns the losing side of
		// a concurrent start into a typed conflict instead of a second row.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return model.ErrScanActive
		}
		return err
	})
}

const scanColumns = `id, scan_type, status, started_at, ended_at,
	total_discovered, total_checked, total_broken, total_warning, total_skipped, last_progress`

func (s *Store) GetScan(ctx context.Context, id string) (*model.Scan, error) {
	var scan model.Scan
	err := s.run("GetScan", func() error {
		return scanScan(s.db.QueryRowContext(ctx,
			`SELECT `+scanColumns+` FROM scans WHERE id = $1`, id), &scan)
	})
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

func (s *Store) ActiveScan(ctx context.Context) (*model.Scan, error) {
	var scan model.Scan
	err := s.run("ActiveScan", func() error {
		return scanScan(s.db.QueryRowContext(ctx, `
			SELECT `+scanColumns+` FROM scans
			WHERE status IN ('pending', 'running')
			ORDER BY started_at DESC LIMIT 1`), &scan)
	})
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

func (s *Store) UpdateScanProgress(ctx context.Context, id string, discovered, checked, broken, warning, skipped int) error {
	return s.run("UpdateScanProgress", func() error {
		result, err := s.db.ExecContext(ctx, `
			UPDATE scans SET
				total_discovered = $2, total_checked = $3,
				total_broken = $4, total_warning = $5, total_skipped = $6,
				last_progress = NOW()
			WHERE id = $1`,
			id, discovered, checked, broken, warning, skipped)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return model.ErrNotFound
		}
		return nil
	})
}

func (s *Store) TransitionScan(ctx context.Context, id string, from, to model.ScanStatus) (bool, error) {
	var won bool
	err := s.run("TransitionScan", func() error {
		// Guarded update: of N concurrent readers racing the same
		// transition, exactly one sees rows affected.
		result, err := s.db.ExecContext(ctx, `
			UPDATE scans SET status = $3,
				ended_at = CASE WHEN $3 IN ('completed', 'cancelled', 'timed_out') THEN NOW() ELSE ended_at END
			WHERE id = $1 AND status = $2`,
			id, from, to)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		won = n > 0
		return nil
	})
	return won, err
}

func (s *Store) CancelActiveScans(ctx context.Context) (int, error) {
	var n int64
	err := s.run("CancelActiveScans", func() error {
		result, err := s.db.ExecContext(ctx, `
			UPDATE scans SET status = 'cancelled', ended_at = NOW()
			WHERE status IN ('pending', 'running')`)
		if err != nil {
			return err
		}
		n, err = result.RowsAffected()
		return err
	})
	return int(n), err
}

func (s *Store) PutRedirectRule(ctx context.Context, rule *model.RedirectRule) error {
	return s.run("PutRedirectRule", func() error {
		// Stored normalized so RedirectRuleFor can match on equality.
		return s.db.QueryRowContext(ctx, `
			INSERT INTO redirect_rules (source_url, target_url, code)
			VALUES ($1, $2, $3)
			ON CONFLICT (source_url) DO UPDATE SET target_url = EXCLUDED.target_url, code = EXCLUDED.code
			RETURNING id`,
			model.NormalizeURL(rule.SourceURL), rule.TargetURL, rule.Code).Scan(&rule.ID)
	})
}

func (s *Store) DeleteRedirectRule(ctx context.Context, id int64) error {
	return s.run("DeleteRedirectRule", func() error {
		result, err := s.db.ExecContext(ctx,
			`DELETE FROM redirect_rules WHERE id = $1`, id)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return model.ErrNotFound
		}
		return nil
	})
}

func (s *Store) ListRedirectRules(ctx context.Context) ([]model.RedirectRule, error) {
	var rules []model.RedirectRule
	err := s.run("ListRedirectRules", func() error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, source_url, target_url, code FROM redirect_rules ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()

		rules = rules[:0]
		for rows.Next() {
			var r model.RedirectRule
			if err := rows.Scan(&r.ID, &r.SourceURL, &r.TargetURL, &r.Code); err != nil {
				return err
			}
			rules = append(rules, r)
		}
		return rows.Err()
	})
	return rules, err
}

func (s *Store) RedirectRuleFor(ctx context.Context, sourceURL string) (*model.RedirectRule, error) {
	var rule model.RedirectRule
	err := s.run("RedirectRuleFor", func() error {
		err := s.db.QueryRowContext(ctx, `
			SELECT id, source_url, target_url, code FROM redirect_rules
			WHERE source_url = $1`, model.NormalizeURL(sourceURL)).
			Scan(&rule.ID, &rule.SourceURL, &rule.TargetURL, &rule.Code)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (s *Store) Close() error { return s.db.Close() }

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLink(row scanner, l *model.Link) error {
	var lastCheck sql.NullTime
	err := row.Scan(
		&l.ID, &l.URLHash, &l.URL, &l.SourceID, &l.SourceType, &l.SourceField,
		&l.LinkType, &l.Anchor, &l.StatusCode, &l.StatusText, &l.Broken,
		&l.Warning, &l.Skipped, &l.Dismissed, &l.RedirectURL, &l.RedirectCount,
		&l.ResponseTimeMS, &l.FirstDetected, &lastCheck, &l.CheckCount,
		&l.ErrorMessage,
	)
	if err != nil {
		return err
	}
	if lastCheck.Valid {
		l.LastCheck = &lastCheck.Time
	}
	return nil
}

func scanScan(row scanner, sc *model.Scan) error {
	var endedAt sql.NullTime
	err := row.Scan(
		&sc.ID, &sc.Type, &sc.Status, &sc.StartedAt, &endedAt,
		&sc.TotalDiscovered, &sc.TotalChecked, &sc.TotalBroken,
		&sc.TotalWarning, &sc.TotalSkipped, &sc.LastProgress,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	if err != nil {
		return err
	}
	if endedAt.Valid {
		sc.EndedAt = &endedAt.Time
	}
	return nil
}
