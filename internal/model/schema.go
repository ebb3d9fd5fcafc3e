package model

// Schema is the SQL schema for the links, scans and redirect_rules tables.
// The unique index on the link identity tuple is what lets two concurrent
// upserts for the same link resolve to a single row.
const Schema = `
CREATE TABLE IF NOT EXISTS links (
    id BIGSERIAL PRIMARY KEY,
    url_hash CHAR(64) NOT NULL,
    url TEXT NOT NULL,
    source_id BIGINT NOT NULL,
    source_type TEXT NOT NULL,
    source_field TEXT NOT NULL,
    link_type TEXT NOT NULL,
    anchor TEXT NOT NULL DEFAULT '',
    status_code INTEGER NOT NULL DEFAULT 0,
    status_text TEXT NOT NULL DEFAULT '',
    is_broken BOOLEAN NOT NULL DEFAULT FALSE,
    is_warning BOOLEAN NOT NULL DEFAULT FALSE,
    is_skipped BOOLEAN NOT NULL DEFAULT FALSE,
    is_dismissed BOOLEAN NOT NULL DEFAULT FALSE,
    redirect_url TEXT NOT NULL DEFAULT '',
    redirect_count INTEGER NOT NULL DEFAULT 0,
    response_time_ms BIGINT NOT NULL DEFAULT 0,
    first_detected TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_check TIMESTAMPTZ,
    check_count INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    UNIQUE (url_hash, source_id, source_type, source_field)
);

CREATE INDEX IF NOT EXISTS idx_links_status ON links (is_broken, is_warning, is_dismissed);
CREATE INDEX IF NOT EXISTS idx_links_last_check ON links (last_check);

CREATE TABLE IF NOT EXISTS scans (
    id UUID PRIMARY KEY,
    scan_type TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    ended_at TIMESTAMPTZ,
    total_discovered INTEGER NOT NULL DEFAULT 0,
    total_checked INTEGER NOT NULL DEFAULT 0,
    total_broken INTEGER NOT NULL DEFAULT 0,
    total_warning INTEGER NOT NULL DEFAULT 0,
    total_skipped INTEGER NOT NULL DEFAULT 0,
    last_progress TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_scans_single_active
    ON scans ((TRUE)) WHERE status IN ('pending', 'running');

CREATE TABLE IF NOT EXISTS redirect_rules (
    id BIGSERIAL PRIMARY KEY,
    source_url TEXT UNIQUE NOT NULL,
    target_url TEXT NOT NULL,
    code INTEGER NOT NULL DEFAULT 301
);
`
