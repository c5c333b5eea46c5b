// Package probecache implements the persistent cache store of §4.3: three
// logical tables (tls, whois, http) backed by Postgres, each keyed
// differently, each with a checked_at timestamp governing freshness.
package probecache

import (
	"context"
	"crypto/md5" //nolint:gosec // fingerprint, not a security boundary
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Table identifies one of the three logical cache tables of §4.3.
type Table string

const (
	TableTLS   Table = "probe_tls_cache"
	TableWhois Table = "probe_whois_cache"
	TableHTTP  Table = "probe_http_cache"
)

// Default TTLs per §4.3.
const (
	TTLTLS   = 24 * time.Hour
	TTLWhois = 14 * 24 * time.Hour
)

// Record is one cached row: an opaque response body plus the timestamp
// it was checked at, per §3's "cached records" invariant.
type Record struct {
	Key        string
	CheckedAt  time.Time
	Content    string
	FastFailed bool
}

// Store is the cache store of §4.3, backed by a *sql.DB (Postgres via
// github.com/lib/pq, following the teacher's core/pkg/database and
// core/pkg/store convention of a thin wrapper with an explicit Init).
type Store struct {
	db *sql.DB
}

// New wraps an existing *sql.DB as a cache Store. The caller owns the
// *sql.DB's lifecycle (open/close); Store never closes it.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init creates the three cache tables if they do not already exist.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + string(TableTLS) + ` (
			key TEXT PRIMARY KEY,
			checked_at TIMESTAMPTZ NOT NULL,
			response_content TEXT NOT NULL,
			fast_failed BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS ` + string(TableWhois) + ` (
			key TEXT PRIMARY KEY,
			checked_at TIMESTAMPTZ NOT NULL,
			response_content TEXT NOT NULL,
			fast_failed BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS ` + string(TableHTTP) + ` (
			key TEXT PRIMARY KEY,
			checked_at TIMESTAMPTZ NOT NULL,
			response_content TEXT NOT NULL,
			fast_failed BOOLEAN NOT NULL DEFAULT FALSE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("probecache: init %w", err)
		}
	}
	return nil
}

// Get fetches a row by key from table, returning (nil, nil) on a cache
// miss rather than an error — a miss is a normal, expected outcome.
func (s *Store) Get(ctx context.Context, table Table, key string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT key, checked_at, response_content, fast_failed FROM %s WHERE key = $1`, table),
		key,
	)
	var rec Record
	if err := row.Scan(&rec.Key, &rec.CheckedAt, &rec.Content, &rec.FastFailed); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("probecache: get %s: %w", table, err)
	}
	return &rec, nil
}

// Put upserts a row, replacing any prior content for the same key —
// "refreshed records replace in place" per §3's invariants. Last-writer
// wins with no cross-key invariants, as required by §5.
func (s *Store) Put(ctx context.Context, table Table, key, content string, checkedAt time.Time, fastFailed bool) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key, checked_at, response_content, fast_failed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			checked_at = EXCLUDED.checked_at,
			response_content = EXCLUDED.response_content,
			fast_failed = EXCLUDED.fast_failed
	`, table)
	if _, err := s.db.ExecContext(ctx, query, key, checkedAt, content, fastFailed); err != nil {
		return fmt.Errorf("probecache: put %s: %w", table, err)
	}
	return nil
}

// Fresh reports whether rec is still usable given ttl and now: cached
// records are reused iff now - checked_at <= ttl, per §3.
func Fresh(rec *Record, ttl time.Duration, now time.Time) bool {
	if rec == nil {
		return false
	}
	return now.Sub(rec.CheckedAt) <= ttl
}

// Fingerprint computes the MD5-based cache key for the http table,
// "request fingerprint including method/URL/body/headers" per §4.3.
func Fingerprint(method, url, body string, headers map[string]string) string {
	h := md5.New() //nolint:gosec // fingerprint, not a security boundary
	_, _ = fmt.Fprintf(h, "%s|%s|%s", method, url, body)
	for _, k := range sortedKeys(headers) {
		_, _ = fmt.Fprintf(h, "|%s=%s", k, headers[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TLSKey computes the MD5 key for the tls table: MD5(url|ip|port), §4.3.
func TLSKey(url, ip, port string) string {
	h := md5.New() //nolint:gosec // fingerprint, not a security boundary
	_, _ = fmt.Fprintf(h, "%s|%s|%s", url, ip, port)
	return hex.EncodeToString(h.Sum(nil))
}
