package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/loquax/internal"
	"github.com/valpere/loquax/internal/dispatcher"
	"github.com/valpere/loquax/internal/loquax"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Async dispatches record concurrently; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		with_scansion BOOLEAN NOT NULL,
		with_ipa BOOLEAN NOT NULL,
		translation TEXT NOT NULL DEFAULT '',
		error_class TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		cached BOOLEAN DEFAULT FALSE,
		latency_ms INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- response_cache is only consulted when the caller opts in
	CREATE TABLE IF NOT EXISTS response_cache (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		with_scansion BOOLEAN NOT NULL,
		with_ipa BOOLEAN NOT NULL,
		translation TEXT NOT NULL,
		usage_count INTEGER DEFAULT 1,
		invalidated BOOLEAN DEFAULT FALSE,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(text, with_scansion, with_ipa)
	);

	CREATE INDEX IF NOT EXISTS idx_exchanges_created ON exchanges(created_at);
	CREATE INDEX IF NOT EXISTS idx_cache_lookup ON response_cache(text, with_scansion, with_ipa);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveExchange stores one round trip. An empty ID is replaced by a new UUID.
func (s *Store) SaveExchange(ctx context.Context, ex internal.Exchange) error {
	if ex.ID == "" {
		ex.ID = uuid.New().String()
	}
	if ex.Timestamp.IsZero() {
		ex.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchanges (id, text, with_scansion, with_ipa, translation, error_class, error, cached, latency_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.Text, ex.WithScansion, ex.WithIPA, ex.Translation, ex.ErrorClass, ex.Error, ex.Cached, ex.LatencyMs, ex.Timestamp)
	return err
}

// Record implements dispatcher.Recorder.
func (s *Store) Record(ctx context.Context, res dispatcher.Result) error {
	ex := internal.Exchange{
		Text:         res.Request.Text,
		WithScansion: res.Request.WithScansion,
		WithIPA:      res.Request.WithIPA,
		Translation:  res.Translation,
		Cached:       res.Cached,
		LatencyMs:    res.Latency.Milliseconds(),
	}
	if res.Err != nil {
		ex.ErrorClass = loquax.Classify(res.Err)
		ex.Error = res.Err.Error()
	}
	return s.SaveExchange(ctx, ex)
}

// ListExchanges returns the most recent exchanges first. limit ≤ 0 returns all.
func (s *Store) ListExchanges(ctx context.Context, limit int) ([]internal.Exchange, error) {
	query := `SELECT id, text, with_scansion, with_ipa, translation, error_class, error, cached, latency_ms, created_at FROM exchanges ORDER BY created_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []internal.Exchange
	for rows.Next() {
		var e internal.Exchange
		if err := rows.Scan(&e.ID, &e.Text, &e.WithScansion, &e.WithIPA, &e.Translation, &e.ErrorClass, &e.Error, &e.Cached, &e.LatencyMs, &e.Timestamp); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// ClearExchanges removes the whole history.
func (s *Store) ClearExchanges(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exchanges`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) GetCached(ctx context.Context, req loquax.TranslationRequest) (string, bool, error) {
	var translation string
	var invalidated bool

	key := normalizeText(req.Text)
	err := s.db.QueryRowContext(ctx,
		`SELECT translation, invalidated FROM response_cache WHERE text = ? AND with_scansion = ? AND with_ipa = ?`,
		key, req.WithScansion, req.WithIPA).Scan(&translation, &invalidated)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if invalidated {
		return "", false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE response_cache SET usage_count = usage_count + 1, last_used = ? WHERE text = ? AND with_scansion = ? AND with_ipa = ?`,
		time.Now(), key, req.WithScansion, req.WithIPA)

	return translation, true, err
}

func (s *Store) SaveCached(ctx context.Context, req loquax.TranslationRequest, translation string) error {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO response_cache (id, text, with_scansion, with_ipa, translation, usage_count, invalidated, last_used, created_at) VALUES (?, ?, ?, ?, ?, 1, FALSE, ?, ?)`,
		id, normalizeText(req.Text), req.WithScansion, req.WithIPA, translation, time.Now(), time.Now())
	return err
}

// CacheEntry is a row from the response_cache table.
type CacheEntry struct {
	ID           string
	Text         string
	WithScansion bool
	WithIPA      bool
	Translation  string
	UsageCount   int
	Invalidated  bool
	LastUsed     time.Time
}

// Stats summarises history and cache usage.
type Stats struct {
	Exchanges       int
	Failed          int
	TransportErrors int
	DecodeErrors    int
	ContractErrors  int
	AvgLatencyMs    float64
	CacheEntries    int
	ActiveEntries   int
	InvalidEntries  int
	CacheUsage      int
}

func (s *Store) InvalidateCached(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE response_cache SET invalidated = TRUE WHERE id = ?`, id)
	return err
}

// DeleteCached permanently removes a cache entry by ID.
func (s *Store) DeleteCached(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM response_cache WHERE id = ?`, id)
	return err
}

// ClearCache removes all cache entries.
func (s *Store) ClearCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM response_cache`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListCache returns all cache entries ordered by most recently used.
func (s *Store) ListCache(ctx context.Context) ([]CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, with_scansion, with_ipa, translation, usage_count, invalidated, last_used FROM response_cache ORDER BY last_used DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CacheEntry
	for rows.Next() {
		var e CacheEntry
		if err := rows.Scan(&e.ID, &e.Text, &e.WithScansion, &e.WithIPA, &e.Translation, &e.UsageCount, &e.Invalidated, &e.LastUsed); err != nil {
			return nil, err
		}
		results = append(results, e)
	}

	return results, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN error_class != '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN error_class = 'transport' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN error_class = 'decode' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN error_class = 'contract' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(latency_ms), 0)
		FROM exchanges`).Scan(
		&stats.Exchanges,
		&stats.Failed,
		&stats.TransportErrors,
		&stats.DecodeErrors,
		&stats.ContractErrors,
		&stats.AvgLatencyMs,
	)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN NOT invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(usage_count), 0)
		FROM response_cache`).Scan(
		&stats.CacheEntries,
		&stats.ActiveEntries,
		&stats.InvalidEntries,
		&stats.CacheUsage,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Cache adapts the store to dispatcher.Cache.
func (s *Store) Cache() dispatcher.Cache {
	return responseCache{s}
}

type responseCache struct {
	s *Store
}

func (c responseCache) Lookup(ctx context.Context, req loquax.TranslationRequest) (string, bool, error) {
	return c.s.GetCached(ctx, req)
}

func (c responseCache) Store(ctx context.Context, req loquax.TranslationRequest, translation string) error {
	return c.s.SaveCached(ctx, req, translation)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText applies Unicode NFC normalization for cache key comparison,
// so macrons typed as combining marks match their precomposed forms.
// Whitespace is kept: the server sees it, so it is part of the key.
func normalizeText(text string) string {
	return norm.NFC.String(text)
}
