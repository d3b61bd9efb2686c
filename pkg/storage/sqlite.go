package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	svcerrors "github.com/aviroy619/critical-css-service/pkg/errors"
)

// SQLiteStore implements Store using a SQLite backend
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-backed store
func NewSQLiteStore(dbPath string) (Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", svcerrors.ErrDatabaseConnection, err)
	}

	store := &SQLiteStore{
		db: db,
	}

	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initDB initializes the database schema
func (s *SQLiteStore) initDB() error {
	schema := `
	CREATE TABLE IF NOT EXISTS critical_css (
		shop_id TEXT NOT NULL,
		template TEXT NOT NULL,
		css TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		source_url TEXT NOT NULL,
		viewport_w INTEGER NOT NULL,
		viewport_h INTEGER NOT NULL,
		cdn_url TEXT DEFAULT '',
		duration_ms INTEGER DEFAULT 0,
		generated_at DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (shop_id, template)
	);

	CREATE INDEX IF NOT EXISTS idx_css_shop ON critical_css(shop_id);
	CREATE INDEX IF NOT EXISTS idx_css_generated ON critical_css(generated_at);

	CREATE TABLE IF NOT EXISTS generation_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shop_id TEXT NOT NULL,
		template TEXT NOT NULL,
		message TEXT NOT NULL,
		occurred_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_errors_key ON generation_errors(shop_id, template, occurred_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveDocument inserts or replaces the artifact for a shop+template
func (s *SQLiteStore) SaveDocument(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	INSERT INTO critical_css
		(shop_id, template, css, content_hash, size_bytes, source_url,
		 viewport_w, viewport_h, cdn_url, duration_ms, generated_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(shop_id, template) DO UPDATE SET
		css = excluded.css,
		content_hash = excluded.content_hash,
		size_bytes = excluded.size_bytes,
		source_url = excluded.source_url,
		viewport_w = excluded.viewport_w,
		viewport_h = excluded.viewport_h,
		cdn_url = excluded.cdn_url,
		duration_ms = excluded.duration_ms,
		generated_at = excluded.generated_at,
		updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.Exec(query,
		doc.ShopID, doc.Template, doc.CSS, doc.ContentHash, doc.SizeBytes,
		doc.SourceURL, doc.ViewportW, doc.ViewportH, doc.CDNURL,
		doc.DurationMs, doc.GeneratedAt)
	return err
}

// GetDocument retrieves the artifact for a shop+template
func (s *SQLiteStore) GetDocument(shopID, template string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
	SELECT shop_id, template, css, content_hash, size_bytes, source_url,
	       viewport_w, viewport_h, cdn_url, duration_ms, generated_at, updated_at
	FROM critical_css WHERE shop_id = ? AND template = ?
	`

	doc := &Document{}
	err := s.db.QueryRow(query, shopID, template).Scan(
		&doc.ShopID, &doc.Template, &doc.CSS, &doc.ContentHash, &doc.SizeBytes,
		&doc.SourceURL, &doc.ViewportW, &doc.ViewportH, &doc.CDNURL,
		&doc.DurationMs, &doc.GeneratedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns all artifacts for a shop, without CSS bodies
func (s *SQLiteStore) ListDocuments(shopID string) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
	SELECT shop_id, template, content_hash, size_bytes, source_url,
	       viewport_w, viewport_h, cdn_url, duration_ms, generated_at, updated_at
	FROM critical_css WHERE shop_id = ? ORDER BY template
	`

	rows, err := s.db.Query(query, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDocumentSummaries(rows)
}

// DeleteDocument removes the artifact for a shop+template
func (s *SQLiteStore) DeleteDocument(shopID, template string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		"DELETE FROM critical_css WHERE shop_id = ? AND template = ?",
		shopID, template)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return svcerrors.ErrDocumentNotFound
	}
	return nil
}

// StaleDocuments returns artifacts generated before now-olderThan
func (s *SQLiteStore) StaleDocuments(olderThan time.Duration) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-olderThan)
	query := `
	SELECT shop_id, template, content_hash, size_bytes, source_url,
	       viewport_w, viewport_h, cdn_url, duration_ms, generated_at, updated_at
	FROM critical_css WHERE generated_at < ? ORDER BY generated_at
	`

	rows, err := s.db.Query(query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDocumentSummaries(rows)
}

// RecordError appends a failed attempt, trimming history past the cap
func (s *SQLiteStore) RecordError(shopID, template, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO generation_errors (shop_id, template, message) VALUES (?, ?, ?)",
		shopID, template, message)
	if err != nil {
		return err
	}

	// Keep only the newest entries per key.
	trim := `
	DELETE FROM generation_errors
	WHERE shop_id = ? AND template = ? AND id NOT IN (
		SELECT id FROM generation_errors
		WHERE shop_id = ? AND template = ?
		ORDER BY occurred_at DESC, id DESC LIMIT ?
	)
	`
	_, err = s.db.Exec(trim, shopID, template, shopID, template, errorHistoryLimit)
	return err
}

// RecentErrors returns the newest failures for a shop+template
func (s *SQLiteStore) RecentErrors(shopID, template string, limit int) ([]*GenerationError, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > errorHistoryLimit {
		limit = errorHistoryLimit
	}

	rows, err := s.db.Query(`
	SELECT id, shop_id, template, message, occurred_at
	FROM generation_errors
	WHERE shop_id = ? AND template = ?
	ORDER BY occurred_at DESC, id DESC LIMIT ?`,
		shopID, template, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*GenerationError
	for rows.Next() {
		ge := &GenerationError{}
		if err := rows.Scan(&ge.ID, &ge.ShopID, &ge.Template, &ge.Message, &ge.OccurredAt); err != nil {
			return nil, err
		}
		result = append(result, ge)
	}
	return result, rows.Err()
}

// Stats returns document and recorded-error counts
func (s *SQLiteStore) Stats() (documents, errorCount int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err = s.db.QueryRow("SELECT COUNT(*) FROM critical_css").Scan(&documents); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRow("SELECT COUNT(*) FROM generation_errors").Scan(&errorCount); err != nil {
		return 0, 0, err
	}
	return documents, errorCount, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanDocumentSummaries scans list-query rows (no css column)
func scanDocumentSummaries(rows *sql.Rows) ([]*Document, error) {
	var result []*Document
	for rows.Next() {
		doc := &Document{}
		if err := rows.Scan(
			&doc.ShopID, &doc.Template, &doc.ContentHash, &doc.SizeBytes,
			&doc.SourceURL, &doc.ViewportW, &doc.ViewportH, &doc.CDNURL,
			&doc.DurationMs, &doc.GeneratedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	return result, rows.Err()
}
