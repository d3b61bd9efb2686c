package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	svcerrors "github.com/aviroy619/critical-css-service/pkg/errors"
)

// MySQLStore implements Store using a MySQL backend
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore creates a new MySQL-backed store from a DSN
func NewMySQLStore(dsn string) (Store, error) {
	// time.Time scanning requires parseTime.
	if !strings.Contains(dsn, "parseTime") {
		if strings.Contains(dsn, "?") {
			dsn += "&parseTime=true"
		} else {
			dsn += "?parseTime=true"
		}
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", svcerrors.ErrDatabaseConnection, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", svcerrors.ErrDatabaseConnection, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &MySQLStore{db: db}
	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// initDB initializes the database schema
func (s *MySQLStore) initDB() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS critical_css (
			shop_id VARCHAR(191) NOT NULL,
			template VARCHAR(191) NOT NULL,
			css MEDIUMTEXT NOT NULL,
			content_hash VARCHAR(64) NOT NULL,
			size_bytes INT NOT NULL,
			source_url TEXT NOT NULL,
			viewport_w INT NOT NULL,
			viewport_h INT NOT NULL,
			cdn_url TEXT,
			duration_ms BIGINT DEFAULT 0,
			generated_at DATETIME NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			PRIMARY KEY (shop_id, template),
			INDEX idx_css_generated (generated_at)
		)`,
		`CREATE TABLE IF NOT EXISTS generation_errors (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			shop_id VARCHAR(191) NOT NULL,
			template VARCHAR(191) NOT NULL,
			message TEXT NOT NULL,
			occurred_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_errors_key (shop_id, template, occurred_at)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveDocument inserts or replaces the artifact for a shop+template
func (s *MySQLStore) SaveDocument(doc *Document) error {
	query := `
	INSERT INTO critical_css
		(shop_id, template, css, content_hash, size_bytes, source_url,
		 viewport_w, viewport_h, cdn_url, duration_ms, generated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		css = VALUES(css),
		content_hash = VALUES(content_hash),
		size_bytes = VALUES(size_bytes),
		source_url = VALUES(source_url),
		viewport_w = VALUES(viewport_w),
		viewport_h = VALUES(viewport_h),
		cdn_url = VALUES(cdn_url),
		duration_ms = VALUES(duration_ms),
		generated_at = VALUES(generated_at)
	`

	_, err := s.db.Exec(query,
		doc.ShopID, doc.Template, doc.CSS, doc.ContentHash, doc.SizeBytes,
		doc.SourceURL, doc.ViewportW, doc.ViewportH, doc.CDNURL,
		doc.DurationMs, doc.GeneratedAt)
	return err
}

// GetDocument retrieves the artifact for a shop+template
func (s *MySQLStore) GetDocument(shopID, template string) (*Document, error) {
	query := `
	SELECT shop_id, template, css, content_hash, size_bytes, source_url,
	       viewport_w, viewport_h, cdn_url, duration_ms, generated_at, updated_at
	FROM critical_css WHERE shop_id = ? AND template = ?
	`

	doc := &Document{}
	var cdnURL sql.NullString
	err := s.db.QueryRow(query, shopID, template).Scan(
		&doc.ShopID, &doc.Template, &doc.CSS, &doc.ContentHash, &doc.SizeBytes,
		&doc.SourceURL, &doc.ViewportW, &doc.ViewportH, &cdnURL,
		&doc.DurationMs, &doc.GeneratedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	doc.CDNURL = cdnURL.String
	return doc, nil
}

// ListDocuments returns all artifacts for a shop, without CSS bodies
func (s *MySQLStore) ListDocuments(shopID string) ([]*Document, error) {
	rows, err := s.db.Query(`
	SELECT shop_id, template, content_hash, size_bytes, source_url,
	       viewport_w, viewport_h, COALESCE(cdn_url, ''), duration_ms, generated_at, updated_at
	FROM critical_css WHERE shop_id = ? ORDER BY template`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDocumentSummaries(rows)
}

// DeleteDocument removes the artifact for a shop+template
func (s *MySQLStore) DeleteDocument(shopID, template string) error {
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
func (s *MySQLStore) StaleDocuments(olderThan time.Duration) ([]*Document, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := s.db.Query(`
	SELECT shop_id, template, content_hash, size_bytes, source_url,
	       viewport_w, viewport_h, COALESCE(cdn_url, ''), duration_ms, generated_at, updated_at
	FROM critical_css WHERE generated_at < ? ORDER BY generated_at`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDocumentSummaries(rows)
}

// RecordError appends a failed attempt, trimming history past the cap
func (s *MySQLStore) RecordError(shopID, template, message string) error {
	_, err := s.db.Exec(
		"INSERT INTO generation_errors (shop_id, template, message) VALUES (?, ?, ?)",
		shopID, template, message)
	if err != nil {
		return err
	}

	// MySQL cannot delete from a table referenced in a subquery directly;
	// wrap the id selection in a derived table.
	trim := `
	DELETE FROM generation_errors
	WHERE shop_id = ? AND template = ? AND id NOT IN (
		SELECT id FROM (
			SELECT id FROM generation_errors
			WHERE shop_id = ? AND template = ?
			ORDER BY occurred_at DESC, id DESC LIMIT ?
		) AS keep
	)
	`
	_, err = s.db.Exec(trim, shopID, template, shopID, template, errorHistoryLimit)
	return err
}

// RecentErrors returns the newest failures for a shop+template
func (s *MySQLStore) RecentErrors(shopID, template string, limit int) ([]*GenerationError, error) {
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
func (s *MySQLStore) Stats() (documents, errorCount int, err error) {
	if err = s.db.QueryRow("SELECT COUNT(*) FROM critical_css").Scan(&documents); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRow("SELECT COUNT(*) FROM generation_errors").Scan(&errorCount); err != nil {
		return 0, 0, err
	}
	return documents, errorCount, nil
}

// Close closes the database connection
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
