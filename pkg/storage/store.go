package storage

import "time"

// Document is a generated critical CSS artifact for one shop+template
type Document struct {
	ShopID      string    `json:"shop_id"`
	Template    string    `json:"template"`
	CSS         string    `json:"css,omitempty"`
	ContentHash string    `json:"content_hash"`
	SizeBytes   int       `json:"size_bytes"`
	SourceURL   string    `json:"source_url"`
	ViewportW   int       `json:"viewport_width"`
	ViewportH   int       `json:"viewport_height"`
	CDNURL      string    `json:"cdn_url,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	GeneratedAt time.Time `json:"generated_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GenerationError is one failed extraction attempt kept for diagnostics
type GenerationError struct {
	ID         int64     `json:"id"`
	ShopID     string    `json:"shop_id"`
	Template   string    `json:"template"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// errorHistoryLimit caps stored failures per shop+template
const errorHistoryLimit = 20

// Store defines the interface for critical CSS persistence
type Store interface {
	// Document operations
	SaveDocument(doc *Document) error
	GetDocument(shopID, template string) (*Document, error)
	ListDocuments(shopID string) ([]*Document, error)
	DeleteDocument(shopID, template string) error
	StaleDocuments(olderThan time.Duration) ([]*Document, error)

	// Error history operations
	RecordError(shopID, template, message string) error
	RecentErrors(shopID, template string, limit int) ([]*GenerationError, error)

	// Stats returns document and recorded-error counts
	Stats() (documents, errors int, err error)

	// Lifecycle
	Close() error
}
