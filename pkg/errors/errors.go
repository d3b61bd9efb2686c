package errors

import "errors"

// Document store errors
var (
	// ErrDocumentNotFound is returned when no critical CSS exists for a shop+template
	ErrDocumentNotFound = errors.New("critical css document not found")

	// ErrStorageNotInitialized is returned when storage is not initialized
	ErrStorageNotInitialized = errors.New("storage not initialized")

	// ErrDatabaseConnection is returned when database connection fails
	ErrDatabaseConnection = errors.New("database connection failed")
)

// Extraction errors
var (
	// ErrExtractionFailed is returned when critical CSS extraction fails for a page
	ErrExtractionFailed = errors.New("critical css extraction failed")

	// ErrInvalidURL is returned when the target URL cannot be parsed or is not http(s)
	ErrInvalidURL = errors.New("invalid target url")
)

// CDN errors
var (
	// ErrUploadFailed is returned when pushing an artifact to the CDN fails
	ErrUploadFailed = errors.New("cdn upload failed")
)

// Configuration errors
var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")
)
