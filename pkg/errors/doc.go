// Package errors defines sentinel errors shared across service packages.
// Pool-specific errors live in pkg/pool next to the code that produces them.
package errors
