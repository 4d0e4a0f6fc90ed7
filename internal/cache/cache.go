package cache

import (
	"context"
	"time"
)

// Cache stores OCR results keyed by image digest.
type Cache interface {
	// GetResult retrieves a cached result by key.
	// Returns nil if not found.
	GetResult(ctx context.Context, key string) (*Result, error)

	// SetResult stores a result with TTL.
	SetResult(ctx context.Context, key string, result *Result, ttl time.Duration) error

	// Close closes the cache connection.
	Close() error
}

// Result is a cached text detection outcome.
type Result struct {
	Engine      string       `json:"engine"`
	Annotations []Annotation `json:"annotations"`
}

// Annotation is one detected text block.
type Annotation struct {
	Description string `json:"description"`
	Locale      string `json:"locale,omitempty"`
}
