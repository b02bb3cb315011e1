// Package storage is the persistence collaborator for document content: a
// get/put-by-id store, atomic per call, last-writer-wins at whole-document
// granularity. The engine keeps no other durable state.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/docsync/docsync/internal/config"
)

// ErrNotFound is returned when a document has no persisted content yet.
var ErrNotFound = errors.New("document not found")

// Storage persists flattened document text by document id.
type Storage interface {
	GetContent(ctx context.Context, docID string) (string, error)
	SetContent(ctx context.Context, docID string, content string) error
	Close() error
}

// Open builds the backend selected by config.
func Open(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemory(), nil
	case config.BackendPebble:
		return OpenPebble(cfg.Path)
	case config.BackendRedis:
		return NewRedis(cfg.RedisAddr), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
