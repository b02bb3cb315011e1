package storage

import (
	"context"
	"errors"

	"github.com/cockroachdb/pebble"
)

var _ Storage = (*Pebble)(nil)

// Pebble is an embedded store backed by a pebble database.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens (creating if needed) a pebble database at path.
func OpenPebble(path string) (*Pebble, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Pebble{db: db}, nil
}

func docKey(docID string) []byte {
	return []byte("doc/" + docID)
}

func (p *Pebble) GetContent(_ context.Context, docID string) (string, error) {
	value, closer, err := p.db.Get(docKey(docID))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	content := string(value)
	if err := closer.Close(); err != nil {
		return "", err
	}
	return content, nil
}

func (p *Pebble) SetContent(_ context.Context, docID string, content string) error {
	return p.db.Set(docKey(docID), []byte(content), pebble.Sync)
}

func (p *Pebble) Close() error {
	return p.db.Close()
}
