// Package registry owns the map of live document CRDTs. It is an explicit
// state object, empty at construction and injected wherever needed rather
// than a package-level singleton, so tests can isolate document ids.
package registry

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/docsync/docsync/internal/core/crdt"
)

// SeedFunc fetches the persisted flat text used to materialize a document on
// first access. It runs outside any registry lock.
type SeedFunc func(ctx context.Context) (string, error)

// Handle wraps one live document CRDT. The mutex serializes every access to
// the document: a document is mutated by all of its clients' handlers, and
// unserialized mutation is the main corruption risk in this subsystem.
// Distinct documents lock independently.
type Handle struct {
	mu  sync.Mutex
	doc *crdt.Document
}

// Update runs fn with exclusive access to the document. fn must not retain
// the document past its return.
func (h *Handle) Update(fn func(doc *crdt.Document)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.doc)
}

// Text snapshots the visible text under the handle lock.
func (h *Handle) Text() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.doc.Text()
}

// Registry maps document ids to live handles.
type Registry struct {
	handles *xsync.MapOf[string, *Handle]
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{handles: xsync.NewMapOf[string, *Handle]()}
}

// GetOrCreate returns the live handle for a document, materializing it from
// the seed text on first access. An existing handle is returned unchanged;
// live edits are never re-seeded. When two first-joins race, both may fetch
// the seed but only one handle is registered.
func (r *Registry) GetOrCreate(ctx context.Context, docID string, seed SeedFunc) (*Handle, error) {
	if h, ok := r.handles.Load(docID); ok {
		return h, nil
	}

	text, err := seed(ctx)
	if err != nil {
		return nil, err
	}

	h, _ := r.handles.LoadOrCompute(docID, func() *Handle {
		doc := crdt.NewDocument(docID)
		doc.Seed(text)
		return &Handle{doc: doc}
	})
	return h, nil
}

// Get returns the handle for a document if it is live.
func (r *Registry) Get(docID string) (*Handle, bool) {
	return r.handles.Load(docID)
}

// Evict drops a document's handle. Evicting an absent id is a no-op.
func (r *Registry) Evict(docID string) {
	r.handles.Delete(docID)
}

// Len is the number of live documents.
func (r *Registry) Len() int {
	return r.handles.Size()
}
