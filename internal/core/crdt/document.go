package crdt

import (
	"sort"

	"github.com/cespare/xxhash/v2"
)

// MasterReplica is the replica id of the server-side authoritative sequence.
const MasterReplica = "master"

// Document is the per-document CRDT state: the authoritative master sequence
// plus one server-side view per connected client replica. Views mirror what
// each client has applied so the connection layer can exclude the origin from
// broadcasts without double-applying. Not safe for concurrent use; wrap in a
// registry handle.
type Document struct {
	id      string
	master  *Sequence
	clients map[string]*Sequence
}

// ApplyResult reports the outcome of a batch of client operations.
type ApplyResult struct {
	Applied     int
	Unmatched   int // deletes referencing identifiers this document never saw
	Version     uint64
	Text        string
	ContentHash uint64
	Broadcast   []Operation
}

// DocumentState is the snapshot shipped to a newly connected client.
type DocumentState struct {
	DocumentID  string   `json:"document_id"`
	Version     uint64   `json:"version"`
	Elements    int      `json:"elements_count"`
	Tombstones  int      `json:"deleted_count"`
	ContentHash uint64   `json:"content_hash"`
	Clients     []string `json:"clients"`
}

// NewDocument returns an empty document CRDT.
func NewDocument(id string) *Document {
	return &Document{
		id:      id,
		master:  NewSequence(MasterReplica),
		clients: make(map[string]*Sequence),
	}
}

// ID returns the document id.
func (d *Document) ID() string { return d.id }

// Text returns the master's visible text.
func (d *Document) Text() string { return d.master.Text() }

// Version returns the master's mutation count.
func (d *Document) Version() uint64 { return d.master.Version() }

// ContentHash is a cheap fingerprint of the visible text, reported in acks
// so clients can detect divergence without shipping the whole document.
func (d *Document) ContentHash() uint64 {
	return xxhash.Sum64String(d.master.Text())
}

// Seed resets the document from persisted flat text. Every live client view
// is re-seeded with it too, so all server-side replicas agree on the seed
// identifiers. Used at cold start and on full-text replace messages.
func (d *Document) Seed(text string) {
	d.master.SeedFromText(text)
	for _, view := range d.clients {
		view.SeedFromText(text)
	}
}

// ClientView returns the server-side sequence for a client replica, cloning
// it from the master (tombstones included) on first access.
func (d *Document) ClientView(replica string) *Sequence {
	if view, ok := d.clients[replica]; ok {
		return view
	}
	view := d.master.CloneFor(replica)
	d.clients[replica] = view
	return view
}

// RemoveClient drops a client view. Unknown replicas are a no-op.
func (d *Document) RemoveClient(replica string) {
	delete(d.clients, replica)
}

// ApplyClientOps applies a batch of operations from one client to the master
// and to every view, and returns the ops to rebroadcast. Application is
// idempotent per operation, so replaying the batch into the origin's own
// view (which generated the ops) is harmless and keeps it current.
func (d *Document) ApplyClientOps(replica string, ops []Operation) ApplyResult {
	d.ClientView(replica)

	res := ApplyResult{Broadcast: ops}
	for _, op := range ops {
		if d.master.ApplyRemote(op) {
			res.Applied++
		} else if op.Kind == OpDelete && !d.master.Contains(op.ID) {
			res.Unmatched++
		}
		for _, view := range d.clients {
			view.ApplyRemote(op)
		}
	}

	res.Version = d.master.Version()
	res.Text = d.master.Text()
	res.ContentHash = d.ContentHash()
	return res
}

// State snapshots the document for an init message.
func (d *Document) State() DocumentState {
	clients := make([]string, 0, len(d.clients))
	for replica := range d.clients {
		clients = append(clients, replica)
	}
	sort.Strings(clients)

	return DocumentState{
		DocumentID:  d.id,
		Version:     d.master.Version(),
		Elements:    d.master.Len(),
		Tombstones:  d.master.Tombstones(),
		ContentHash: d.ContentHash(),
		Clients:     clients,
	}
}
