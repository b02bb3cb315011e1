package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/docsync/docsync/internal/auth"
	"github.com/docsync/docsync/internal/core/crdt"
	"github.com/docsync/docsync/internal/core/observability/log"
	"github.com/docsync/docsync/internal/core/protocol"
	"github.com/docsync/docsync/internal/core/registry"
	"github.com/docsync/docsync/internal/storage"
)

// Conn is the transport surface the manager needs from a connection. The
// WebSocket endpoint wraps *websocket.Conn behind it; tests substitute an
// in-memory fake.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// userColors is the fixed palette clients use to tint remote cursors. A user
// keeps the same color for the whole session and across rooms.
var userColors = []string{
	"#FF5733", "#33FF57", "#3357FF", "#F333FF",
	"#FF33A1", "#33FFF0", "#FFBD33", "#8D33FF",
}

func colorFor(userID string) string {
	return userColors[xxhash.Sum64String(userID)%uint64(len(userColors))]
}

// client is one connection's bookkeeping inside a document session.
type client struct {
	conn     Conn
	userID   string
	username string
	replica  string
	color    string
	lastPong time.Time
}

// Presence describes one online participant.
type Presence struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	Color    string `json:"color,omitempty"`
}

// ManagerConfig tunes the manager's background behavior.
type ManagerConfig struct {
	SaveInterval      time.Duration
	HeartbeatInterval time.Duration
}

// Manager routes messages between a document's connections and its CRDT. It
// owns the per-document session sets and the dirty set driving persistence.
// Sessions are process-lifetime state, rebuildable from storage.
type Manager struct {
	cfg      ManagerConfig
	registry *registry.Registry
	store    storage.Storage
	perms    auth.Permissions
	logger   log.Log
	metrics  *Metrics

	mu       sync.Mutex
	sessions map[string][]*client

	dirtyMu sync.Mutex
	dirty   map[string]struct{}
}

// NewManager wires a manager from its collaborators.
func NewManager(
	cfg ManagerConfig,
	reg *registry.Registry,
	store storage.Storage,
	perms auth.Permissions,
	logger log.Log,
	metrics *Metrics,
) *Manager {
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = 5 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 25 * time.Second
	}
	m := &Manager{
		cfg:      cfg,
		registry: reg,
		store:    store,
		perms:    perms,
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[string][]*client),
		dirty:    make(map[string]struct{}),
	}
	return m
}

// Connect registers a connection in the document's session, sends it the
// init snapshot and announces it to the rest of the room. The document CRDT
// is materialized from storage if this is the first connection.
func (m *Manager) Connect(ctx context.Context, conn Conn, docID string, user auth.User) error {
	c := &client{
		conn:     conn,
		userID:   user.ID,
		username: user.Name,
		replica:  crdt.NewReplicaID(),
		color:    colorFor(user.ID),
		lastPong: time.Now(),
	}

	// The session entry goes in before the handle is fetched. Eviction
	// decisions check the session set under mu, so a registered entry pins
	// the document against a racing last-leaver or saver sweep; an eviction
	// that already won is undone by materialize re-seeding from storage.
	m.mu.Lock()
	m.sessions[docID] = append(m.sessions[docID], c)
	m.mu.Unlock()

	handle, err := m.materialize(ctx, docID)
	if err != nil {
		m.dropSessionEntry(docID, conn)
		return err
	}

	var content string
	var state crdt.DocumentState
	handle.Update(func(doc *crdt.Document) {
		doc.ClientView(c.replica)
		content = doc.Text()
		state = doc.State()
	})

	m.metrics.ActiveConnections.Inc()
	m.metrics.LiveDocuments.Set(float64(m.registry.Len()))

	if err := conn.WriteJSON(protocol.Init(content, state)); err != nil {
		m.Disconnect(ctx, conn, docID)
		return err
	}

	m.logger.Info("client joined document",
		log.String("doc_id", docID), log.String("user_id", user.ID), log.String("replica", c.replica))
	m.Broadcast(ctx, docID, protocol.UserJoined(user.ID, user.Name, c.color), conn)
	return nil
}

// Disconnect removes a connection from the document's session. It is
// idempotent: an already-removed connection is a no-op. When the last
// connection leaves, the flattened text is persisted immediately and the
// document is evicted from the registry.
func (m *Manager) Disconnect(ctx context.Context, conn Conn, docID string) {
	m.mu.Lock()
	clients := m.sessions[docID]
	var removed *client
	remaining := clients[:0]
	for _, c := range clients {
		if c.conn == conn {
			removed = c
			continue
		}
		remaining = append(remaining, c)
	}
	empty := len(remaining) == 0
	if empty {
		delete(m.sessions, docID)
	} else {
		m.sessions[docID] = remaining
	}
	m.mu.Unlock()

	if removed == nil {
		return
	}
	m.metrics.ActiveConnections.Dec()

	if handle, ok := m.registry.Get(docID); ok {
		handle.Update(func(doc *crdt.Document) { doc.RemoveClient(removed.replica) })
	}

	if empty {
		// Last one out: persist synchronously, then drop the live CRDT. On a
		// persist failure the handle and dirty mark stay so the background
		// saver keeps retrying; nothing is lost silently.
		if err := m.saveNow(ctx, docID); err != nil {
			m.logger.Error("save on last disconnect failed; keeping document for retry",
				log.String("doc_id", docID), log.Error(err))
		} else if m.evictIfIdle(docID) {
			m.logger.Info("document room closed", log.String("doc_id", docID))
		}
	} else {
		m.Broadcast(ctx, docID, protocol.PresenceLeave(removed.userID), nil)
	}
	m.metrics.LiveDocuments.Set(float64(m.registry.Len()))
}

// materialize returns the live handle for a document, seeding it from storage
// when absent. A missing document seeds as empty content.
func (m *Manager) materialize(ctx context.Context, docID string) (*registry.Handle, error) {
	return m.registry.GetOrCreate(ctx, docID, func(ctx context.Context) (string, error) {
		content, err := m.store.GetContent(ctx, docID)
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return content, err
	})
}

// evictIfIdle drops the live CRDT unless a connection joined meanwhile. The
// session check and the eviction share the lock, so a racing Connect either
// pins the document here or finds it already evicted and re-materializes it.
func (m *Manager) evictIfIdle(docID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions[docID]) > 0 {
		return false
	}
	m.registry.Evict(docID)
	return true
}

// dropSessionEntry removes a connection registered by Connect before its
// document could be materialized.
func (m *Manager) dropSessionEntry(docID string, conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clients := m.sessions[docID]
	remaining := clients[:0]
	for _, c := range clients {
		if c.conn != conn {
			remaining = append(remaining, c)
		}
	}
	if len(remaining) == 0 {
		delete(m.sessions, docID)
	} else {
		m.sessions[docID] = remaining
	}
}

// HandleMessage decodes one client frame and dispatches it. Unknown message
// types are ignored; malformed frames earn the sender an error notice but
// never a disconnect.
func (m *Manager) HandleMessage(ctx context.Context, docID string, sender Conn, raw []byte) {
	in, err := protocol.Decode(raw)
	if err != nil {
		m.logger.Debug("malformed message", log.String("doc_id", docID), log.Error(err))
		m.sendTo(ctx, docID, sender, protocol.ErrorMessage("malformed message"))
		return
	}

	c := m.clientFor(docID, sender)
	if c == nil {
		// Raced with a disconnect; nothing to route.
		return
	}

	switch in.Kind {
	case protocol.KindContent, protocol.KindContentUpdate:
		m.handleContent(ctx, docID, c, in)
	case protocol.KindCursor:
		m.Broadcast(ctx, docID, protocol.CursorBroadcast(c.userID, c.username, c.color, in.Cursor), sender)
	case protocol.KindSelection:
		m.Broadcast(ctx, docID, protocol.SelectionBroadcast(c.userID, c.username, c.color, in.Selection), sender)
	case protocol.KindCRDTOps:
		m.handleCRDTOps(ctx, docID, c, in)
	case protocol.KindPing:
		m.sendTo(ctx, docID, sender, protocol.Pong(time.Now()))
	case protocol.KindPong:
		m.mu.Lock()
		c.lastPong = time.Now()
		m.mu.Unlock()
	default:
		// Unrecognized variant: deliberate no-op, tolerating protocol skew.
		m.logger.Debug("ignoring unknown message type", log.String("doc_id", docID))
	}
}

// handleContent treats the message as a full-text replace: re-seed the CRDT,
// mark the document dirty and rebroadcast preserving the original shape.
func (m *Manager) handleContent(ctx context.Context, docID string, c *client, in protocol.Inbound) {
	if !m.perms.CanEdit(ctx, c.userID, docID) {
		m.sendTo(ctx, docID, c.conn, protocol.ErrorMessage("permission denied"))
		return
	}
	handle, err := m.materialize(ctx, docID)
	if err != nil {
		m.logger.Error("materialize document failed",
			log.String("doc_id", docID), log.Error(err))
		m.sendTo(ctx, docID, c.conn, protocol.ErrorMessage("document unavailable"))
		return
	}

	handle.Update(func(doc *crdt.Document) { doc.Seed(in.Content) })
	m.markDirty(docID)
	m.Broadcast(ctx, docID, protocol.ContentBroadcast(in.Kind, in.Content, c.userID), c.conn)
}

// handleCRDTOps applies a batch of fine-grained operations, rebroadcasts it
// to the rest of the room and acks the sender.
func (m *Manager) handleCRDTOps(ctx context.Context, docID string, c *client, in protocol.Inbound) {
	if len(in.Ops) == 0 {
		return
	}
	if !m.perms.CanEdit(ctx, c.userID, docID) {
		m.sendTo(ctx, docID, c.conn, protocol.ErrorMessage("permission denied"))
		return
	}
	// A connected client always gets a live document, even if an eviction won
	// a race against its join; dropping the batch here would lose the edit
	// with no signal to anyone.
	handle, err := m.materialize(ctx, docID)
	if err != nil {
		m.logger.Error("materialize document failed",
			log.String("doc_id", docID), log.Error(err))
		m.sendTo(ctx, docID, c.conn, protocol.ErrorMessage("document unavailable"))
		return
	}

	var res crdt.ApplyResult
	handle.Update(func(doc *crdt.Document) {
		res = doc.ApplyClientOps(c.replica, in.Ops)
	})

	m.metrics.OpsApplied.Add(float64(res.Applied))
	if res.Unmatched > 0 {
		// Either redelivery out of order or a genuine convergence gap.
		m.metrics.UnmatchedDeletes.Add(float64(res.Unmatched))
		m.logger.Warn("dropped deletes for unknown elements",
			log.String("doc_id", docID), log.String("user_id", c.userID), log.Int("count", res.Unmatched))
	}

	m.markDirty(docID)
	m.Broadcast(ctx, docID, protocol.CRDTOpsBroadcast(res.Broadcast, res.Version, c.userID), c.conn)
	m.sendTo(ctx, docID, c.conn, protocol.Ack(res.Version, res.Applied, res.ContentHash))
}

// Broadcast fans a message out to every connection in the document's room
// except exclude. Best effort: a failed send turns that connection into an
// implicit disconnect without aborting delivery to the rest.
func (m *Manager) Broadcast(ctx context.Context, docID string, msg any, exclude Conn) {
	m.mu.Lock()
	targets := make([]*client, 0, len(m.sessions[docID]))
	for _, c := range m.sessions[docID] {
		if c.conn != exclude {
			targets = append(targets, c)
		}
	}
	m.mu.Unlock()

	for _, c := range targets {
		if err := c.conn.WriteJSON(msg); err != nil {
			m.metrics.BroadcastDrops.Inc()
			m.logger.Warn("send failed; dropping connection",
				log.String("doc_id", docID), log.String("user_id", c.userID), log.Error(err))
			m.Disconnect(ctx, c.conn, docID)
		}
	}
}

// sendTo delivers a message to one connection with the same failure
// semantics as Broadcast.
func (m *Manager) sendTo(ctx context.Context, docID string, conn Conn, msg any) {
	if err := conn.WriteJSON(msg); err != nil {
		m.metrics.BroadcastDrops.Inc()
		m.Disconnect(ctx, conn, docID)
	}
}

// OnlineUsers lists the participants currently connected to a document.
func (m *Manager) OnlineUsers(docID string) []Presence {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]Presence, 0, len(m.sessions[docID]))
	for _, c := range m.sessions[docID] {
		users = append(users, Presence{UserID: c.userID, Username: c.username, Color: c.color})
	}
	return users
}

// RunSaver periodically persists dirty documents until ctx is cancelled,
// flushing one final time on the way out.
func (m *Manager) RunSaver(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.SaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.FlushDirty(context.Background())
			return ctx.Err()
		case <-ticker.C:
			m.FlushDirty(ctx)
		}
	}
}

// FlushDirty persists every dirty document's flattened text. A failed
// persist re-marks the document so the next sweep retries; the in-memory
// state stays visible to clients throughout (apply-first policy).
func (m *Manager) FlushDirty(ctx context.Context) {
	m.dirtyMu.Lock()
	toSave := make([]string, 0, len(m.dirty))
	for docID := range m.dirty {
		toSave = append(toSave, docID)
	}
	m.dirty = make(map[string]struct{})
	m.dirtyMu.Unlock()

	for _, docID := range toSave {
		handle, ok := m.registry.Get(docID)
		if !ok {
			continue
		}
		if err := m.store.SetContent(ctx, docID, handle.Text()); err != nil {
			m.metrics.PersistFailures.Inc()
			m.logger.Error("persist failed; will retry",
				log.String("doc_id", docID), log.Error(err))
			m.markDirty(docID)
			continue
		}
		// A document saved after its room emptied has nothing keeping it live.
		m.evictIfIdle(docID)
	}
}

// RunHeartbeat pings every connection on an interval and reaps those that
// stopped answering. Reaping is pure disconnect cleanup; it never touches
// document state.
func (m *Manager) RunHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sweepHeartbeats(ctx)
		}
	}
}

func (m *Manager) sweepHeartbeats(ctx context.Context) {
	type target struct {
		docID string
		c     *client
		stale bool
	}
	deadline := time.Now().Add(-3 * m.cfg.HeartbeatInterval)

	m.mu.Lock()
	targets := make([]target, 0)
	for docID, clients := range m.sessions {
		for _, c := range clients {
			targets = append(targets, target{docID: docID, c: c, stale: c.lastPong.Before(deadline)})
		}
	}
	m.mu.Unlock()

	ping := protocol.Ping(time.Now())
	for _, t := range targets {
		if t.stale {
			m.logger.Info("reaping unresponsive connection",
				log.String("doc_id", t.docID), log.String("user_id", t.c.userID))
			m.Disconnect(ctx, t.c.conn, t.docID)
			t.c.conn.Close()
			continue
		}
		if err := t.c.conn.WriteJSON(ping); err != nil {
			m.Disconnect(ctx, t.c.conn, t.docID)
		}
	}
}

// saveNow synchronously persists one document's flattened text.
func (m *Manager) saveNow(ctx context.Context, docID string) error {
	handle, ok := m.registry.Get(docID)
	if !ok {
		return nil
	}
	if err := m.store.SetContent(ctx, docID, handle.Text()); err != nil {
		m.metrics.PersistFailures.Inc()
		m.markDirty(docID)
		return err
	}
	m.clearDirty(docID)
	return nil
}

func (m *Manager) clientFor(docID string, conn Conn) *client {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.sessions[docID] {
		if c.conn == conn {
			return c
		}
	}
	return nil
}

func (m *Manager) markDirty(docID string) {
	m.dirtyMu.Lock()
	m.dirty[docID] = struct{}{}
	m.dirtyMu.Unlock()
}

func (m *Manager) clearDirty(docID string) {
	m.dirtyMu.Lock()
	delete(m.dirty, docID)
	m.dirtyMu.Unlock()
}

