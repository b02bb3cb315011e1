package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/docsync/docsync/internal/auth"
	"github.com/docsync/docsync/internal/core/observability/log"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketServer upgrades document connections and pumps their frames into
// the manager.
type WebSocketServer struct {
	manager        *Manager
	identity       auth.Identity
	logger         log.Log
	maxMessageSize int64
}

// NewWebSocketServer wires the endpoint from its collaborators.
func NewWebSocketServer(manager *Manager, identity auth.Identity, logger log.Log, maxMessageSize int64) *WebSocketServer {
	if maxMessageSize <= 0 {
		maxMessageSize = 1 << 20
	}
	return &WebSocketServer{
		manager:        manager,
		identity:       identity,
		logger:         logger,
		maxMessageSize: maxMessageSize,
	}
}

// Manager exposes the connection manager for lifecycle wiring.
func (s *WebSocketServer) Manager() *Manager { return s.manager }

// Register mounts the document endpoint on mux.
func (s *WebSocketServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws/documents/", s.handleDocument)
}

func (s *WebSocketServer) handleDocument(w http.ResponseWriter, r *http.Request) {
	docID := strings.TrimPrefix(r.URL.Path, "/ws/documents/")
	if docID == "" || strings.Contains(docID, "/") {
		http.NotFound(w, r)
		return
	}

	// Credentials are resolved before the upgrade; the engine itself never
	// parses them.
	user, err := s.identity.Resolve(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", log.String("doc_id", docID), log.Error(err))
		return
	}

	s.serve(newWSConn(conn), docID, user)
}

// serve owns one connection's read loop. Read errors, including abrupt
// closes, end the loop and run the disconnect path; any mutation already
// applied stays applied.
func (s *WebSocketServer) serve(conn *wsConn, docID string, user auth.User) {
	// The connection outlives the upgrade request, so its work is not tied
	// to the request context.
	ctx := context.Background()
	defer conn.Close()

	if err := s.manager.Connect(ctx, conn, docID, user); err != nil {
		s.logger.Warn("connect failed",
			log.String("doc_id", docID), log.String("user_id", user.ID), log.Error(err))
		return
	}
	defer s.manager.Disconnect(ctx, conn, docID)

	conn.raw.SetReadLimit(s.maxMessageSize)
	for {
		_, data, err := conn.raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("connection closed",
					log.String("doc_id", docID), log.String("user_id", user.ID), log.Error(err))
			}
			return
		}
		s.manager.HandleMessage(ctx, docID, conn, data)
	}
}

var _ Conn = (*wsConn)(nil)

// wsConn adapts *websocket.Conn to the manager's Conn. gorilla permits one
// concurrent writer, and broadcasts arrive from other connections'
// goroutines, so writes are serialized here.
type wsConn struct {
	mu  sync.Mutex
	raw *websocket.Conn
}

func newWSConn(raw *websocket.Conn) *wsConn {
	return &wsConn{raw: raw}
}

func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.raw.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.raw.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.raw.Close()
}
