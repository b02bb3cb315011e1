package protocol

import (
	"encoding/json"
	"time"

	"github.com/docsync/docsync/internal/core/crdt"
)

// Outbound message shapes. Every struct carries its wire type tag so a
// constructor's result can be handed straight to a JSON writer.

// InitMessage is sent once to a freshly connected client.
type InitMessage struct {
	Type      string             `json:"type"`
	Content   string             `json:"content"`
	CRDTState crdt.DocumentState `json:"crdt_state"`
}

func Init(content string, state crdt.DocumentState) InitMessage {
	return InitMessage{Type: KindInit.String(), Content: content, CRDTState: state}
}

// UserJoinedMessage announces a new participant to the rest of the room.
type UserJoinedMessage struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	Color    string `json:"color,omitempty"`
}

func UserJoined(userID, username, color string) UserJoinedMessage {
	return UserJoinedMessage{Type: KindUserJoined.String(), UserID: userID, Username: username, Color: color}
}

// CursorMessage relays another participant's cursor position. Ephemeral,
// never persisted.
type CursorMessage struct {
	Type     string          `json:"type"`
	UserID   string          `json:"user_id"`
	Username string          `json:"username,omitempty"`
	Cursor   json.RawMessage `json:"cursor"`
	Color    string          `json:"color,omitempty"`
}

func CursorBroadcast(userID, username, color string, cursor json.RawMessage) CursorMessage {
	return CursorMessage{Type: KindCursor.String(), UserID: userID, Username: username, Cursor: cursor, Color: color}
}

// SelectionMessage relays another participant's selection. Ephemeral.
type SelectionMessage struct {
	Type      string          `json:"type"`
	UserID    string          `json:"user_id"`
	Username  string          `json:"username,omitempty"`
	Selection json.RawMessage `json:"selection"`
	Color     string          `json:"color,omitempty"`
}

func SelectionBroadcast(userID, username, color string, selection json.RawMessage) SelectionMessage {
	return SelectionMessage{Type: KindSelection.String(), UserID: userID, Username: username, Selection: selection, Color: color}
}

// ContentMessage rebroadcasts a full-text replace, preserving the shape of
// the message that triggered it: content messages carry the text in content,
// content_update messages carry it in payload.html.
type ContentMessage struct {
	Type    string       `json:"type"`
	UserID  string       `json:"user_id"`
	Content string       `json:"content,omitempty"`
	Payload *htmlPayload `json:"payload,omitempty"`
}

func ContentBroadcast(kind Kind, content, userID string) ContentMessage {
	msg := ContentMessage{Type: kind.String(), UserID: userID}
	if kind == KindContentUpdate {
		msg.Payload = &htmlPayload{HTML: content}
	} else {
		msg.Content = content
	}
	return msg
}

// CRDTOpsMessage rebroadcasts an applied operation batch.
type CRDTOpsMessage struct {
	Type    string           `json:"type"`
	UserID  string           `json:"user_id"`
	Ops     []crdt.Operation `json:"ops"`
	Version uint64           `json:"version"`
}

func CRDTOpsBroadcast(ops []crdt.Operation, version uint64, userID string) CRDTOpsMessage {
	return CRDTOpsMessage{Type: KindCRDTOps.String(), UserID: userID, Ops: ops, Version: version}
}

// AckMessage confirms an operation batch to its sender alone.
type AckMessage struct {
	Type        string `json:"type"`
	Version     uint64 `json:"version"`
	Applied     int    `json:"applied"`
	ContentHash uint64 `json:"content_hash"`
}

func Ack(version uint64, applied int, contentHash uint64) AckMessage {
	return AckMessage{Type: KindCRDTAck.String(), Version: version, Applied: applied, ContentHash: contentHash}
}

// PresenceMessage announces a participant leaving a room that still has
// other participants.
type PresenceMessage struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	UserID string `json:"user_id"`
}

func PresenceLeave(userID string) PresenceMessage {
	return PresenceMessage{Type: KindPresence.String(), Action: "leave", UserID: userID}
}

// PingMessage is the transport-level heartbeat. A missed pong only triggers
// disconnect cleanup, never a document mutation.
type PingMessage struct {
	Type string `json:"type"`
	TS   string `json:"ts"`
}

func Ping(now time.Time) PingMessage {
	return PingMessage{Type: KindPing.String(), TS: now.UTC().Format(time.RFC3339)}
}

// PongMessage answers a client-initiated ping.
type PongMessage struct {
	Type string `json:"type"`
	TS   string `json:"ts"`
}

func Pong(now time.Time) PongMessage {
	return PongMessage{Type: KindPong.String(), TS: now.UTC().Format(time.RFC3339)}
}

// ErrorNotice reports a permission or validation failure to the sender; the
// connection stays open.
type ErrorNotice struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func ErrorMessage(message string) ErrorNotice {
	return ErrorNotice{Type: KindError.String(), Message: message}
}
