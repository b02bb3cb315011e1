package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/docsync/docsync/internal/core/crdt"
)

// Kind identifies a wire message variant. Inbound payloads are decoded once
// at the connection boundary into a tagged union; unrecognized variants map
// to KindUnknown, a deliberate no-op so protocol skew between client and
// server versions never drops a connection.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindContent
	KindContentUpdate
	KindCursor
	KindSelection
	KindCRDTOps
	KindPing
	KindPong
	KindInit
	KindUserJoined
	KindPresence
	KindCRDTAck
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindContentUpdate:
		return "content_update"
	case KindCursor:
		return "cursor"
	case KindSelection:
		return "selection"
	case KindCRDTOps:
		return "crdt_ops"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindInit:
		return "init"
	case KindUserJoined:
		return "user_joined"
	case KindPresence:
		return "presence"
	case KindCRDTAck:
		return "crdt_ack"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseKind maps a wire type tag to a Kind, defaulting to KindUnknown.
func ParseKind(s string) Kind {
	switch s {
	case "content":
		return KindContent
	case "content_update":
		return KindContentUpdate
	case "cursor":
		return KindCursor
	case "selection":
		return KindSelection
	case "crdt_ops":
		return KindCRDTOps
	case "ping":
		return KindPing
	case "pong":
		return KindPong
	default:
		return KindUnknown
	}
}

// htmlPayload is the content_update sub-object; some client versions ship
// the full text under payload.html instead of content.
type htmlPayload struct {
	HTML string `json:"html"`
}

// envelope mirrors the inbound wire shape. Only the fields relevant to the
// decoded kind are populated.
type envelope struct {
	Type      string           `json:"type"`
	Content   string           `json:"content,omitempty"`
	Payload   *htmlPayload     `json:"payload,omitempty"`
	Cursor    json.RawMessage  `json:"cursor,omitempty"`
	Selection json.RawMessage  `json:"selection,omitempty"`
	Ops       []crdt.Operation `json:"ops,omitempty"`
}

// Inbound is one decoded client message.
type Inbound struct {
	Kind      Kind
	Content   string
	Cursor    json.RawMessage
	Selection json.RawMessage
	Ops       []crdt.Operation
}

// Decode parses a raw client frame. Malformed JSON (including malformed
// operations inside a crdt_ops batch) is an error; an unknown type tag is
// not an error and decodes to KindUnknown.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Inbound{}, fmt.Errorf("decode message: %w", err)
	}

	in := Inbound{Kind: ParseKind(env.Type)}
	switch in.Kind {
	case KindContent:
		in.Content = env.Content
	case KindContentUpdate:
		// Prefer payload.html, fall back to content.
		if env.Payload != nil && env.Payload.HTML != "" {
			in.Content = env.Payload.HTML
		} else {
			in.Content = env.Content
		}
	case KindCursor:
		in.Cursor = env.Cursor
	case KindSelection:
		in.Selection = env.Selection
	case KindCRDTOps:
		in.Ops = env.Ops
	}
	return in, nil
}
