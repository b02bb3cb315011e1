package crdt

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// OpKind is the kind of a replicated operation.
type OpKind uint8

const (
	OpInsert OpKind = iota
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Operation is the unit of replication: a single insert or delete, generated
// locally and applied remotely.
//
// Inserts carry two addresses. After is the identifier of the element
// immediately left of the insertion point at the origin (zero identifier for
// the document start) and is what convergent application anchors on. Position
// is the visible index at the origin; it is the fallback when a peer has
// never seen the anchor, and the only address older peers send (After nil).
// Deletes address the element by its identifier alone.
type Operation struct {
	Kind     OpKind
	ID       Identifier
	After    *Identifier
	Position int
	Value    rune
}

// wireOp is the JSON shape exchanged between peers.
type wireOp struct {
	Type     string      `json:"type"`
	Position int         `json:"position"`
	Char     string      `json:"char,omitempty"`
	Replica  string      `json:"replica"`
	Counter  uint64      `json:"counter"`
	After    *Identifier `json:"after,omitempty"`
}

func (op Operation) MarshalJSON() ([]byte, error) {
	w := wireOp{
		Type:     op.Kind.String(),
		Position: op.Position,
		Replica:  op.ID.Replica,
		Counter:  op.ID.Counter,
		After:    op.After,
	}
	if op.Value != 0 {
		w.Char = string(op.Value)
	}
	return json.Marshal(w)
}

func (op *Operation) UnmarshalJSON(data []byte) error {
	var w wireOp
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch w.Type {
	case "insert":
		op.Kind = OpInsert
	case "delete":
		op.Kind = OpDelete
	default:
		return fmt.Errorf("unknown operation type %q", w.Type)
	}

	op.Position = w.Position
	op.ID = Identifier{Replica: w.Replica, Counter: w.Counter}
	op.After = w.After
	op.Value = 0
	switch utf8.RuneCountInString(w.Char) {
	case 0:
	case 1:
		for _, r := range w.Char {
			op.Value = r
		}
	default:
		return fmt.Errorf("operation char %q must be a single character", w.Char)
	}
	if op.Kind == OpInsert && op.Value == 0 {
		return fmt.Errorf("insert operation without a character")
	}
	if op.ID.IsZero() {
		return fmt.Errorf("operation without an identifier")
	}
	return nil
}
