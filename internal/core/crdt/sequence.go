package crdt

import "strings"

// SeedReplica is the replica id used for elements materialized from flat
// text. It is fixed so that every replica seeding from the same content
// derives identical identifiers and later deletes resolve everywhere.
const SeedReplica = "seed"

// Element is one character slot in the sequence. Deleted elements are kept
// as tombstones so that operations referencing them stay resolvable.
type Element struct {
	ID      Identifier
	Value   rune
	Deleted bool
}

// Sequence is the replicated character sequence for one replica. Public
// indices address visible (non-deleted) positions. Not safe for concurrent
// use; the registry serializes access per document.
type Sequence struct {
	clock    *Clock
	elements []Element
	index    map[Identifier]int // identifier -> physical position
	version  uint64
}

// NewSequence returns an empty sequence owned by the given replica.
func NewSequence(replica string) *Sequence {
	return &Sequence{
		clock: NewClock(replica),
		index: make(map[Identifier]int),
	}
}

// Replica returns the id of the replica that owns this sequence.
func (s *Sequence) Replica() string { return s.clock.Replica() }

// Version counts applied mutations, local and remote.
func (s *Sequence) Version() uint64 { return s.version }

// Len is the element count including tombstones.
func (s *Sequence) Len() int { return len(s.elements) }

// VisibleLen is the number of live characters.
func (s *Sequence) VisibleLen() int {
	n := 0
	for _, el := range s.elements {
		if !el.Deleted {
			n++
		}
	}
	return n
}

// Tombstones is the number of deleted elements retained in the sequence.
func (s *Sequence) Tombstones() int {
	return len(s.elements) - s.VisibleLen()
}

// Contains reports whether an element with the given identifier exists,
// deleted or not.
func (s *Sequence) Contains(id Identifier) bool {
	_, ok := s.index[id]
	return ok
}

// physicalIndex maps a visible position to a physical one, skipping
// tombstones. A position at or past the visible end maps to len(elements).
func (s *Sequence) physicalIndex(visible int) int {
	seen := 0
	for i, el := range s.elements {
		if el.Deleted {
			continue
		}
		if seen == visible {
			return i
		}
		seen++
	}
	return len(s.elements)
}

// InsertLocal inserts value at the visible index, clamping past-the-end
// indices to an append, and returns the operation to broadcast. The returned
// operation is anchored on the element immediately left of the insertion
// point so remote application converges regardless of delivery order.
func (s *Sequence) InsertLocal(index int, value rune) Operation {
	if index < 0 {
		index = 0
	}
	if vis := s.VisibleLen(); index > vis {
		index = vis
	}

	pos := s.physicalIndex(index)
	after := Identifier{}
	if pos > 0 {
		after = s.elements[pos-1].ID
	}

	id := s.clock.Next()
	s.insertAt(pos, Element{ID: id, Value: value})
	s.version++

	return Operation{Kind: OpInsert, ID: id, After: &after, Position: index, Value: value}
}

// DeleteLocal tombstones the element at the visible index. An out-of-range
// index is a no-op and reports ok=false rather than an error.
func (s *Sequence) DeleteLocal(index int) (Operation, bool) {
	if index < 0 {
		return Operation{}, false
	}
	pos := s.physicalIndex(index)
	if pos >= len(s.elements) {
		return Operation{}, false
	}

	el := &s.elements[pos]
	el.Deleted = true
	s.version++

	return Operation{Kind: OpDelete, ID: el.ID, Position: index, Value: el.Value}, true
}

// ApplyRemote applies an operation received from another replica. It is
// idempotent: re-applying a known insert or an already-tombstoned delete
// returns false and leaves the sequence unchanged. A delete whose identifier
// was never seen also returns false; the caller decides whether that is an
// anomaly worth logging.
func (s *Sequence) ApplyRemote(op Operation) bool {
	switch op.Kind {
	case OpInsert:
		return s.applyInsert(op)
	case OpDelete:
		return s.applyDelete(op)
	default:
		return false
	}
}

func (s *Sequence) applyInsert(op Operation) bool {
	if _, ok := s.index[op.ID]; ok {
		return false
	}
	s.clock.Observe(op.ID)

	var pos int
	switch {
	case op.After == nil:
		// Op from a peer that only tracks indices. Raw-index placement does
		// not commute; kept as the compatibility path the old protocol had.
		pos = s.physicalIndex(op.Position)
	case op.After.IsZero():
		pos = s.skipNewerSiblings(0, op.ID)
	default:
		anchor, ok := s.index[*op.After]
		if !ok {
			// Anchor never seen here; degrade to the origin's visible index.
			pos = s.physicalIndex(op.Position)
			break
		}
		pos = s.skipNewerSiblings(anchor+1, op.ID)
	}

	s.insertAt(pos, Element{ID: op.ID, Value: op.Value})
	s.version++
	return true
}

// skipNewerSiblings walks right past concurrent inserts with larger
// identifiers, the RGA rule: among elements racing for the same anchor the
// one with the largest identifier sits closest to it, which every replica
// agrees on no matter the order ops arrived in.
func (s *Sequence) skipNewerSiblings(pos int, id Identifier) int {
	for pos < len(s.elements) && id.Less(s.elements[pos].ID) {
		pos++
	}
	return pos
}

func (s *Sequence) applyDelete(op Operation) bool {
	pos, ok := s.index[op.ID]
	if !ok {
		return false
	}
	if s.elements[pos].Deleted {
		return false
	}
	s.elements[pos].Deleted = true
	s.version++
	return true
}

func (s *Sequence) insertAt(pos int, el Element) {
	s.elements = append(s.elements, Element{})
	copy(s.elements[pos+1:], s.elements[pos:])
	s.elements[pos] = el

	s.index[el.ID] = pos
	for i := pos + 1; i < len(s.elements); i++ {
		s.index[s.elements[i].ID] = i
	}
}

// Text returns the visible text: every live element's value in list order.
func (s *Sequence) Text() string {
	var b strings.Builder
	for _, el := range s.elements {
		if !el.Deleted {
			b.WriteRune(el.Value)
		}
	}
	return b.String()
}

// SeedFromText resets the sequence from persisted flat content, discarding
// tombstones and history. Elements get deterministic seed identifiers so that
// independently seeded replicas agree on them. Only valid at cold start or on
// a full-text replace applied to every replica at once; partial re-seeding
// mid-session breaks convergence.
func (s *Sequence) SeedFromText(text string) {
	s.elements = s.elements[:0]
	s.index = make(map[Identifier]int, len(text))

	i := 0
	for _, r := range text {
		id := Identifier{Replica: SeedReplica, Counter: uint64(i + 1)}
		s.elements = append(s.elements, Element{ID: id, Value: r})
		s.index[id] = i
		i++
	}
	// Issue future identifiers past the seed range, otherwise fresh inserts
	// would order before seeded elements and sink toward the end.
	s.clock.Observe(Identifier{Replica: SeedReplica, Counter: uint64(i)})
	s.version++
}

// CloneFor copies the sequence, tombstones included, for a new replica. The
// clone's clock is advanced past every identifier present so the new replica
// never reissues one.
func (s *Sequence) CloneFor(replica string) *Sequence {
	clone := &Sequence{
		clock:    NewClock(replica),
		elements: make([]Element, len(s.elements)),
		index:    make(map[Identifier]int, len(s.index)),
		version:  s.version,
	}
	copy(clone.elements, s.elements)
	for id, pos := range s.index {
		clone.index[id] = pos
		clone.clock.Observe(id)
	}
	return clone
}

// Compact physically removes tombstones and returns how many were dropped.
// Safe only when no operation referencing them can still arrive.
func (s *Sequence) Compact() int {
	kept := s.elements[:0]
	for _, el := range s.elements {
		if !el.Deleted {
			kept = append(kept, el)
		}
	}
	dropped := len(s.elements) - len(kept)
	s.elements = kept

	s.index = make(map[Identifier]int, len(kept))
	for i, el := range kept {
		s.index[el.ID] = i
	}
	return dropped
}
