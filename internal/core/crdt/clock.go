package crdt

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Identifier uniquely names one element across all replicas of a document.
// The counter is a Lamport-style logical clock, so identifiers issued after
// observing remote operations order after them.
type Identifier struct {
	Replica string `json:"replica"`
	Counter uint64 `json:"counter"`
}

// Less is the total order used to break ties between concurrent inserts:
// counter first, replica id second.
func (id Identifier) Less(other Identifier) bool {
	if id.Counter != other.Counter {
		return id.Counter < other.Counter
	}
	return id.Replica < other.Replica
}

// IsZero reports whether the identifier was never assigned.
func (id Identifier) IsZero() bool {
	return id.Replica == "" && id.Counter == 0
}

func (id Identifier) String() string {
	return fmt.Sprintf("%s:%d", id.Replica, id.Counter)
}

// Clock issues identifiers for a single replica. It is not safe for
// concurrent use; callers serialize access per document.
type Clock struct {
	replica string
	counter uint64
}

// NewClock returns a clock for the given replica with no issued identifiers.
func NewClock(replica string) *Clock {
	return &Clock{replica: replica}
}

// Replica returns the replica id this clock issues identifiers for.
func (c *Clock) Replica() string {
	return c.replica
}

// Next returns a fresh identifier. It never repeats a previously issued
// value for this replica.
func (c *Clock) Next() Identifier {
	c.counter++
	return Identifier{Replica: c.replica, Counter: c.counter}
}

// Observe advances the clock past an identifier received from another
// replica, so identifiers issued afterwards order after it.
func (c *Clock) Observe(id Identifier) {
	if id.Counter > c.counter {
		c.counter = id.Counter
	}
}

// NewReplicaID returns a short random replica id, one per connection.
func NewReplicaID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
