package engine

import "time"

// opKind identifies the kind of a locally-initiated mutation.
// Kinds form distinct namespaces in the ledger, so a create and a later
// update of the same object never collide.
type opKind string

const (
	opCreate    opKind = "create"
	opUpdate    opKind = "update"
	opDelete    opKind = "delete"
	opDuplicate opKind = "duplicate"
)

// opTag identifies one locally-applied operation awaiting its echo.
type opTag struct {
	Kind     opKind
	TargetID string
}

// opLedger is the echo-suppression ledger. Every optimistic local mutation
// is tagged before broadcast; the first matching inbound event consumes the
// tag and is discarded as already reflected. Tags whose echo never arrives
// are evicted by sweep after a bounded window.
type opLedger struct {
	tags map[opTag]time.Time
}

func newOpLedger() *opLedger {
	return &opLedger{tags: make(map[opTag]time.Time)}
}

// tag records a local operation at the moment it is optimistically applied.
func (l *opLedger) tag(kind opKind, targetID string, now time.Time) {
	l.tags[opTag{Kind: kind, TargetID: targetID}] = now
}

// consume removes a matching tag if present and reports whether the inbound
// event was an echo of a local operation.
func (l *opLedger) consume(kind opKind, targetID string) bool {
	key := opTag{Kind: kind, TargetID: targetID}
	if _, ok := l.tags[key]; !ok {
		return false
	}
	delete(l.tags, key)
	return true
}

// sweep evicts tags older than maxAge, returning how many were dropped.
// A dropped tag means the transport never echoed the operation back.
func (l *opLedger) sweep(now time.Time, maxAge time.Duration) int {
	dropped := 0
	for key, issued := range l.tags {
		if now.Sub(issued) > maxAge {
			delete(l.tags, key)
			dropped++
		}
	}
	return dropped
}

func (l *opLedger) len() int {
	return len(l.tags)
}
