package engine

import (
	"container/heap"
	"time"
)

// OwnershipStatus is the derived lease state of one object, recomputed on
// every read and never cached past the current tick.
type OwnershipStatus string

const (
	// StatusAvailable means no live lease is known for the object.
	StatusAvailable OwnershipStatus = "available"

	// StatusClaimedByMe means this client holds a live lease.
	StatusClaimedByMe OwnershipStatus = "claimed_by_me"

	// StatusClaimedByOther means a remote peer holds a live lease.
	StatusClaimedByOther OwnershipStatus = "claimed_by_other"

	// StatusExpired means a remote lease's TTL has locally elapsed but its
	// release has not been confirmed. Behaves like available for edit
	// permission; visually distinct.
	StatusExpired OwnershipStatus = "expired"
)

// OwnershipRecord is the local view of one object's lease.
type OwnershipRecord struct {
	ObjectID    string
	OwnerID     string
	OwnerName   string
	ClaimedAt   time.Time
	ExpiresAt   time.Time
	ClaimedByMe bool
}

// leaseTable tracks ownership records plus a single min-heap of lease
// expiries, popped by one periodic check against the engine clock. Heap
// entries carry a per-object generation; claim, extend and release bump the
// generation so superseded entries are skipped instead of firing twice.
type leaseTable struct {
	records map[string]*OwnershipRecord
	heap    expiryHeap
	gens    map[string]uint64
}

type expiryEntry struct {
	at       time.Time
	objectID string
	gen      uint64
}

type expiryHeap []expiryEntry

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x interface{}) { *h = append(*h, x.(expiryEntry)) }
func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

func newLeaseTable() *leaseTable {
	return &leaseTable{
		records: make(map[string]*OwnershipRecord),
		gens:    make(map[string]uint64),
	}
}

// set installs or replaces the record for an object and schedules its
// expiry. Any previously scheduled expiry for the object is superseded.
func (t *leaseTable) set(rec *OwnershipRecord) {
	t.records[rec.ObjectID] = rec
	t.gens[rec.ObjectID]++
	heap.Push(&t.heap, expiryEntry{at: rec.ExpiresAt, objectID: rec.ObjectID, gen: t.gens[rec.ObjectID]})
}

// extend moves an existing record's expiry forward without touching any
// other field. Returns false if no record exists.
func (t *leaseTable) extend(objectID string, expiresAt time.Time) bool {
	rec, ok := t.records[objectID]
	if !ok {
		return false
	}
	rec.ExpiresAt = expiresAt
	t.gens[objectID]++
	heap.Push(&t.heap, expiryEntry{at: expiresAt, objectID: objectID, gen: t.gens[objectID]})
	return true
}

// clear removes the record and invalidates any scheduled expiry.
func (t *leaseTable) clear(objectID string) {
	delete(t.records, objectID)
	t.gens[objectID]++
}

func (t *leaseTable) get(objectID string) (*OwnershipRecord, bool) {
	rec, ok := t.records[objectID]
	return rec, ok
}

// expired pops every due heap entry and returns the object ids whose
// current lease has genuinely expired. Stale entries (superseded by a later
// claim, extend, release or clear) are discarded silently. Records are left
// in place; the caller decides the transition.
func (t *leaseTable) expired(now time.Time) []string {
	var due []string
	for t.heap.Len() > 0 && !t.heap[0].at.After(now) {
		entry := heap.Pop(&t.heap).(expiryEntry)
		if t.gens[entry.objectID] != entry.gen {
			continue
		}
		if _, ok := t.records[entry.objectID]; !ok {
			continue
		}
		// Bump so the same expiry never fires twice.
		t.gens[entry.objectID]++
		due = append(due, entry.objectID)
	}
	return due
}

// ownedByMe returns the ids of all records this client holds, excluding
// exceptID when non-empty.
func (t *leaseTable) ownedByMe(exceptID string) []string {
	var ids []string
	for id, rec := range t.records {
		if rec.ClaimedByMe && id != exceptID {
			ids = append(ids, id)
		}
	}
	return ids
}
