package engine

import (
	"sort"

	"github.com/easelhq/easel/pkg/canvas"
)

// objectStore is this client's authoritative in-memory view of the canvas.
// It is mutated only by optimistic local operations and the batch flush,
// always under the engine mutex. Insertion order is tracked so snapshot
// paint order can break z-index ties by creation order.
type objectStore struct {
	objects map[string]*canvas.CanvasObject
	seq     map[string]uint64
	nextSeq uint64
}

func newObjectStore() *objectStore {
	return &objectStore{
		objects: make(map[string]*canvas.CanvasObject),
		seq:     make(map[string]uint64),
	}
}

func (s *objectStore) has(id string) bool {
	_, ok := s.objects[id]
	return ok
}

func (s *objectStore) get(id string) (*canvas.CanvasObject, bool) {
	obj, ok := s.objects[id]
	return obj, ok
}

// put inserts or fully replaces an object. First insertion assigns the
// object its creation-order sequence number.
func (s *objectStore) put(obj *canvas.CanvasObject) {
	if _, ok := s.seq[obj.ID]; !ok {
		s.nextSeq++
		s.seq[obj.ID] = s.nextSeq
	}
	s.objects[obj.ID] = obj
}

// replace overwrites an existing object, returning false if it is absent.
// Used by the flush merge so an update for an already-deleted object is
// dropped instead of resurrecting it.
func (s *objectStore) replace(obj *canvas.CanvasObject) bool {
	if _, ok := s.objects[obj.ID]; !ok {
		return false
	}
	s.objects[obj.ID] = obj
	return true
}

func (s *objectStore) remove(id string) {
	delete(s.objects, id)
	delete(s.seq, id)
}

// setOwner updates only the ownership field of a stored object.
// Returns false if the object is not in the store.
func (s *objectStore) setOwner(id, owner string) bool {
	obj, ok := s.objects[id]
	if !ok {
		return false
	}
	obj.OwnedBy = owner
	return true
}

func (s *objectStore) len() int {
	return len(s.objects)
}

// snapshot returns copies of all objects in paint order: ascending z-index,
// ties broken by creation order.
func (s *objectStore) snapshot() []*canvas.CanvasObject {
	out := make([]*canvas.CanvasObject, 0, len(s.objects))
	for _, obj := range s.objects {
		clone := *obj
		out = append(out, &clone)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ZIndex != out[j].ZIndex {
			return out[i].ZIndex < out[j].ZIndex
		}
		return s.seq[out[i].ID] < s.seq[out[j].ID]
	})

	return out
}
