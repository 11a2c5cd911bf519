package engine

import "github.com/easelhq/easel/pkg/canvas"

// updateQueue coalesces high-frequency inbound events into per-tick buffers
// so a burst of N remote edits collapses to one state transition per flush.
// Updates and cursors are keyed maps (last value within a tick wins);
// creates, duplicates and deletes are append-only lists.
type updateQueue struct {
	created    []*canvas.CanvasObject
	duplicated []*canvas.CanvasObject
	updated    map[string]*canvas.CanvasObject
	deleted    []string
	cursors    map[string]canvas.CursorEvent
}

// queueBatch is the drained content of one tick, ready to merge.
type queueBatch struct {
	created    []*canvas.CanvasObject
	duplicated []*canvas.CanvasObject
	updated    map[string]*canvas.CanvasObject
	deleted    []string
	cursors    map[string]canvas.CursorEvent
}

func newUpdateQueue() *updateQueue {
	return &updateQueue{
		updated: make(map[string]*canvas.CanvasObject),
		cursors: make(map[string]canvas.CursorEvent),
	}
}

func (q *updateQueue) addCreated(obj *canvas.CanvasObject) {
	q.created = append(q.created, obj)
}

func (q *updateQueue) addDuplicated(obj *canvas.CanvasObject) {
	q.duplicated = append(q.duplicated, obj)
}

// addUpdated replaces any earlier update for the same object within this
// tick; only the final state is visible after the flush.
func (q *updateQueue) addUpdated(obj *canvas.CanvasObject) {
	q.updated[obj.ID] = obj
}

func (q *updateQueue) addDeleted(id string) {
	q.deleted = append(q.deleted, id)
}

// setCursor keeps only the most recent position per user, so an unbounded
// burst rate collapses to O(distinct senders) memory.
func (q *updateQueue) setCursor(ev canvas.CursorEvent) {
	q.cursors[ev.UserID] = ev
}

func (q *updateQueue) empty() bool {
	return len(q.created) == 0 && len(q.duplicated) == 0 &&
		len(q.updated) == 0 && len(q.deleted) == 0 && len(q.cursors) == 0
}

// drain returns the buffered batch and atomically resets all buffers,
// including on zero-op ticks.
func (q *updateQueue) drain() queueBatch {
	batch := queueBatch{
		created:    q.created,
		duplicated: q.duplicated,
		updated:    q.updated,
		deleted:    q.deleted,
		cursors:    q.cursors,
	}

	q.created = nil
	q.duplicated = nil
	q.updated = make(map[string]*canvas.CanvasObject)
	q.deleted = nil
	q.cursors = make(map[string]canvas.CursorEvent)

	return batch
}
