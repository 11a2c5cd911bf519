package engine

import (
	"sort"

	"github.com/easelhq/easel/pkg/canvas"
)

// presenceTracker maintains the deduplicated online-user roster. The
// periodic sync snapshot is the source of truth; join/leave events are
// advisory refinements between snapshots. A sweep removes entries whose
// last_seen is stale, tolerating missed disconnect notifications.
type presenceTracker struct {
	roster map[string]canvas.PresenceEntry
}

func newPresenceTracker() *presenceTracker {
	return &presenceTracker{roster: make(map[string]canvas.PresenceEntry)}
}

// syncSnapshot rebuilds the roster from a full snapshot, keeping exactly
// one entry per user id. Duplicates across transport-level replicas are
// expected; the last one encountered wins.
func (t *presenceTracker) syncSnapshot(entries []canvas.PresenceEntry) {
	roster := make(map[string]canvas.PresenceEntry, len(entries))
	for _, entry := range entries {
		roster[entry.UserID] = entry
	}
	t.roster = roster
}

// observeJoin refreshes a single entry from an advisory join event.
func (t *presenceTracker) observeJoin(entry canvas.PresenceEntry) {
	t.roster[entry.UserID] = entry
}

// observeLeave drops an entry on an advisory leave event. If the user is in
// fact still connected the next snapshot restores them.
func (t *presenceTracker) observeLeave(userID string) {
	delete(t.roster, userID)
}

// sweep removes entries whose last_seen exceeds the staleness threshold and
// returns the removed user ids.
func (t *presenceTracker) sweep(nowMs int64, stalenessMs int64) []string {
	var removed []string
	for userID, entry := range t.roster {
		if nowMs-entry.LastSeenMs > stalenessMs {
			delete(t.roster, userID)
			removed = append(removed, userID)
		}
	}
	return removed
}

func (t *presenceTracker) get(userID string) (canvas.PresenceEntry, bool) {
	entry, ok := t.roster[userID]
	return entry, ok
}

// snapshot returns the roster sorted by user id for stable output.
func (t *presenceTracker) snapshot() []canvas.PresenceEntry {
	out := make([]canvas.PresenceEntry, 0, len(t.roster))
	for _, entry := range t.roster {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
