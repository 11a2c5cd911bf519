package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easelhq/easel/pkg/canvas"
)

func TestPresenceSnapshotDeduplicatesByUserID(t *testing.T) {
	tracker := newPresenceTracker()

	tracker.syncSnapshot([]canvas.PresenceEntry{
		{UserID: "user-1", DisplayName: "Sam", LastSeenMs: 100},
		{UserID: "user-2", DisplayName: "Alex", LastSeenMs: 100},
		{UserID: "user-1", DisplayName: "Sam", LastSeenMs: 250},
	})

	roster := tracker.snapshot()
	require.Len(t, roster, 2, "one roster entry per user id")
	assert.Equal(t, "user-1", roster[0].UserID)
	assert.Equal(t, int64(250), roster[0].LastSeenMs, "last duplicate wins")
	assert.Equal(t, "user-2", roster[1].UserID)
}

func TestPresenceSyncSnapshotReplacesRoster(t *testing.T) {
	tracker := newPresenceTracker()

	tracker.syncSnapshot([]canvas.PresenceEntry{{UserID: "user-1", DisplayName: "Sam"}})
	tracker.syncSnapshot([]canvas.PresenceEntry{{UserID: "user-2", DisplayName: "Alex"}})

	roster := tracker.snapshot()
	require.Len(t, roster, 1)
	assert.Equal(t, "user-2", roster[0].UserID)
}

func TestPresenceAdvisoryJoinAndLeave(t *testing.T) {
	tracker := newPresenceTracker()

	tracker.observeJoin(canvas.PresenceEntry{UserID: "user-1", DisplayName: "Sam", LastSeenMs: 10})
	entry, ok := tracker.get("user-1")
	require.True(t, ok)
	assert.Equal(t, "Sam", entry.DisplayName)

	tracker.observeLeave("user-1")
	_, ok = tracker.get("user-1")
	assert.False(t, ok)

	tracker.observeLeave("user-1") // leaving twice is harmless
}

func TestPresenceSweepRemovesStaleEntries(t *testing.T) {
	tracker := newPresenceTracker()

	tracker.syncSnapshot([]canvas.PresenceEntry{
		{UserID: "stale", DisplayName: "Stale", LastSeenMs: 0},
		{UserID: "fresh", DisplayName: "Fresh", LastSeenMs: 9_500},
	})

	removed := tracker.sweep(10_000, 1_000)

	assert.Equal(t, []string{"stale"}, removed)
	roster := tracker.snapshot()
	require.Len(t, roster, 1)
	assert.Equal(t, "fresh", roster[0].UserID)
}
