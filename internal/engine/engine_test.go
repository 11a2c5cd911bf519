package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easelhq/easel/pkg/canvas"
)

// fakeClock lets tests drive lease expiry and ledger GC deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func setupTestRedis(t *testing.T) *miniredis.Miniredis {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr
}

func newTestEngine(t *testing.T, mr *miniredis.Miniredis, clk Clock, userID, displayName string) (*Engine, *canvas.Client) {
	client, err := canvas.NewClient(&redis.Options{Addr: mr.Addr()}, "test-session")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	eng, err := New(Config{
		CanvasID:    "canvas-1",
		UserID:      userID,
		DisplayName: displayName,
		LeaseTTL:    30 * time.Second,
	}, client)
	require.NoError(t, err)
	eng.clock = clk

	return eng, client
}

func engineObject() *canvas.CanvasObject {
	return &canvas.CanvasObject{
		ID:        uuid.New().String(),
		CanvasID:  "canvas-1",
		Type:      canvas.ObjectTypeRectangle,
		X:         10,
		Y:         20,
		Width:     100,
		Height:    50,
		Fill:      "#1e88e5",
		CreatedBy: "user-a",
	}
}

func TestNewValidatesConfig(t *testing.T) {
	mr := setupTestRedis(t)
	client, err := canvas.NewClient(&redis.Options{Addr: mr.Addr()}, "test-session")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	_, err = New(Config{UserID: "u", DisplayName: "n"}, client)
	assert.Error(t, err)

	_, err = New(Config{CanvasID: "c", DisplayName: "n"}, client)
	assert.Error(t, err)

	_, err = New(Config{CanvasID: "c", UserID: "u"}, client)
	assert.Error(t, err)
}

func TestClaimArbitration(t *testing.T) {
	mr := setupTestRedis(t)
	clk := newFakeClock()
	ctx := context.Background()

	alice, client := newTestEngine(t, mr, clk, "user-a", "Alice")
	bob, _ := newTestEngine(t, mr, clk, "user-b", "Bob")

	obj := engineObject()
	require.NoError(t, client.PutObject(ctx, obj))

	// Bob knows Alice from the roster, so a rejection can name her.
	bob.mu.Lock()
	bob.presence.observeJoin(canvas.PresenceEntry{UserID: "user-a", DisplayName: "Alice", LastSeenMs: clk.Now().UnixMilli()})
	bob.mu.Unlock()

	var rejectedID, rejectedOwner string
	bob.UpdateCallbacks(Callbacks{
		OnClaimRejected: func(objectID, ownerID, ownerName string) {
			rejectedID = objectID
			rejectedOwner = ownerName
		},
	})

	require.NoError(t, alice.Claim(ctx, obj.ID))

	status, rec := alice.OwnershipStatus(obj.ID)
	assert.Equal(t, StatusClaimedByMe, status)
	require.NotNil(t, rec)
	assert.Equal(t, "user-a", rec.OwnerID)

	err := bob.Claim(ctx, obj.ID)
	require.Error(t, err)
	assert.True(t, IsRejected(err))

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, obj.ID, rejected.ObjectID)
	assert.Equal(t, "user-a", rejected.OwnerID)
	assert.Equal(t, "Alice", rejected.OwnerName)
	assert.Equal(t, obj.ID, rejectedID)
	assert.Equal(t, "Alice", rejectedOwner)

	status, _ = bob.OwnershipStatus(obj.ID)
	assert.Equal(t, StatusClaimedByOther, status)

	// Losing must not disturb the stored owner.
	stored, err := client.GetObject(ctx, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-a", stored.OwnedBy)

	released, err := alice.Release(ctx, obj.ID)
	require.NoError(t, err)
	assert.True(t, released)

	require.NoError(t, bob.Claim(ctx, obj.ID), "released object is claimable again")

	stored, err = client.GetObject(ctx, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-b", stored.OwnedBy)
}

func TestClaimMissingObject(t *testing.T) {
	mr := setupTestRedis(t)
	alice, _ := newTestEngine(t, mr, newFakeClock(), "user-a", "Alice")

	err := alice.Claim(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestConcurrentClaimsSingleWinner(t *testing.T) {
	mr := setupTestRedis(t)
	clk := newFakeClock()
	ctx := context.Background()

	alice, client := newTestEngine(t, mr, clk, "user-a", "Alice")
	bob, _ := newTestEngine(t, mr, clk, "user-b", "Bob")

	obj := engineObject()
	require.NoError(t, client.PutObject(ctx, obj))

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, eng := range []*Engine{alice, bob} {
		wg.Add(1)
		go func(i int, eng *Engine) {
			defer wg.Done()
			errs[i] = eng.Claim(ctx, obj.ID)
		}(i, eng)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.True(t, IsRejected(err), "loser must get a rejection, got: %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one claim must win")
}

func TestClaimIsIdempotentForHolder(t *testing.T) {
	mr := setupTestRedis(t)
	clk := newFakeClock()
	ctx := context.Background()

	alice, client := newTestEngine(t, mr, clk, "user-a", "Alice")
	bob, _ := newTestEngine(t, mr, clk, "user-b", "Bob")

	obj := engineObject()
	require.NoError(t, client.PutObject(ctx, obj))
	alice.handleObjectEvent(&canvas.ObjectEvent{Type: canvas.EventObjectCreated, Object: obj, OriginUserID: "user-b"})
	alice.flushOnce()
	require.NoError(t, alice.Claim(ctx, obj.ID))

	// Claiming again, e.g. a double-click, must not reject us against
	// ourselves or flip the lease to foreign ownership.
	clk.advance(10 * time.Second)
	require.NoError(t, alice.Claim(ctx, obj.ID))

	status, rec := alice.OwnershipStatus(obj.ID)
	assert.Equal(t, StatusClaimedByMe, status)
	require.NotNil(t, rec)
	assert.True(t, rec.ClaimedByMe)

	// The repeated claim refreshed the TTL: past the original expiry but
	// within the refreshed one, the lease is still ours.
	clk.advance(25 * time.Second)
	alice.checkLeases()
	status, _ = alice.OwnershipStatus(obj.ID)
	assert.Equal(t, StatusClaimedByMe, status)

	// Our own edits stay permitted and release still works.
	edit := *obj
	edit.X = 123
	require.NoError(t, alice.UpdateObject(ctx, &edit))

	released, err := alice.Release(ctx, obj.ID)
	require.NoError(t, err)
	assert.True(t, released)

	stored, err := client.GetObject(ctx, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, canvas.UnclaimedOwner, stored.OwnedBy)

	require.NoError(t, bob.Claim(ctx, obj.ID), "released object is claimable by a peer")
}

func TestReleaseWithoutLeaseIsNoOp(t *testing.T) {
	mr := setupTestRedis(t)
	ctx := context.Background()
	alice, client := newTestEngine(t, mr, newFakeClock(), "user-a", "Alice")

	obj := engineObject()
	require.NoError(t, client.PutObject(ctx, obj))

	released, err := alice.Release(ctx, obj.ID)
	assert.NoError(t, err)
	assert.False(t, released)

	// Releasing twice after a claim is equally harmless.
	require.NoError(t, alice.Claim(ctx, obj.ID))
	released, err = alice.Release(ctx, obj.ID)
	require.NoError(t, err)
	assert.True(t, released)

	released, err = alice.Release(ctx, obj.ID)
	assert.NoError(t, err)
	assert.False(t, released)
}

func TestOwnLeaseExpiry(t *testing.T) {
	mr := setupTestRedis(t)
	clk := newFakeClock()
	ctx := context.Background()

	alice, client := newTestEngine(t, mr, clk, "user-a", "Alice")

	obj := engineObject()
	require.NoError(t, client.PutObject(ctx, obj))
	require.NoError(t, alice.Claim(ctx, obj.ID))

	var mu sync.Mutex
	var cleared []string
	statuses := make(map[string]OwnershipStatus)
	alice.UpdateCallbacks(Callbacks{
		OnSelectionCleared: func(objectID string) {
			mu.Lock()
			cleared = append(cleared, objectID)
			mu.Unlock()
		},
		OnOwnershipChanged: func(objectID string, status OwnershipStatus) {
			mu.Lock()
			statuses[objectID] = status
			mu.Unlock()
		},
	})

	// Just before the TTL nothing happens.
	clk.advance(29 * time.Second)
	alice.checkLeases()
	mu.Lock()
	assert.Empty(t, cleared)
	mu.Unlock()

	clk.advance(2 * time.Second)
	alice.checkLeases()

	mu.Lock()
	assert.Equal(t, []string{obj.ID}, cleared)
	assert.Equal(t, StatusAvailable, statuses[obj.ID])
	mu.Unlock()

	status, _ := alice.OwnershipStatus(obj.ID)
	assert.Equal(t, StatusAvailable, status)

	// The expiry reconciles the stored owner asynchronously.
	require.Eventually(t, func() bool {
		stored, err := client.GetObject(ctx, obj.ID)
		return err == nil && stored.OwnedBy == canvas.UnclaimedOwner
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPeerLeaseExpiry(t *testing.T) {
	mr := setupTestRedis(t)
	clk := newFakeClock()
	ctx := context.Background()

	bob, client := newTestEngine(t, mr, clk, "user-b", "Bob")

	obj := engineObject()
	require.NoError(t, client.PutObject(ctx, obj))

	// Bob learns the object and Alice's claim over the wire.
	bob.handleObjectEvent(&canvas.ObjectEvent{
		Type:         canvas.EventObjectCreated,
		Object:       obj,
		OriginUserID: "user-a",
	})
	bob.flushOnce()

	now := clk.Now()
	bob.handleOwnershipEvent(&canvas.OwnershipEvent{
		Type:        canvas.EventOwnershipClaimed,
		ObjectID:    obj.ID,
		OwnerID:     "user-a",
		OwnerName:   "Alice",
		ClaimedAtMs: now.UnixMilli(),
		ExpiresAtMs: now.Add(30 * time.Second).UnixMilli(),
	})

	// A live peer lease blocks local mutations.
	locked := *obj
	locked.X = 500
	err := bob.UpdateObject(ctx, &locked)
	require.Error(t, err)
	assert.True(t, IsLocked(err))

	var lockedErr *LockedError
	require.ErrorAs(t, err, &lockedErr)
	assert.Equal(t, "user-a", lockedErr.OwnerID)
	assert.Equal(t, "Alice", lockedErr.OwnerName)

	assert.True(t, IsLocked(bob.DeleteObject(ctx, obj.ID)))

	var mu sync.Mutex
	statuses := make(map[string]OwnershipStatus)
	bob.UpdateCallbacks(Callbacks{
		OnOwnershipChanged: func(objectID string, status OwnershipStatus) {
			mu.Lock()
			statuses[objectID] = status
			mu.Unlock()
		},
	})

	clk.advance(31 * time.Second)
	bob.checkLeases()

	mu.Lock()
	assert.Equal(t, StatusExpired, statuses[obj.ID])
	mu.Unlock()

	status, _ := bob.OwnershipStatus(obj.ID)
	assert.Equal(t, StatusExpired, status)

	// An expired peer lease no longer blocks edits.
	assert.NoError(t, bob.UpdateObject(ctx, &locked))
}

func TestEchoSuppression(t *testing.T) {
	mr := setupTestRedis(t)
	clk := newFakeClock()
	ctx := context.Background()

	alice, _ := newTestEngine(t, mr, clk, "user-a", "Alice")

	var mu sync.Mutex
	var flushes [][]*canvas.CanvasObject
	alice.UpdateCallbacks(Callbacks{
		OnObjectsChanged: func(objects []*canvas.CanvasObject) {
			mu.Lock()
			flushes = append(flushes, objects)
			mu.Unlock()
		},
	})

	created, err := alice.CreateObject(ctx, engineObject())
	require.NoError(t, err)
	assert.Len(t, alice.Objects(), 1, "local create applies immediately")

	// The transport echoes our own create back; it must be discarded.
	alice.handleObjectEvent(&canvas.ObjectEvent{
		Type:         canvas.EventObjectCreated,
		Object:       created,
		OriginUserID: "user-a",
	})
	alice.flushOnce()

	mu.Lock()
	assert.Empty(t, flushes, "an echo must not trigger a flush")
	mu.Unlock()

	// A genuinely remote create goes through the queue.
	remote := engineObject()
	remote.CreatedBy = "user-b"
	alice.handleObjectEvent(&canvas.ObjectEvent{
		Type:         canvas.EventObjectCreated,
		Object:       remote,
		OriginUserID: "user-b",
	})
	alice.flushOnce()

	mu.Lock()
	require.Len(t, flushes, 1)
	assert.Len(t, flushes[0], 2)
	mu.Unlock()
}

func TestUpdateBatchingLastWins(t *testing.T) {
	mr := setupTestRedis(t)
	clk := newFakeClock()

	alice, _ := newTestEngine(t, mr, clk, "user-a", "Alice")

	obj := engineObject()
	alice.handleObjectEvent(&canvas.ObjectEvent{Type: canvas.EventObjectCreated, Object: obj, OriginUserID: "user-b"})
	alice.flushOnce()

	var mu sync.Mutex
	flushCount := 0
	alice.UpdateCallbacks(Callbacks{
		OnObjectsChanged: func(objects []*canvas.CanvasObject) {
			mu.Lock()
			flushCount++
			mu.Unlock()
		},
	})

	// Three updates to the same object arrive within one tick.
	for _, x := range []float64{100, 200, 300} {
		updated := *obj
		updated.X = x
		alice.handleObjectEvent(&canvas.ObjectEvent{Type: canvas.EventObjectUpdated, Object: &updated, OriginUserID: "user-b"})
	}
	alice.flushOnce()

	mu.Lock()
	assert.Equal(t, 1, flushCount, "one tick, one state transition")
	mu.Unlock()

	objects := alice.Objects()
	require.Len(t, objects, 1)
	assert.Equal(t, 300.0, objects[0].X, "only the final position within the tick survives")

	// An empty tick emits nothing.
	alice.flushOnce()
	mu.Lock()
	assert.Equal(t, 1, flushCount)
	mu.Unlock()
}

func TestUpdateForDeletedObjectIsDropped(t *testing.T) {
	mr := setupTestRedis(t)
	alice, _ := newTestEngine(t, mr, newFakeClock(), "user-a", "Alice")

	obj := engineObject()
	alice.handleObjectEvent(&canvas.ObjectEvent{Type: canvas.EventObjectCreated, Object: obj, OriginUserID: "user-b"})
	alice.flushOnce()

	// Delete and a stale update race into the same tick.
	alice.handleObjectEvent(&canvas.ObjectEvent{Type: canvas.EventObjectDeleted, ObjectID: obj.ID, OriginUserID: "user-b"})
	alice.flushOnce()

	stale := *obj
	stale.X = 999
	alice.handleObjectEvent(&canvas.ObjectEvent{Type: canvas.EventObjectUpdated, Object: &stale, OriginUserID: "user-b"})
	alice.flushOnce()

	assert.Empty(t, alice.Objects(), "an update must not resurrect a deleted object")
}

func TestCursorCoalescing(t *testing.T) {
	mr := setupTestRedis(t)
	alice, _ := newTestEngine(t, mr, newFakeClock(), "user-a", "Alice")

	var mu sync.Mutex
	var batches []map[string]canvas.CursorEvent
	alice.UpdateCallbacks(Callbacks{
		OnCursorsMoved: func(cursors map[string]canvas.CursorEvent) {
			mu.Lock()
			batches = append(batches, cursors)
			mu.Unlock()
		},
	})

	for i := 0; i < 50; i++ {
		alice.handleCursorEvent(&canvas.CursorEvent{UserID: "user-b", DisplayName: "Bob", X: float64(i), Y: float64(i)})
	}
	// Our own cursor echoes are ignored entirely.
	alice.handleCursorEvent(&canvas.CursorEvent{UserID: "user-a", DisplayName: "Alice", X: 1, Y: 1})

	alice.flushOnce()

	mu.Lock()
	require.Len(t, batches, 1, "a cursor burst collapses to one callback per tick")
	require.Len(t, batches[0], 1)
	assert.Equal(t, 49.0, batches[0]["user-b"].X)
	mu.Unlock()
}

func TestPendingClaimsEmptyAfterResolution(t *testing.T) {
	mr := setupTestRedis(t)
	clk := newFakeClock()
	ctx := context.Background()

	alice, client := newTestEngine(t, mr, clk, "user-a", "Alice")
	bob, _ := newTestEngine(t, mr, clk, "user-b", "Bob")

	obj := engineObject()
	require.NoError(t, client.PutObject(ctx, obj))

	require.NoError(t, alice.Claim(ctx, obj.ID))
	assert.Empty(t, alice.PendingClaims(), "resolved claim leaves no pending entry")

	require.Error(t, bob.Claim(ctx, obj.ID))
	assert.Empty(t, bob.PendingClaims(), "rejected claim leaves no pending entry")
}

func TestExtendResetsLocalTTL(t *testing.T) {
	mr := setupTestRedis(t)
	clk := newFakeClock()
	ctx := context.Background()

	alice, client := newTestEngine(t, mr, clk, "user-a", "Alice")

	obj := engineObject()
	require.NoError(t, client.PutObject(ctx, obj))

	assert.False(t, alice.Extend(obj.ID), "cannot extend a lease we do not hold")

	require.NoError(t, alice.Claim(ctx, obj.ID))

	clk.advance(20 * time.Second)
	assert.True(t, alice.Extend(obj.ID))

	// Past the original TTL but within the extended one.
	clk.advance(15 * time.Second)
	alice.checkLeases()
	status, _ := alice.OwnershipStatus(obj.ID)
	assert.Equal(t, StatusClaimedByMe, status)

	clk.advance(20 * time.Second)
	alice.checkLeases()
	status, _ = alice.OwnershipStatus(obj.ID)
	assert.Equal(t, StatusAvailable, status)
}

func TestCreateObjectAssignsIdentity(t *testing.T) {
	mr := setupTestRedis(t)
	clk := newFakeClock()
	ctx := context.Background()

	alice, client := newTestEngine(t, mr, clk, "user-a", "Alice")

	obj := engineObject()
	obj.ID = ""
	obj.CanvasID = ""
	obj.CreatedBy = ""
	obj.OwnedBy = "someone" // callers cannot pre-claim through create

	created, err := alice.CreateObject(ctx, obj)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "canvas-1", created.CanvasID)
	assert.Equal(t, "user-a", created.CreatedBy)
	assert.Equal(t, canvas.UnclaimedOwner, created.OwnedBy)
	assert.Equal(t, clk.Now().UnixMilli(), created.CreatedAtMs)

	stored, err := client.GetObject(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, stored)
}

func TestUpdateObjectPreservesProvenance(t *testing.T) {
	mr := setupTestRedis(t)
	clk := newFakeClock()
	ctx := context.Background()

	alice, _ := newTestEngine(t, mr, clk, "user-a", "Alice")

	created, err := alice.CreateObject(ctx, engineObject())
	require.NoError(t, err)

	clk.advance(time.Second)

	edit := *created
	edit.X = 777
	edit.CreatedBy = "forged"
	edit.CreatedAtMs = 1
	require.NoError(t, alice.UpdateObject(ctx, &edit))

	objects := alice.Objects()
	require.Len(t, objects, 1)
	assert.Equal(t, 777.0, objects[0].X)
	assert.Equal(t, "user-a", objects[0].CreatedBy)
	assert.Equal(t, created.CreatedAtMs, objects[0].CreatedAtMs)
	assert.Greater(t, objects[0].UpdatedAtMs, created.CreatedAtMs)
}

func TestUpdateObjectUnknownID(t *testing.T) {
	mr := setupTestRedis(t)
	alice, _ := newTestEngine(t, mr, newFakeClock(), "user-a", "Alice")

	ghost := engineObject()
	err := alice.UpdateObject(context.Background(), ghost)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestDeleteObjectsBatch(t *testing.T) {
	mr := setupTestRedis(t)
	clk := newFakeClock()
	ctx := context.Background()

	alice, client := newTestEngine(t, mr, clk, "user-a", "Alice")

	first, err := alice.CreateObject(ctx, engineObject())
	require.NoError(t, err)
	second, err := alice.CreateObject(ctx, engineObject())
	require.NoError(t, err)

	ghost := uuid.New().String()
	require.NoError(t, alice.DeleteObjects(ctx, []string{first.ID, ghost, second.ID}))

	assert.Empty(t, alice.Objects())

	_, err = client.GetObject(ctx, first.ID)
	assert.True(t, canvas.IsNotFound(err))
	_, err = client.GetObject(ctx, second.ID)
	assert.True(t, canvas.IsNotFound(err))
}

func TestDeleteObjectsLockedBatchIsAtomic(t *testing.T) {
	mr := setupTestRedis(t)
	clk := newFakeClock()
	ctx := context.Background()

	bob, client := newTestEngine(t, mr, clk, "user-b", "Bob")

	free := engineObject()
	held := engineObject()
	require.NoError(t, client.PutObject(ctx, free))
	require.NoError(t, client.PutObject(ctx, held))

	for _, obj := range []*canvas.CanvasObject{free, held} {
		bob.handleObjectEvent(&canvas.ObjectEvent{Type: canvas.EventObjectCreated, Object: obj, OriginUserID: "user-a"})
	}
	bob.flushOnce()

	now := clk.Now()
	bob.handleOwnershipEvent(&canvas.OwnershipEvent{
		Type:        canvas.EventOwnershipClaimed,
		ObjectID:    held.ID,
		OwnerID:     "user-a",
		OwnerName:   "Alice",
		ClaimedAtMs: now.UnixMilli(),
		ExpiresAtMs: now.Add(30 * time.Second).UnixMilli(),
	})

	err := bob.DeleteObjects(ctx, []string{free.ID, held.ID})
	require.Error(t, err)
	assert.True(t, IsLocked(err))

	// A rejected batch must leave everything in place, locally and stored.
	assert.Len(t, bob.Objects(), 2)

	stored, err := client.GetObject(ctx, free.ID)
	require.NoError(t, err)
	assert.Equal(t, free.ID, stored.ID)

	// The unlocked id is still deletable on its own.
	require.NoError(t, bob.DeleteObject(ctx, free.ID))
	assert.Len(t, bob.Objects(), 1)
	_, err = client.GetObject(ctx, free.ID)
	assert.True(t, canvas.IsNotFound(err))
}

func TestDuplicateObjects(t *testing.T) {
	mr := setupTestRedis(t)
	clk := newFakeClock()
	ctx := context.Background()

	alice, client := newTestEngine(t, mr, clk, "user-a", "Alice")

	original, err := alice.CreateObject(ctx, engineObject())
	require.NoError(t, err)
	require.NoError(t, alice.Claim(ctx, original.ID))

	copies, err := alice.DuplicateObjects(ctx, []string{original.ID, uuid.New().String()})
	require.NoError(t, err)
	require.Len(t, copies, 1, "unknown ids are skipped")

	dup := copies[0]
	assert.NotEqual(t, original.ID, dup.ID)
	assert.Equal(t, original.X+duplicateOffset, dup.X)
	assert.Equal(t, original.Y+duplicateOffset, dup.Y)
	assert.Equal(t, canvas.UnclaimedOwner, dup.OwnedBy, "copies start unclaimed even when the original is leased")
	assert.Equal(t, original.Width, dup.Width)
	assert.Equal(t, original.Fill, dup.Fill)

	assert.Len(t, alice.Objects(), 2)

	stored, err := client.GetObject(ctx, dup.ID)
	require.NoError(t, err)
	assert.Equal(t, dup, stored)
}

func TestRosterFromPresenceEvents(t *testing.T) {
	mr := setupTestRedis(t)
	alice, _ := newTestEngine(t, mr, newFakeClock(), "user-a", "Alice")

	var mu sync.Mutex
	var latest []canvas.PresenceEntry
	alice.UpdateCallbacks(Callbacks{
		OnRosterChanged: func(roster []canvas.PresenceEntry) {
			mu.Lock()
			latest = roster
			mu.Unlock()
		},
	})

	alice.handlePresenceEvent(&canvas.PresenceEvent{
		Type:  canvas.EventPresenceJoined,
		Entry: canvas.PresenceEntry{UserID: "user-b", DisplayName: "Bob", LastSeenMs: 1},
	})

	mu.Lock()
	require.Len(t, latest, 1)
	assert.Equal(t, "Bob", latest[0].DisplayName)
	mu.Unlock()

	alice.handlePresenceEvent(&canvas.PresenceEvent{
		Type:  canvas.EventPresenceLeft,
		Entry: canvas.PresenceEntry{UserID: "user-b"},
	})

	mu.Lock()
	assert.Empty(t, latest)
	mu.Unlock()

	assert.Empty(t, alice.Roster())
}

func TestRemoteReleaseUnlocksObject(t *testing.T) {
	mr := setupTestRedis(t)
	clk := newFakeClock()
	ctx := context.Background()

	bob, client := newTestEngine(t, mr, clk, "user-b", "Bob")

	obj := engineObject()
	require.NoError(t, client.PutObject(ctx, obj))

	bob.handleObjectEvent(&canvas.ObjectEvent{Type: canvas.EventObjectCreated, Object: obj, OriginUserID: "user-a"})
	bob.flushOnce()

	now := clk.Now()
	bob.handleOwnershipEvent(&canvas.OwnershipEvent{
		Type:        canvas.EventOwnershipClaimed,
		ObjectID:    obj.ID,
		OwnerID:     "user-a",
		OwnerName:   "Alice",
		ClaimedAtMs: now.UnixMilli(),
		ExpiresAtMs: now.Add(30 * time.Second).UnixMilli(),
	})

	status, _ := bob.OwnershipStatus(obj.ID)
	require.Equal(t, StatusClaimedByOther, status)

	bob.handleOwnershipEvent(&canvas.OwnershipEvent{
		Type:          canvas.EventOwnershipReleased,
		ObjectID:      obj.ID,
		FormerOwnerID: "user-a",
		ReleasedAtMs:  now.UnixMilli(),
	})

	status, _ = bob.OwnershipStatus(obj.ID)
	assert.Equal(t, StatusAvailable, status)

	edit := *obj
	edit.X = 42
	assert.NoError(t, bob.UpdateObject(ctx, &edit))
}
