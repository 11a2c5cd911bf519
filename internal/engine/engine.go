// Package engine implements the collaborative state-synchronization and
// ownership-arbitration engine for one Easel client. It keeps the local
// object store consistent with remote peers over a best-effort broadcast
// transport, coalesces inbound events into fixed-tick state transitions,
// and arbitrates per-object edit leases through the transport's single
// atomic compare-and-swap primitive.
package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/easelhq/easel/pkg/canvas"
)

// duplicateOffset is the canvas-space displacement applied to duplicated
// objects so copies do not land exactly on their originals.
const duplicateOffset = 16.0

// Config holds the engine's session parameters. Zero durations fall back
// to the defaults below.
type Config struct {
	CanvasID    string
	UserID      string
	DisplayName string

	// LeaseTTL is the lifetime of an unextended edit lease.
	LeaseTTL time.Duration

	// FlushInterval is the batching tick period. The default targets
	// smooth ~60 Hz visual updates.
	FlushInterval time.Duration

	// PresenceStaleness is how long a roster entry survives without a
	// heartbeat. The sweep and heartbeat run at a third of this period.
	PresenceStaleness time.Duration

	// LedgerWindow bounds how long an unechoed operation tag is kept.
	LedgerWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.LeaseTTL == 0 {
		c.LeaseTTL = 30 * time.Second
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = 16 * time.Millisecond
	}
	if c.PresenceStaleness == 0 {
		c.PresenceStaleness = 10 * time.Second
	}
	if c.LedgerWindow == 0 {
		c.LedgerWindow = 60 * time.Second
	}
	return c
}

// Callbacks are the engine's outbound surface to the rendering layer. All
// callbacks receive copied snapshots and are invoked outside the engine
// lock; nil callbacks are skipped. Replace the whole set at once with
// UpdateCallbacks rather than capturing engine state in closures.
type Callbacks struct {
	// OnObjectsChanged delivers the full paint-ordered object snapshot
	// after any flush that changed the store.
	OnObjectsChanged func(objects []*canvas.CanvasObject)

	// OnCursorsMoved delivers at most one position per peer per tick.
	OnCursorsMoved func(cursors map[string]canvas.CursorEvent)

	// OnOwnershipChanged fires on every observed lease transition.
	OnOwnershipChanged func(objectID string, status OwnershipStatus)

	// OnClaimRejected fires when a local claim loses the race, naming the
	// winner.
	OnClaimRejected func(objectID, ownerID, ownerName string)

	// OnSelectionCleared fires when this client's own lease expires and
	// any UI selection referencing the object must be dropped.
	OnSelectionCleared func(objectID string)

	// OnRosterChanged delivers the deduplicated online roster.
	OnRosterChanged func(roster []canvas.PresenceEntry)
}

// Engine is the per-client sync engine. All mutable state is guarded by mu;
// cross-client concurrency is handled entirely by the owner compare-and-swap
// and the eventually-consistent batch merge.
type Engine struct {
	cfg    Config
	client *canvas.Client
	clock  Clock

	mu            sync.Mutex
	store         *objectStore
	ledger        *opLedger
	queue         *updateQueue
	leases        *leaseTable
	presence      *presenceTracker
	pendingClaims map[string]struct{}
	callbacks     Callbacks

	wg sync.WaitGroup
}

// New creates an engine for one user in one session. The transport client
// is injected explicitly; the engine holds no ambient global connection.
func New(cfg Config, client *canvas.Client) (*Engine, error) {
	if cfg.CanvasID == "" {
		return nil, fmt.Errorf("canvas ID cannot be empty")
	}
	if cfg.UserID == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}
	if cfg.DisplayName == "" {
		return nil, fmt.Errorf("display name cannot be empty")
	}

	return &Engine{
		cfg:           cfg.withDefaults(),
		client:        client,
		clock:         systemClock{},
		store:         newObjectStore(),
		ledger:        newOpLedger(),
		queue:         newUpdateQueue(),
		leases:        newLeaseTable(),
		presence:      newPresenceTracker(),
		pendingClaims: make(map[string]struct{}),
	}, nil
}

// UpdateCallbacks atomically replaces the engine's callback set.
func (e *Engine) UpdateCallbacks(cb Callbacks) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks = cb
}

// Run loads the canvas, joins presence, subscribes to the session channels
// and drives the engine until the context is cancelled. On shutdown it
// performs a best-effort release of every lease this client holds and
// removes its presence entry.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.bootstrap(ctx); err != nil {
		return err
	}

	objSub, err := e.client.SubscribeObjectEvents(ctx)
	if err != nil {
		return err
	}
	defer objSub.Close()

	ownSub, err := e.client.SubscribeOwnershipEvents(ctx)
	if err != nil {
		return err
	}
	defer ownSub.Close()

	curSub, err := e.client.SubscribeCursorEvents(ctx)
	if err != nil {
		return err
	}
	defer curSub.Close()

	presSub, err := e.client.SubscribePresenceEvents(ctx)
	if err != nil {
		return err
	}
	defer presSub.Close()

	log.Printf("[INFO] Engine running: user=%s canvas=%s", e.cfg.UserID, e.cfg.CanvasID)

	e.wg.Add(3)
	go e.eventLoop(ctx, objSub, ownSub, curSub, presSub)
	go e.flushLoop(ctx)
	go e.presenceLoop(ctx)

	<-ctx.Done()
	log.Printf("[INFO] Shutdown signal received, releasing leases")
	e.teardown()
	e.wg.Wait()
	log.Printf("[INFO] Engine shutdown complete")
	return nil
}

// bootstrap loads the current canvas state and registers this client's
// presence. Objects already leased by peers are seeded into the lease table
// with a locally-assumed TTL.
func (e *Engine) bootstrap(ctx context.Context) error {
	objects, err := e.client.ListObjects(ctx, e.cfg.CanvasID)
	if err != nil {
		return fmt.Errorf("failed to load canvas: %w", err)
	}

	now := e.clock.Now()

	e.mu.Lock()
	for _, obj := range objects {
		e.store.put(obj)
		if obj.OwnedBy != canvas.UnclaimedOwner && obj.OwnedBy != e.cfg.UserID {
			e.leases.set(&OwnershipRecord{
				ObjectID:    obj.ID,
				OwnerID:     obj.OwnedBy,
				OwnerName:   obj.OwnedBy,
				ClaimedAt:   now,
				ExpiresAt:   now.Add(e.cfg.LeaseTTL),
				ClaimedByMe: false,
			})
		}
	}
	e.mu.Unlock()

	if err := e.trackSelf(ctx); err != nil {
		return fmt.Errorf("failed to register presence: %w", err)
	}

	return e.refreshRoster(ctx)
}

// teardown is fire-and-forget: it must not block shutdown on a slow or
// unreachable transport.
func (e *Engine) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	e.ReleaseAllOwnedByMe(ctx, "")

	if err := e.client.RemovePresence(ctx, e.cfg.UserID); err != nil {
		log.Printf("[WARN] Failed to remove presence entry: %v", err)
	}
}

// eventLoop dispatches inbound events from all four session channels.
func (e *Engine) eventLoop(ctx context.Context,
	objSub *canvas.Subscription[canvas.ObjectEvent],
	ownSub *canvas.Subscription[canvas.OwnershipEvent],
	curSub *canvas.Subscription[canvas.CursorEvent],
	presSub *canvas.Subscription[canvas.PresenceEvent]) {
	defer e.wg.Done()

	objEvents := objSub.Events()
	ownEvents := ownSub.Events()
	curEvents := curSub.Events()
	presEvents := presSub.Events()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-objEvents:
			if !ok {
				objEvents = nil
				continue
			}
			e.handleObjectEvent(ev)

		case ev, ok := <-ownEvents:
			if !ok {
				ownEvents = nil
				continue
			}
			e.handleOwnershipEvent(ev)

		case ev, ok := <-curEvents:
			if !ok {
				curEvents = nil
				continue
			}
			e.handleCursorEvent(ev)

		case ev, ok := <-presEvents:
			if !ok {
				presEvents = nil
				continue
			}
			e.handlePresenceEvent(ev)

		case err, ok := <-objSub.Errors():
			if ok {
				log.Printf("[WARN] Object subscription error: %v", err)
			}
		case err, ok := <-ownSub.Errors():
			if ok {
				log.Printf("[WARN] Ownership subscription error: %v", err)
			}
		case err, ok := <-curSub.Errors():
			if ok {
				log.Printf("[WARN] Cursor subscription error: %v", err)
			}
		case err, ok := <-presSub.Errors():
			if ok {
				log.Printf("[WARN] Presence subscription error: %v", err)
			}
		}

		if objEvents == nil && ownEvents == nil && curEvents == nil && presEvents == nil {
			return
		}
	}
}

// flushLoop drives one flush (and one lease expiry check) per tick.
func (e *Engine) flushLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.checkLeases()
			e.flushOnce()
		}
	}
}

// presenceLoop heartbeats this client's presence entry, refreshes the
// roster from the sync snapshot, and sweeps stale roster entries and
// unechoed ledger tags. Runs at a third of the staleness threshold so a
// missed disconnect signal is tolerated within one threshold.
func (e *Engine) presenceLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.PresenceStaleness / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.trackSelf(ctx); err != nil {
				log.Printf("[WARN] Presence heartbeat failed: %v", err)
			}
			if err := e.refreshRoster(ctx); err != nil {
				log.Printf("[WARN] Presence sync failed: %v", err)
			}
			e.sweep()
		}
	}
}

func (e *Engine) trackSelf(ctx context.Context) error {
	return e.client.TrackPresence(ctx, &canvas.PresenceEntry{
		UserID:      e.cfg.UserID,
		DisplayName: e.cfg.DisplayName,
		LastSeenMs:  e.clock.Now().UnixMilli(),
	})
}

func (e *Engine) refreshRoster(ctx context.Context) error {
	entries, err := e.client.PresenceSnapshot(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.presence.syncSnapshot(entries)
	roster := e.presence.snapshot()
	cb := e.callbacks
	e.mu.Unlock()

	if cb.OnRosterChanged != nil {
		cb.OnRosterChanged(roster)
	}
	return nil
}

// sweep removes stale roster entries and evicts ledger tags whose echo
// never arrived.
func (e *Engine) sweep() {
	now := e.clock.Now()

	e.mu.Lock()
	removed := e.presence.sweep(now.UnixMilli(), e.cfg.PresenceStaleness.Milliseconds())
	dropped := e.ledger.sweep(now, e.cfg.LedgerWindow)
	var roster []canvas.PresenceEntry
	cb := e.callbacks
	if len(removed) > 0 {
		roster = e.presence.snapshot()
	}
	e.mu.Unlock()

	if dropped > 0 {
		log.Printf("[DEBUG] Evicted %d unechoed operation tags", dropped)
	}
	if len(removed) > 0 {
		log.Printf("[DEBUG] Swept %d stale presence entries", len(removed))
		if cb.OnRosterChanged != nil {
			cb.OnRosterChanged(roster)
		}
	}
}

// handleObjectEvent runs the echo-suppression check and enqueues genuinely
// remote mutations for the next flush. Store merges never happen here; the
// flush is the only batch mutator of the object store.
func (e *Engine) handleObjectEvent(ev *canvas.ObjectEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Type {
	case canvas.EventObjectCreated:
		if ev.Object == nil {
			return
		}
		if e.ledger.consume(opCreate, ev.Object.ID) || e.store.has(ev.Object.ID) {
			return
		}
		e.queue.addCreated(ev.Object)

	case canvas.EventObjectUpdated:
		if ev.Object == nil {
			return
		}
		if e.ledger.consume(opUpdate, ev.Object.ID) {
			return
		}
		e.queue.addUpdated(ev.Object)

	case canvas.EventObjectDeleted:
		if e.ledger.consume(opDelete, ev.ObjectID) {
			return
		}
		e.queue.addDeleted(ev.ObjectID)

	case canvas.EventObjectsDeleted:
		for _, id := range ev.ObjectIDs {
			if e.ledger.consume(opDelete, id) {
				continue
			}
			e.queue.addDeleted(id)
		}

	case canvas.EventObjectsDuplicated:
		for _, obj := range ev.Objects {
			if e.ledger.consume(opDuplicate, obj.ID) || e.store.has(obj.ID) {
				continue
			}
			e.queue.addDuplicated(obj)
		}

	default:
		log.Printf("[WARN] Unknown object event type: %q", ev.Type)
	}
}

// handleOwnershipEvent applies lease transitions immediately; ownership is
// the one concern that never waits for the batch tick.
func (e *Engine) handleOwnershipEvent(ev *canvas.OwnershipEvent) {
	switch ev.Type {
	case canvas.EventOwnershipClaimed:
		if ev.OwnerID == e.cfg.UserID {
			return // echo of our own claim
		}

		e.mu.Lock()
		e.leases.set(&OwnershipRecord{
			ObjectID:    ev.ObjectID,
			OwnerID:     ev.OwnerID,
			OwnerName:   ev.OwnerName,
			ClaimedAt:   time.UnixMilli(ev.ClaimedAtMs),
			ExpiresAt:   time.UnixMilli(ev.ExpiresAtMs),
			ClaimedByMe: false,
		})
		e.store.setOwner(ev.ObjectID, ev.OwnerID)
		cb := e.callbacks
		e.mu.Unlock()

		if cb.OnOwnershipChanged != nil {
			cb.OnOwnershipChanged(ev.ObjectID, StatusClaimedByOther)
		}

	case canvas.EventOwnershipReleased:
		if ev.FormerOwnerID == e.cfg.UserID {
			return // echo of our own release
		}

		e.mu.Lock()
		e.leases.clear(ev.ObjectID)
		e.store.setOwner(ev.ObjectID, canvas.UnclaimedOwner)
		cb := e.callbacks
		e.mu.Unlock()

		if cb.OnOwnershipChanged != nil {
			cb.OnOwnershipChanged(ev.ObjectID, StatusAvailable)
		}

	case canvas.EventOwnershipRejected:
		// Informational for peers; the losing claimer already surfaced the
		// rejection locally.
		log.Printf("[DEBUG] Claim on %s by %s rejected, held by %s",
			ev.ObjectID, ev.RequestingUserID, ev.CurrentOwnerID)

	default:
		log.Printf("[WARN] Unknown ownership event type: %q", ev.Type)
	}
}

func (e *Engine) handleCursorEvent(ev *canvas.CursorEvent) {
	if ev.UserID == e.cfg.UserID {
		return
	}

	e.mu.Lock()
	e.queue.setCursor(*ev)
	e.mu.Unlock()
}

func (e *Engine) handlePresenceEvent(ev *canvas.PresenceEvent) {
	e.mu.Lock()
	switch ev.Type {
	case canvas.EventPresenceJoined:
		e.presence.observeJoin(ev.Entry)
	case canvas.EventPresenceLeft:
		e.presence.observeLeave(ev.Entry.UserID)
	}
	roster := e.presence.snapshot()
	cb := e.callbacks
	e.mu.Unlock()

	if cb.OnRosterChanged != nil {
		cb.OnRosterChanged(roster)
	}
}

// flushOnce performs one batching-queue flush: creates and duplicates
// (skip-if-present), then updates (replace-if-present), then deletes
// (filter-out), producing a single state transition, then drains the
// cursor map into one batched callback.
func (e *Engine) flushOnce() {
	e.mu.Lock()
	if e.queue.empty() {
		e.mu.Unlock()
		return
	}

	batch := e.queue.drain()

	for _, obj := range batch.created {
		if !e.store.has(obj.ID) {
			e.store.put(obj)
		}
	}
	for _, obj := range batch.duplicated {
		if !e.store.has(obj.ID) {
			e.store.put(obj)
		}
	}
	for _, obj := range batch.updated {
		e.store.replace(obj)
	}
	for _, id := range batch.deleted {
		e.store.remove(id)
		e.leases.clear(id)
		delete(e.pendingClaims, id)
	}

	objectsChanged := len(batch.created) > 0 || len(batch.duplicated) > 0 ||
		len(batch.updated) > 0 || len(batch.deleted) > 0

	var snap []*canvas.CanvasObject
	if objectsChanged {
		snap = e.store.snapshot()
	}
	cursors := batch.cursors
	cb := e.callbacks
	e.mu.Unlock()

	if objectsChanged && cb.OnObjectsChanged != nil {
		cb.OnObjectsChanged(snap)
	}
	if len(cursors) > 0 && cb.OnCursorsMoved != nil {
		cb.OnCursorsMoved(cursors)
	}
}

// checkLeases pops due lease expiries. A lease of ours expiring makes the
// object locally available immediately, clears any UI selection, and
// reconciles the external store asynchronously. A peer's lease expiring is
// locally assumed released and surfaced as the expired status.
func (e *Engine) checkLeases() {
	now := e.clock.Now()

	e.mu.Lock()
	due := e.leases.expired(now)
	var mine, theirs []string
	for _, id := range due {
		rec, ok := e.leases.get(id)
		if !ok {
			continue
		}
		if rec.ClaimedByMe {
			e.leases.clear(id)
			e.store.setOwner(id, canvas.UnclaimedOwner)
			mine = append(mine, id)
		} else {
			theirs = append(theirs, id)
		}
	}
	cb := e.callbacks
	e.mu.Unlock()

	for _, id := range mine {
		log.Printf("[INFO] Lease on %s expired, releasing", id)
		if cb.OnSelectionCleared != nil {
			cb.OnSelectionCleared(id)
		}
		if cb.OnOwnershipChanged != nil {
			cb.OnOwnershipChanged(id, StatusAvailable)
		}
		go e.reconcileExpiredLease(id)
	}
	for _, id := range theirs {
		if cb.OnOwnershipChanged != nil {
			cb.OnOwnershipChanged(id, StatusExpired)
		}
	}
}

// reconcileExpiredLease pushes a locally-expired lease of ours back to the
// external store. Best-effort: the compare-and-swap no-ops if someone else
// already took or cleared the lease.
func (e *Engine) reconcileExpiredLease(objectID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	swapped, _, err := e.client.CompareAndSwapOwner(ctx, objectID, e.cfg.UserID, canvas.UnclaimedOwner, e.clock.Now().UnixMilli())
	if err != nil {
		if !canvas.IsNotFound(err) {
			log.Printf("[WARN] Failed to reconcile expired lease on %s: %v", objectID, err)
		}
		return
	}
	if !swapped {
		return
	}

	event := &canvas.OwnershipEvent{
		Type:          canvas.EventOwnershipReleased,
		ObjectID:      objectID,
		FormerOwnerID: e.cfg.UserID,
		ReleasedAtMs:  e.clock.Now().UnixMilli(),
	}
	if err := e.client.PublishOwnershipEvent(ctx, event); err != nil {
		log.Printf("[WARN] Failed to broadcast expiry release for %s: %v", objectID, err)
	}
}

// lockedBy reports whether a live lease held by another user blocks
// mutations of the object. An expired remote lease does not block; the
// stored owner field is consulted when no local record exists.
// Caller must hold e.mu.
func (e *Engine) lockedBy(id string, now time.Time) (ownerID, ownerName string, locked bool) {
	if rec, ok := e.leases.get(id); ok {
		if rec.ClaimedByMe {
			return "", "", false
		}
		if now.Before(rec.ExpiresAt) {
			return rec.OwnerID, rec.OwnerName, true
		}
		return "", "", false
	}

	if obj, ok := e.store.get(id); ok {
		if obj.OwnedBy != canvas.UnclaimedOwner && obj.OwnedBy != e.cfg.UserID {
			return obj.OwnedBy, obj.OwnedBy, true
		}
	}
	return "", "", false
}

// CreateObject optimistically inserts a new object, tags it in the ledger,
// persists it and broadcasts object_created. The returned object carries
// the generated id and timestamps. A failed broadcast is logged and
// non-fatal; the persisted record is the durable source of truth.
func (e *Engine) CreateObject(ctx context.Context, obj *canvas.CanvasObject) (*canvas.CanvasObject, error) {
	now := e.clock.Now()

	clone := *obj
	if clone.ID == "" {
		clone.ID = uuid.New().String()
	}
	if clone.CanvasID == "" {
		clone.CanvasID = e.cfg.CanvasID
	}
	clone.OwnedBy = canvas.UnclaimedOwner
	clone.CreatedBy = e.cfg.UserID
	clone.CreatedAtMs = now.UnixMilli()
	clone.UpdatedAtMs = now.UnixMilli()

	if err := clone.Validate(); err != nil {
		return nil, fmt.Errorf("invalid object: %w", err)
	}

	e.mu.Lock()
	e.store.put(&clone)
	e.ledger.tag(opCreate, clone.ID, now)
	e.mu.Unlock()

	if err := e.client.PutObject(ctx, &clone); err != nil {
		return nil, fmt.Errorf("failed to persist object: %w", err)
	}

	event := &canvas.ObjectEvent{
		Type:         canvas.EventObjectCreated,
		Object:       &clone,
		OriginUserID: e.cfg.UserID,
		OriginName:   e.cfg.DisplayName,
		TimestampMs:  now.UnixMilli(),
	}
	if err := e.client.PublishObjectEvent(ctx, event); err != nil {
		log.Printf("[WARN] Failed to broadcast object_created for %s: %v", clone.ID, err)
	}

	result := clone
	return &result, nil
}

// UpdateObject optimistically replaces an existing object's fields.
// Rejected with a LockedError while another user's live lease covers the
// object.
func (e *Engine) UpdateObject(ctx context.Context, obj *canvas.CanvasObject) error {
	now := e.clock.Now()

	e.mu.Lock()
	current, ok := e.store.get(obj.ID)
	if !ok {
		e.mu.Unlock()
		return ErrObjectNotFound
	}
	if ownerID, ownerName, locked := e.lockedBy(obj.ID, now); locked {
		e.mu.Unlock()
		return &LockedError{ObjectID: obj.ID, OwnerID: ownerID, OwnerName: ownerName}
	}

	clone := *obj
	clone.CanvasID = current.CanvasID
	clone.CreatedBy = current.CreatedBy
	clone.CreatedAtMs = current.CreatedAtMs
	clone.OwnedBy = current.OwnedBy
	clone.UpdatedAtMs = now.UnixMilli()

	e.store.replace(&clone)
	e.ledger.tag(opUpdate, clone.ID, now)
	e.mu.Unlock()

	if err := e.client.PutObject(ctx, &clone); err != nil {
		return fmt.Errorf("failed to persist object: %w", err)
	}

	event := &canvas.ObjectEvent{
		Type:         canvas.EventObjectUpdated,
		Object:       &clone,
		OriginUserID: e.cfg.UserID,
		TimestampMs:  now.UnixMilli(),
	}
	if err := e.client.PublishObjectEvent(ctx, event); err != nil {
		log.Printf("[WARN] Failed to broadcast object_updated for %s: %v", clone.ID, err)
	}

	return nil
}

// DeleteObject removes a single object. See DeleteObjects.
func (e *Engine) DeleteObject(ctx context.Context, objectID string) error {
	return e.DeleteObjects(ctx, []string{objectID})
}

// DeleteObjects optimistically removes objects, skipping ids that are
// already absent. If any object in the batch is locked by another user's
// live lease the whole batch is rejected before anything is touched, so the
// local store never diverges from the stored state. One batched
// objects_deleted event is broadcast for multi-delete, object_deleted for a
// single id.
func (e *Engine) DeleteObjects(ctx context.Context, objectIDs []string) error {
	now := e.clock.Now()

	e.mu.Lock()
	for _, id := range objectIDs {
		if !e.store.has(id) {
			continue
		}
		if ownerID, ownerName, locked := e.lockedBy(id, now); locked {
			e.mu.Unlock()
			return &LockedError{ObjectID: id, OwnerID: ownerID, OwnerName: ownerName}
		}
	}

	var deleted []string
	for _, id := range objectIDs {
		if !e.store.has(id) {
			continue
		}
		e.store.remove(id)
		e.leases.clear(id)
		delete(e.pendingClaims, id)
		e.ledger.tag(opDelete, id, now)
		deleted = append(deleted, id)
	}
	e.mu.Unlock()

	if len(deleted) == 0 {
		return nil
	}

	for _, id := range deleted {
		if err := e.client.DeleteObject(ctx, e.cfg.CanvasID, id); err != nil {
			return fmt.Errorf("failed to delete object %s: %w", id, err)
		}
	}

	event := &canvas.ObjectEvent{
		OriginUserID: e.cfg.UserID,
		TimestampMs:  now.UnixMilli(),
	}
	if len(deleted) == 1 {
		event.Type = canvas.EventObjectDeleted
		event.ObjectID = deleted[0]
	} else {
		event.Type = canvas.EventObjectsDeleted
		event.ObjectIDs = deleted
	}
	if err := e.client.PublishObjectEvent(ctx, event); err != nil {
		log.Printf("[WARN] Failed to broadcast delete for %v: %v", deleted, err)
	}

	return nil
}

// DuplicateObjects clones the given objects with fresh ids, a small
// position offset and unclaimed ownership, then broadcasts one
// objects_duplicated event naming both originals and copies.
func (e *Engine) DuplicateObjects(ctx context.Context, objectIDs []string) ([]*canvas.CanvasObject, error) {
	now := e.clock.Now()

	e.mu.Lock()
	var originals []string
	var copies []*canvas.CanvasObject
	for _, id := range objectIDs {
		src, ok := e.store.get(id)
		if !ok {
			continue
		}

		clone := *src
		clone.ID = uuid.New().String()
		clone.X += duplicateOffset
		clone.Y += duplicateOffset
		clone.OwnedBy = canvas.UnclaimedOwner
		clone.CreatedBy = e.cfg.UserID
		clone.CreatedAtMs = now.UnixMilli()
		clone.UpdatedAtMs = now.UnixMilli()

		e.store.put(&clone)
		e.ledger.tag(opDuplicate, clone.ID, now)
		originals = append(originals, id)
		copies = append(copies, &clone)
	}
	e.mu.Unlock()

	if len(copies) == 0 {
		return nil, nil
	}

	for _, obj := range copies {
		if err := e.client.PutObject(ctx, obj); err != nil {
			return copies, fmt.Errorf("failed to persist duplicate %s: %w", obj.ID, err)
		}
	}

	event := &canvas.ObjectEvent{
		Type:         canvas.EventObjectsDuplicated,
		Objects:      copies,
		OriginalIDs:  originals,
		OriginUserID: e.cfg.UserID,
		OriginName:   e.cfg.DisplayName,
		TimestampMs:  now.UnixMilli(),
	}
	if err := e.client.PublishObjectEvent(ctx, event); err != nil {
		log.Printf("[WARN] Failed to broadcast objects_duplicated: %v", err)
	}

	return copies, nil
}

// MoveCursor broadcasts this client's cursor position. Ephemeral and
// loss-tolerant: failures are silently dropped and never block mutations.
func (e *Engine) MoveCursor(ctx context.Context, x, y float64) {
	event := &canvas.CursorEvent{
		UserID:      e.cfg.UserID,
		DisplayName: e.cfg.DisplayName,
		X:           x,
		Y:           y,
		TimestampMs: e.clock.Now().UnixMilli(),
	}
	if err := e.client.PublishCursorEvent(ctx, event); err != nil {
		log.Printf("[DEBUG] Dropped cursor broadcast: %v", err)
	}
}

// Claim requests the edit lease on an object through the owner
// compare-and-swap. First successful swap wins; losers get a RejectedError
// naming the winner and must not retry automatically. The pending-claim
// entry is removed on resolution, success or failure.
func (e *Engine) Claim(ctx context.Context, objectID string) error {
	now := e.clock.Now()

	e.mu.Lock()
	e.pendingClaims[objectID] = struct{}{}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.pendingClaims, objectID)
		e.mu.Unlock()
	}()

	swapped, current, err := e.client.CompareAndSwapOwner(ctx, objectID, canvas.UnclaimedOwner, e.cfg.UserID, now.UnixMilli())
	if err != nil {
		if canvas.IsNotFound(err) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("claim failed: %w", err)
	}

	if swapped {
		expiresAt := now.Add(e.cfg.LeaseTTL)

		e.mu.Lock()
		e.leases.set(&OwnershipRecord{
			ObjectID:    objectID,
			OwnerID:     e.cfg.UserID,
			OwnerName:   e.cfg.DisplayName,
			ClaimedAt:   now,
			ExpiresAt:   expiresAt,
			ClaimedByMe: true,
		})
		e.store.setOwner(objectID, e.cfg.UserID)
		cb := e.callbacks
		e.mu.Unlock()

		event := &canvas.OwnershipEvent{
			Type:        canvas.EventOwnershipClaimed,
			ObjectID:    objectID,
			OwnerID:     e.cfg.UserID,
			OwnerName:   e.cfg.DisplayName,
			ClaimedAtMs: now.UnixMilli(),
			ExpiresAtMs: expiresAt.UnixMilli(),
		}
		if err := e.client.PublishOwnershipEvent(ctx, event); err != nil {
			log.Printf("[WARN] Failed to broadcast ownership_claimed for %s: %v", objectID, err)
		}

		if cb.OnOwnershipChanged != nil {
			cb.OnOwnershipChanged(objectID, StatusClaimedByMe)
		}
		return nil
	}

	if current == e.cfg.UserID {
		// A repeated claim on a lease we already hold, e.g. a double-click.
		// Refresh the local record instead of rejecting ourselves: a self
		// rejection would install a foreign-owner record that blocks our
		// own edits and makes Release a permanent no-op.
		expiresAt := now.Add(e.cfg.LeaseTTL)

		e.mu.Lock()
		if rec, ok := e.leases.get(objectID); ok && rec.ClaimedByMe {
			e.leases.extend(objectID, expiresAt)
		} else {
			e.leases.set(&OwnershipRecord{
				ObjectID:    objectID,
				OwnerID:     e.cfg.UserID,
				OwnerName:   e.cfg.DisplayName,
				ClaimedAt:   now,
				ExpiresAt:   expiresAt,
				ClaimedByMe: true,
			})
		}
		e.store.setOwner(objectID, e.cfg.UserID)
		cb := e.callbacks
		e.mu.Unlock()

		if cb.OnOwnershipChanged != nil {
			cb.OnOwnershipChanged(objectID, StatusClaimedByMe)
		}
		return nil
	}

	// Lost the race; resolve the winner's display name and surface the
	// rejection instead of retrying.
	e.mu.Lock()
	ownerName := current
	if entry, ok := e.presence.get(current); ok {
		ownerName = entry.DisplayName
	}
	e.leases.set(&OwnershipRecord{
		ObjectID:    objectID,
		OwnerID:     current,
		OwnerName:   ownerName,
		ClaimedAt:   now,
		ExpiresAt:   now.Add(e.cfg.LeaseTTL),
		ClaimedByMe: false,
	})
	e.store.setOwner(objectID, current)
	cb := e.callbacks
	e.mu.Unlock()

	event := &canvas.OwnershipEvent{
		Type:             canvas.EventOwnershipRejected,
		ObjectID:         objectID,
		RequestingUserID: e.cfg.UserID,
		CurrentOwnerID:   current,
		CurrentOwnerName: ownerName,
	}
	if err := e.client.PublishOwnershipEvent(ctx, event); err != nil {
		log.Printf("[DEBUG] Dropped ownership_rejected broadcast: %v", err)
	}

	if cb.OnClaimRejected != nil {
		cb.OnClaimRejected(objectID, current, ownerName)
	}
	return &RejectedError{ObjectID: objectID, OwnerID: current, OwnerName: ownerName}
}

// Release gives up a lease this client believes it holds. The stored owner
// is re-checked atomically by the compare-and-swap; if the object is no
// longer ours the call is a no-op returning false. Idempotent, never panics.
func (e *Engine) Release(ctx context.Context, objectID string) (bool, error) {
	e.mu.Lock()
	rec, ok := e.leases.get(objectID)
	if !ok || !rec.ClaimedByMe {
		e.mu.Unlock()
		return false, nil
	}
	e.mu.Unlock()

	now := e.clock.Now()
	swapped, _, err := e.client.CompareAndSwapOwner(ctx, objectID, e.cfg.UserID, canvas.UnclaimedOwner, now.UnixMilli())
	if err != nil && !canvas.IsNotFound(err) {
		return false, fmt.Errorf("release failed: %w", err)
	}

	// Local belief is cleared whether or not the swap happened: either we
	// released, the object is gone, or someone else holds it now.
	e.mu.Lock()
	e.leases.clear(objectID)
	if swapped {
		e.store.setOwner(objectID, canvas.UnclaimedOwner)
	}
	cb := e.callbacks
	e.mu.Unlock()

	if !swapped {
		return false, nil
	}

	event := &canvas.OwnershipEvent{
		Type:          canvas.EventOwnershipReleased,
		ObjectID:      objectID,
		FormerOwnerID: e.cfg.UserID,
		ReleasedAtMs:  now.UnixMilli(),
	}
	if err := e.client.PublishOwnershipEvent(ctx, event); err != nil {
		log.Printf("[WARN] Failed to broadcast ownership_released for %s: %v", objectID, err)
	}

	if cb.OnOwnershipChanged != nil {
		cb.OnOwnershipChanged(objectID, StatusAvailable)
	}
	return true, nil
}

// ReleaseAllOwnedByMe releases every lease this client holds, in parallel,
// optionally keeping one. Used on deselect-all and on teardown; errors are
// logged, not returned, because teardown cannot act on them.
func (e *Engine) ReleaseAllOwnedByMe(ctx context.Context, exceptID string) {
	e.mu.Lock()
	ids := e.leases.ownedByMe(exceptID)
	e.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(objectID string) {
			defer wg.Done()
			if _, err := e.Release(ctx, objectID); err != nil {
				log.Printf("[WARN] Failed to release %s: %v", objectID, err)
			}
		}(id)
	}
	wg.Wait()
}

// Extend resets the local TTL timer on a lease this client holds, with no
// network round-trip. Peers keep the original expires_at: the stored owner
// field, not the TTL, is the authority for edit permission. Returns false
// if no lease of ours covers the object.
func (e *Engine) Extend(objectID string) bool {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.leases.get(objectID)
	if !ok || !rec.ClaimedByMe {
		return false
	}
	return e.leases.extend(objectID, now.Add(e.cfg.LeaseTTL))
}

// OwnershipStatus derives the current lease state of an object. Derived on
// every read; an expired lease of our own reads as available even before
// the expiry tick reconciles it.
func (e *Engine) OwnershipStatus(objectID string) (OwnershipStatus, *OwnershipRecord) {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.leases.get(objectID)
	if !ok {
		return StatusAvailable, nil
	}

	recCopy := *rec
	live := now.Before(rec.ExpiresAt)

	switch {
	case rec.ClaimedByMe && live:
		return StatusClaimedByMe, &recCopy
	case rec.ClaimedByMe:
		return StatusAvailable, nil
	case live:
		return StatusClaimedByOther, &recCopy
	default:
		return StatusExpired, &recCopy
	}
}

// Objects returns the paint-ordered snapshot of the local object store.
func (e *Engine) Objects() []*canvas.CanvasObject {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.snapshot()
}

// Roster returns the deduplicated online roster.
func (e *Engine) Roster() []canvas.PresenceEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.presence.snapshot()
}

// PendingClaims returns the ids of claims currently in flight, sorted.
// Used only for UI affordance (the "claiming" spinner).
func (e *Engine) PendingClaims() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.pendingClaims))
	for id := range e.pendingClaims {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
