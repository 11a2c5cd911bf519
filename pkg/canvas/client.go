package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client provides session-scoped Redis operations for a canvas session.
// All keys and channels are automatically namespaced with the session name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb         *redis.Client
	sessionName string
}

// casOwnerScript atomically updates an object's owned_by field only if it
// currently equals the expected value. This is the single strict-consistency
// primitive in the system; every ownership transition goes through it.
//
// Returns {-1, ""} if the object does not exist, {0, current} if the owner
// did not match, {1, next} on a successful swap.
var casOwnerScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {-1, ''}
end
local cur = redis.call('HGET', KEYS[1], 'owned_by')
if cur == false then cur = '' end
if cur ~= ARGV[1] then
  return {0, cur}
end
redis.call('HSET', KEYS[1], 'owned_by', ARGV[2], 'updated_at_ms', ARGV[3])
return {1, ARGV[2]}
`)

// NewClient creates a new canvas client for the specified session.
// The client automatically namespaces all keys and channels with the session name.
//
// Returns an error if sessionName is empty.
func NewClient(redisOpts *redis.Options, sessionName string) (*Client, error) {
	if sessionName == "" {
		return nil, fmt.Errorf("session name cannot be empty")
	}

	return &Client{
		rdb:         redis.NewClient(redisOpts),
		sessionName: sessionName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// PutObject writes an object to Redis and adds it to its canvas index.
// Validates the object before writing. Idempotent: writing the same object
// twice is a full-field replacement.
//
// PutObject persists only; broadcasting the matching object event is a
// separate, best-effort step (see PublishObjectEvent). The stored hash is
// the durable source of truth even when the broadcast is lost.
func (c *Client) PutObject(ctx context.Context, o *CanvasObject) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid object: %w", err)
	}

	key := ObjectKey(c.sessionName, o.ID)
	if err := c.rdb.HSet(ctx, key, ObjectToHash(o)).Err(); err != nil {
		return fmt.Errorf("failed to write object to Redis: %w", err)
	}

	indexKey := CanvasIndexKey(c.sessionName, o.CanvasID)
	if err := c.rdb.SAdd(ctx, indexKey, o.ID).Err(); err != nil {
		return fmt.Errorf("failed to index object: %w", err)
	}

	return nil
}

// GetObject retrieves an object by ID.
// Returns (nil, redis.Nil) if the object doesn't exist.
// Use IsNotFound() to check for not-found errors.
func (c *Client) GetObject(ctx context.Context, objectID string) (*CanvasObject, error) {
	key := ObjectKey(c.sessionName, objectID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read object from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	obj, err := HashToObject(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize object: %w", err)
	}

	return obj, nil
}

// ObjectExists checks if an object exists without fetching it.
func (c *Client) ObjectExists(ctx context.Context, objectID string) (bool, error) {
	key := ObjectKey(c.sessionName, objectID)
	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return exists > 0, nil
}

// DeleteObject removes an object hash and its canvas index entry.
// Deleting a non-existent object is a no-op.
func (c *Client) DeleteObject(ctx context.Context, canvasID, objectID string) error {
	key := ObjectKey(c.sessionName, objectID)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete object from Redis: %w", err)
	}

	indexKey := CanvasIndexKey(c.sessionName, canvasID)
	if err := c.rdb.SRem(ctx, indexKey, objectID).Err(); err != nil {
		return fmt.Errorf("failed to unindex object: %w", err)
	}

	return nil
}

// ListObjects retrieves all objects on a canvas.
// Index entries whose hash has already been deleted are skipped.
func (c *Client) ListObjects(ctx context.Context, canvasID string) ([]*CanvasObject, error) {
	indexKey := CanvasIndexKey(c.sessionName, canvasID)
	ids, err := c.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list canvas index: %w", err)
	}

	objects := make([]*CanvasObject, 0, len(ids))
	for _, id := range ids {
		obj, err := c.GetObject(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		objects = append(objects, obj)
	}

	return objects, nil
}

// ScanObjectIDs returns the IDs on a canvas that start with the given prefix.
// Used by the short-ID resolver; an empty prefix matches every object.
func (c *Client) ScanObjectIDs(ctx context.Context, canvasID, prefix string) ([]string, error) {
	indexKey := CanvasIndexKey(c.sessionName, canvasID)
	ids, err := c.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan canvas index: %w", err)
	}

	var matches []string
	for _, id := range ids {
		if len(id) >= len(prefix) && id[:len(prefix)] == prefix {
			matches = append(matches, id)
		}
	}

	return matches, nil
}

// CompareAndSwapOwner atomically sets an object's owner to next only if it
// currently equals expected. Returns the value observed by the script:
// on a successful swap current == next, on a failed swap current is whoever
// holds the lease now.
//
// Returns (false, "", redis.Nil) if the object does not exist.
func (c *Client) CompareAndSwapOwner(ctx context.Context, objectID, expected, next string, nowMs int64) (swapped bool, current string, err error) {
	key := ObjectKey(c.sessionName, objectID)

	res, err := casOwnerScript.Run(ctx, c.rdb, []string{key}, expected, next, nowMs).Result()
	if err != nil {
		return false, "", fmt.Errorf("owner compare-and-swap failed: %w", err)
	}

	reply, ok := res.([]interface{})
	if !ok || len(reply) != 2 {
		return false, "", fmt.Errorf("unexpected compare-and-swap reply: %v", res)
	}

	code, _ := reply[0].(int64)
	value, _ := reply[1].(string)

	switch code {
	case 1:
		return true, value, nil
	case 0:
		return false, value, nil
	default:
		return false, "", redis.Nil
	}
}

// PublishObjectEvent broadcasts an object mutation event to the session.
// Fire-and-forget: at-most-once delivery, no retry.
func (c *Client) PublishObjectEvent(ctx context.Context, event *ObjectEvent) error {
	return c.publish(ctx, ObjectEventsChannel(c.sessionName), event)
}

// PublishOwnershipEvent broadcasts a lease transition event to the session.
func (c *Client) PublishOwnershipEvent(ctx context.Context, event *OwnershipEvent) error {
	return c.publish(ctx, OwnershipEventsChannel(c.sessionName), event)
}

// PublishCursorEvent broadcasts a cursor position to the session.
func (c *Client) PublishCursorEvent(ctx context.Context, event *CursorEvent) error {
	return c.publish(ctx, CursorEventsChannel(c.sessionName), event)
}

func (c *Client) publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := c.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// TrackPresence records a presence entry in the session presence hash and
// broadcasts an advisory join event. Called on join and on every heartbeat.
func (c *Client) TrackPresence(ctx context.Context, entry *PresenceEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid presence entry: %w", err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal presence entry: %w", err)
	}

	key := PresenceKey(c.sessionName)
	if err := c.rdb.HSet(ctx, key, entry.UserID, data).Err(); err != nil {
		return fmt.Errorf("failed to write presence entry: %w", err)
	}

	event := &PresenceEvent{Type: EventPresenceJoined, Entry: *entry}
	return c.publish(ctx, PresenceEventsChannel(c.sessionName), event)
}

// RemovePresence deletes a presence entry and broadcasts an advisory leave
// event. Best-effort: peers also sweep stale entries on their own, so a
// missed removal only delays roster convergence.
func (c *Client) RemovePresence(ctx context.Context, userID string) error {
	key := PresenceKey(c.sessionName)
	if err := c.rdb.HDel(ctx, key, userID).Err(); err != nil {
		return fmt.Errorf("failed to remove presence entry: %w", err)
	}

	event := &PresenceEvent{Type: EventPresenceLeft, Entry: PresenceEntry{UserID: userID, DisplayName: userID}}
	return c.publish(ctx, PresenceEventsChannel(c.sessionName), event)
}

// PresenceSnapshot retrieves all presence entries for the session.
// Entries that fail to decode are skipped rather than failing the snapshot.
func (c *Client) PresenceSnapshot(ctx context.Context) ([]PresenceEntry, error) {
	key := PresenceKey(c.sessionName)
	raw, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence hash: %w", err)
	}

	entries := make([]PresenceEntry, 0, len(raw))
	for _, data := range raw {
		var entry PresenceEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Subscription represents an active Pub/Sub subscription to one session
// channel. Caller must call Close() when done to clean up resources.
//
// Events are delivered on a buffered channel (size 10) to prevent blocking.
// If the subscriber is too slow, events may be dropped by Redis Pub/Sub
// (at-most-once delivery).
type Subscription[T any] struct {
	events <-chan *T
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of decoded events.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription[T]) Events() <-chan *T {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures and other non-fatal issues.
// The subscription continues after errors - messages are skipped.
func (s *Subscription[T]) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription[T]) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeObjectEvents subscribes to object mutation events for this session.
// Caller must call subscription.Close() when done.
// Context cancellation also stops the subscription.
func (c *Client) SubscribeObjectEvents(ctx context.Context) (*Subscription[ObjectEvent], error) {
	return subscribe[ObjectEvent](ctx, c.rdb, ObjectEventsChannel(c.sessionName))
}

// SubscribeOwnershipEvents subscribes to lease transition events for this session.
func (c *Client) SubscribeOwnershipEvents(ctx context.Context) (*Subscription[OwnershipEvent], error) {
	return subscribe[OwnershipEvent](ctx, c.rdb, OwnershipEventsChannel(c.sessionName))
}

// SubscribeCursorEvents subscribes to cursor position events for this session.
func (c *Client) SubscribeCursorEvents(ctx context.Context) (*Subscription[CursorEvent], error) {
	return subscribe[CursorEvent](ctx, c.rdb, CursorEventsChannel(c.sessionName))
}

// SubscribePresenceEvents subscribes to advisory join/leave events for this session.
func (c *Client) SubscribePresenceEvents(ctx context.Context) (*Subscription[PresenceEvent], error) {
	return subscribe[PresenceEvent](ctx, c.rdb, PresenceEventsChannel(c.sessionName))
}

// subscribe wires a Redis Pub/Sub channel to a typed Subscription.
// A goroutine decodes each message into T and forwards it until the context
// is cancelled or the subscription is closed.
func subscribe[T any](ctx context.Context, rdb *redis.Client, channel string) (*Subscription[T], error) {
	pubsub := rdb.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed so that events published
	// immediately after this call are not missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	eventsChan := make(chan *T, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				event := new(T)
				if err := json.Unmarshal([]byte(msg.Payload), event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal event on %s: %w", channel, err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription[T]{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
// Use this to check if GetObject or CompareAndSwapOwner reported a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
