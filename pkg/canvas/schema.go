package canvas

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by session name to
// enable multiple Easel sessions to safely coexist on a single Redis server.
//
// Key pattern: easel:{session_name}:{entity}:{id}
// Channel pattern: easel:{session_name}:{event_type}_events

// ObjectKey returns the Redis key for a canvas object hash.
// Pattern: easel:{session_name}:object:{object_id}
func ObjectKey(sessionName, objectID string) string {
	return fmt.Sprintf("easel:%s:object:%s", sessionName, objectID)
}

// CanvasIndexKey returns the Redis key for the set of object IDs on a canvas.
// Pattern: easel:{session_name}:canvas:{canvas_id}:objects
func CanvasIndexKey(sessionName, canvasID string) string {
	return fmt.Sprintf("easel:%s:canvas:%s:objects", sessionName, canvasID)
}

// PresenceKey returns the Redis key for the session presence hash.
// The hash maps user_id to a JSON-encoded PresenceEntry.
// Pattern: easel:{session_name}:presence
func PresenceKey(sessionName string) string {
	return fmt.Sprintf("easel:%s:presence", sessionName)
}

// ObjectEventsChannel returns the Pub/Sub channel name for object mutations.
// Pattern: easel:{session_name}:object_events
func ObjectEventsChannel(sessionName string) string {
	return fmt.Sprintf("easel:%s:object_events", sessionName)
}

// OwnershipEventsChannel returns the Pub/Sub channel name for lease events.
// Pattern: easel:{session_name}:ownership_events
func OwnershipEventsChannel(sessionName string) string {
	return fmt.Sprintf("easel:%s:ownership_events", sessionName)
}

// CursorEventsChannel returns the Pub/Sub channel name for cursor positions.
// Pattern: easel:{session_name}:cursor_events
func CursorEventsChannel(sessionName string) string {
	return fmt.Sprintf("easel:%s:cursor_events", sessionName)
}

// PresenceEventsChannel returns the Pub/Sub channel name for advisory
// join/leave notifications.
// Pattern: easel:{session_name}:presence_events
func PresenceEventsChannel(sessionName string) string {
	return fmt.Sprintf("easel:%s:presence_events", sessionName)
}
