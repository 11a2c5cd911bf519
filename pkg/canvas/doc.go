// Package canvas provides the shared data model and Redis schema for Easel
// collaborative drawing sessions. Every client in a session interacts with
// the same state through this package: canvas objects stored as Redis
// hashes, broadcast events on session-scoped Pub/Sub channels, an atomic
// compare-and-swap primitive over an object's owner field, and a presence
// hash tracking the online roster.
//
// All Redis keys and channels are namespaced by session name so that
// multiple sessions can safely coexist on a single Redis server.
//
// Delivery model: Pub/Sub events are fire-and-forget and at-most-once. The
// stored object hashes are the durable source of truth; the owner
// compare-and-swap is the only operation with strict atomicity guarantees.
// Everything else is best-effort and reconciled by the consuming engine
// (see internal/engine).
package canvas
