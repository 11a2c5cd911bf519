package engine

import (
	"errors"
	"fmt"
)

// RejectedError reports a claim race lost to another user. Claim races are
// expected, not exceptional; callers must surface the winner's identity and
// must not auto-retry.
type RejectedError struct {
	ObjectID  string
	OwnerID   string
	OwnerName string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("claim on %q rejected: held by %s (%s)", e.ObjectID, e.OwnerName, e.OwnerID)
}

// IsRejected checks if an error is a RejectedError.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}

// LockedError reports a mutation attempted on an object whose live lease is
// held by another user.
type LockedError struct {
	ObjectID  string
	OwnerID   string
	OwnerName string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("object %q is locked by %s (%s)", e.ObjectID, e.OwnerName, e.OwnerID)
}

// IsLocked checks if an error is a LockedError.
func IsLocked(err error) bool {
	var locked *LockedError
	return errors.As(err, &locked)
}

// ErrObjectNotFound reports an operation against an object absent from the
// local store.
var ErrObjectNotFound = errors.New("object not found")
