package engine

import "time"

// Clock abstracts time for the engine so lease expiry and ledger GC are
// deterministically testable by advancing a fake clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
