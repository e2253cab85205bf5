package engine

import "time"

// Clock abstracts wall-clock reads so passes are testable at fixed
// instants. The production implementation is systemClock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the real wall clock (UTC).
func SystemClock() Clock { return systemClock{} }
