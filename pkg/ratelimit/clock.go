package ratelimit

import "time"

// Clock supplies timestamps for elapsed-time computation.
// Production code uses SystemClock; tests inject a fixed clock to make
// refill arithmetic deterministic.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }
