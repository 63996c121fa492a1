package capability

import "sync/atomic"

// Guard is a set-once flag. The first Take returns true and every later
// call returns false.
type Guard struct {
	taken atomic.Bool
}

// Take reports whether this is the first call.
func (g *Guard) Take() bool {
	return g.taken.CompareAndSwap(false, true)
}

// Taken reports whether Take has already been called.
func (g *Guard) Taken() bool {
	return g.taken.Load()
}
