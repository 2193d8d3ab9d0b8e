package concurrent

import "sync/atomic"

// Counter is a lock-free monotonic counter. PageCache uses one per
// hit/miss series so Stats() can report them without taking mu.
type Counter struct {
	value uint64
}

// NewCounter creates a zeroed counter.
func NewCounter() *Counter {
	return &Counter{}
}

// Inc increments the counter by 1 and returns the new value.
func (c *Counter) Inc() uint64 {
	return atomic.AddUint64(&c.value, 1)
}

// Load returns the current value.
func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}
