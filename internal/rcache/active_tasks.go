package rcache

import "sync/atomic"

// ActiveTaskCounter tracks how many tasks are concurrently running in
// this worker process, feeding the `prerunning` / `active_task_count`
// fields of a crash-statistics record (spec §4.8 "start").
type ActiveTaskCounter struct {
	n atomic.Int64
}

// NewActiveTaskCounter returns a counter starting at zero.
func NewActiveTaskCounter() *ActiveTaskCounter {
	return &ActiveTaskCounter{}
}

// Begin increments the count and returns the new value.
func (c *ActiveTaskCounter) Begin() int {
	return int(c.n.Add(1))
}

// End decrements the count.
func (c *ActiveTaskCounter) End() {
	c.n.Add(-1)
}

// Count returns the current value.
func (c *ActiveTaskCounter) Count() int {
	return int(c.n.Load())
}
