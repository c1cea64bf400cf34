package engine

import "sync"

// CloseSignal fans a single close event out to registered listeners.
// Listeners registered after the close run immediately.
type CloseSignal struct {
	mu     sync.Mutex
	closed bool
	fns    []func()
}

func (c *CloseSignal) OnClose(fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		fn()
		return
	}
	c.fns = append(c.fns, fn)
	c.mu.Unlock()
}

// Fire runs the listeners and reports whether this call closed the signal.
func (c *CloseSignal) Fire() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return true
}

func (c *CloseSignal) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
