package loopback

import "sync"

// Gate holds CreateTransport calls until released. A held call does not
// observe its context, like an engine running in another process.
type Gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// HoldTransports installs a gate for the following CreateTransport calls.
func (e *Engine) HoldTransports() *Gate {
	g := &Gate{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
	e.mu.Lock()
	e.gate = g
	e.mu.Unlock()
	return g
}

// Entered receives once per call that reached the gate.
func (g *Gate) Entered() <-chan struct{} { return g.entered }

func (g *Gate) Release() {
	g.once.Do(func() { close(g.release) })
}

func (e *Engine) wait() {
	e.mu.Lock()
	g := e.gate
	e.mu.Unlock()
	if g == nil {
		return
	}
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
}
