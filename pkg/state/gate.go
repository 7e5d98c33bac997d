package state

import "sync"

// Gate serializes work per key. Acquirers for the same key run strictly in
// arrival order; different keys never wait on each other. The per-key entry
// is dropped as soon as the last holder releases, so the map stays small
// under steady traffic.
type Gate struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func NewGate() *Gate {
	return &Gate{tails: make(map[string]chan struct{})}
}

// Acquire blocks until every earlier acquirer for key has released, then
// returns the release function. Release must be called exactly once; calling
// it again is a no-op.
func (g *Gate) Acquire(key string) (release func()) {
	own := make(chan struct{})

	g.mu.Lock()
	prev := g.tails[key]
	g.tails[key] = own
	g.mu.Unlock()

	if prev != nil {
		<-prev
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			close(own)
			g.mu.Lock()
			if g.tails[key] == own {
				delete(g.tails, key)
			}
			g.mu.Unlock()
		})
	}
}

// Do runs fn while holding the key. The gate releases even when fn panics,
// so one broken operation cannot wedge every later caller for that key.
func (g *Gate) Do(key string, fn func() error) error {
	release := g.Acquire(key)
	defer release()
	return fn()
}

// Len reports how many keys currently have a holder or waiters.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tails)
}
