package signaling

import "sync"

// registry maintains the id → peer route table of connected peers.
type registry struct {
	mu         sync.Mutex
	routeTable map[string]*peer
}

func newRegistry() *registry {
	return &registry{routeTable: make(map[string]*peer)}
}

// register stores p under its id. It fails when the id is already held.
func (r *registry) register(p *peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routeTable[p.id]; exists {
		return false
	}
	r.routeTable[p.id] = p
	return true
}

// unregister removes p, and only p: a newer peer with the same id is kept.
func (r *registry) unregister(p *peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.routeTable[p.id] == p {
		delete(r.routeTable, p.id)
	}
}

// route looks up the peer registered under id.
func (r *registry) route(id string) (*peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.routeTable[id]
	return p, ok
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.routeTable)
}
