package finuraws

import (
	"sort"
	"sync"

	"github.com/finura-app/finura-go-presence/finura-ws/status"
)

// Registry maps each identity to its single live, authorized connection.
//
// Status changes are reported to the notifier while the registry lock is
// held, so the order of events for an identity matches the order of its
// admits and evicts. The notifier must not block or call back into the
// registry. The registry never calls into a connection while holding its
// lock; callers close whatever Admit hands back.
type Registry struct {
	notifier status.Notifier

	mu      sync.RWMutex
	entries map[string]*Connection
}

func NewRegistry(notifier status.Notifier) *Registry {
	if notifier == nil {
		notifier = status.Nop{}
	}
	return &Registry{
		notifier: notifier,
		entries:  map[string]*Connection{},
	}
}

// Admit makes c the connection for identity and returns the connection it
// replaced, if any. The newest admit always wins.
func (r *Registry) Admit(identity string, c *Connection) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	prior := r.entries[identity]
	r.entries[identity] = c
	if prior == c {
		return nil
	}
	r.notifier.Notify(identity, true)
	return prior
}

// Evict removes identity only while c is still its registered connection, so a
// superseded connection closing late cannot remove its replacement.
func (r *Registry) Evict(identity string, c *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.entries[identity]; ok && current == c {
		delete(r.entries, identity)
		r.notifier.Notify(identity, false)
		return true
	}
	return false
}

func (r *Registry) Lookup(identity string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[identity]
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Identities returns the connected identities, sorted.
func (r *Registry) Identities() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
