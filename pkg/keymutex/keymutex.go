package keymutex

import "sync"

// KeyMutex provides a mutex per string key. Entries are reference counted
// and removed once the last holder unlocks, so the map does not grow with
// the keyspace.
type KeyMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func New() *KeyMutex {
	return &KeyMutex{entries: make(map[string]*entry)}
}

// Lock acquires the mutex for key, blocking until it is available.
func (km *KeyMutex) Lock(key string) {
	km.mu.Lock()
	e, ok := km.entries[key]
	if !ok {
		e = &entry{}
		km.entries[key] = e
	}
	e.refs++
	km.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for key. Unlocking a key that was never locked
// is a programming error and panics, same as sync.Mutex.
func (km *KeyMutex) Unlock(key string) {
	km.mu.Lock()
	e, ok := km.entries[key]
	if !ok {
		km.mu.Unlock()
		panic("keymutex: unlock of unlocked key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(km.entries, key)
	}
	km.mu.Unlock()

	e.mu.Unlock()
}
