// Package keylock provides per-key mutual exclusion: operations on the same
// key serialize, operations on different keys proceed independently. Callers
// must never hold two keys at once; there is no ordering protocol for nested
// acquisition.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyLock is a set of mutexes addressed by string key. Lock entries are
// created on demand and removed once the last holder releases them, so an
// idle KeyLock holds no per-key state.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New returns an empty KeyLock.
func New() *KeyLock {
	return &KeyLock{locks: make(map[string]*entry)}
}

// Lock acquires the mutex for key, blocking until it is available.
func (k *KeyLock) Lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for key. Unlocking a key that is not held panics,
// matching sync.Mutex semantics.
func (k *KeyLock) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		panic("keylock: unlock of unheld key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}
