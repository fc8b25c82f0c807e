package service

import (
	"sync"

	"github.com/google/uuid"
)

// keyedRWMutex hands out one RWMutex per attempt and forgets it once no
// goroutine holds or waits on it.
type keyedRWMutex struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*keyedEntry
}

type keyedEntry struct {
	sync.RWMutex
	refs int
}

func newKeyedRWMutex() *keyedRWMutex {
	return &keyedRWMutex{entries: make(map[uuid.UUID]*keyedEntry)}
}

func (k *keyedRWMutex) acquire(id uuid.UUID) *keyedEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[id]
	if !ok {
		e = &keyedEntry{}
		k.entries[id] = e
	}
	e.refs++
	return e
}

func (k *keyedRWMutex) release(id uuid.UUID, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, id)
	}
}

// Lock takes the exclusive side and returns its unlock func.
func (k *keyedRWMutex) Lock(id uuid.UUID) func() {
	e := k.acquire(id)
	e.Lock()
	return func() {
		e.Unlock()
		k.release(id, e)
	}
}

// RLock takes the shared side and returns its unlock func.
func (k *keyedRWMutex) RLock(id uuid.UUID) func() {
	e := k.acquire(id)
	e.RLock()
	return func() {
		e.RUnlock()
		k.release(id, e)
	}
}

func (k *keyedRWMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
