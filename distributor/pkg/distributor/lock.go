package distributor

import (
	"sync"

	"github.com/gagliardetto/solana-go"
)

// keyedMutex serializes operations per key. Entries are reference
// counted and removed once the last holder releases, so the map stays
// bounded by the number of in-flight operations.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[solana.PublicKey]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[solana.PublicKey]*lockEntry)}
}

// lock acquires the mutex for key and returns its release func.
func (k *keyedMutex) lock(key solana.PublicKey) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
