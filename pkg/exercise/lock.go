package exercise

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// keyedMutex hands out one mutex per exercise id. Entries are never
// removed.
type keyedMutex struct {
	mus *xsync.MapOf[int64, *sync.Mutex]
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{mus: xsync.NewMapOf[int64, *sync.Mutex]()}
}

// Lock blocks until the mutex for key is held and returns its unlock func.
func (k *keyedMutex) Lock(key int64) func() {
	mu, _ := k.mus.LoadOrCompute(key, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	return mu.Unlock
}
