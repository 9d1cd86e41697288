// Package locks provides non-blocking key locks used to keep at most one save
// in flight per template.
package locks

import (
	"context"
	"errors"
	"sync"
)

// ErrHeld is returned by Acquire when the key is already locked.
var ErrHeld = errors.New("lock is held")

// Guard hands out exclusive, non-blocking locks on string keys.
type Guard interface {
	// Acquire locks key or fails with ErrHeld. The returned release func must
	// be called exactly once; defer it to release on panics as well.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// TemplateKey is the lock every writer of template id takes.
func TemplateKey(id string) string {
	return "template:" + id
}

// MemoryGuard keeps locks in a sync.Map and is local to the process.
type MemoryGuard struct {
	held sync.Map
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string) (func(), error) {
	acquired, ok := AcquireLocks(&g.held, []string{key})
	if !ok {
		return nil, ErrHeld
	}
	return func() { ReleaseLocks(&g.held, acquired) }, nil
}

// Held reports whether key is currently locked.
func (g *MemoryGuard) Held(key string) bool {
	_, ok := g.held.Load(key)
	return ok
}

// AcquireLocks locks all keys or none. On conflict the keys locked so far are
// rolled back and false is returned.
func AcquireLocks(lockStore *sync.Map, keys []string) ([]string, bool) {
	var acquired []string
	for _, key := range keys {
		if _, loaded := lockStore.LoadOrStore(key, struct{}{}); loaded {
			ReleaseLocks(lockStore, acquired)
			return nil, false
		}
		acquired = append(acquired, key)
	}
	return acquired, true
}

func ReleaseLocks(lockStore *sync.Map, keys []string) {
	for _, key := range keys {
		lockStore.Delete(key)
	}
}
