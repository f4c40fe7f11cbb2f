// Package lock serializes audit-chain appends per tenant scope. Two appends
// racing on the same scope would both read the same head hash and fork the
// chain, so every append holds the scope lock across its read-latest +
// insert window. Cross-scope appends proceed in parallel.
package lock

import (
	"context"
	"sync"
)

// ScopeLocker grants exclusive ownership of a scope. The returned release
// function must be called exactly once.
type ScopeLocker interface {
	Acquire(ctx context.Context, scope string) (release func(), err error)
}

type scopeLock struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex is an in-process ScopeLocker: one mutex per active scope,
// reclaimed when the last holder releases.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*scopeLock
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*scopeLock)}
}

// Acquire blocks until the scope is exclusively held. The context is checked
// before waiting; the critical sections guarded here are single store
// round-trips, so a held lock never outlives a request by much.
func (k *KeyedMutex) Acquire(ctx context.Context, scope string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	l := k.locks[scope]
	if l == nil {
		l = &scopeLock{}
		k.locks[scope] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Unlock()
			k.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(k.locks, scope)
			}
			k.mu.Unlock()
		})
	}
	return release, nil
}
