// Package lock provides per-key mutual exclusion used to serialize balance
// mutations of a single user. Two implementations are offered: an in-process
// keyed mutex for single-instance deployments and tests, and a Redis lease
// lock (SET NX + token-checked release) for multi-instance deployments.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when a lock could not be acquired before the wait
// deadline (or the caller's context) expired.
var ErrTimeout = errors.New("lock: acquire timed out")

// Locker acquires an exclusive lock on key. The returned release function
// must be called exactly once; it never blocks on a contended key.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// UserKey is the lock key guarding a user's credit balance.
func UserKey(userID string) string { return "credits:user:" + userID }

// KeyedMutex is an in-process Locker. Locks on different keys never contend.
// Entries are reference counted and dropped once no goroutine holds or waits
// on them.
type KeyedMutex struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex returns a KeyedMutex whose Lock gives up after wait. A
// non-positive wait means wait until ctx is done.
func NewKeyedMutex(wait time.Duration) *KeyedMutex {
	return &KeyedMutex{wait: wait, slots: make(map[string]*slot)}
}

// Lock implements Locker.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	s := k.acquireSlot(key)

	if k.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.wait)
		defer cancel()
	}

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		k.releaseSlot(key, s)
		return nil, ErrTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.releaseSlot(key, s)
		})
	}, nil
}

func (k *KeyedMutex) acquireSlot(key string) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *KeyedMutex) releaseSlot(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// size reports the number of live slots.
func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
