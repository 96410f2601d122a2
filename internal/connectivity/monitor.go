// Package connectivity answers whether the remote store is reachable and
// notifies subscribers when that changes.
package connectivity

import (
	"sync"
)

// Monitor reports network reachability.
type Monitor interface {
	// IsOnline performs a point-in-time check.
	IsOnline() bool
	// Subscribe registers fn for transitions. fn may also be called again
	// with an unchanged state, so it must be idempotent. The returned
	// function removes the subscription.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// broadcaster fans state changes out to subscribers.
type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(bool)
}

func (b *broadcaster) subscribe(fn func(bool)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = map[int]func(bool){}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
		})
	}
}

// publish calls every subscriber outside the lock.
func (b *broadcaster) publish(online bool) {
	b.mu.Lock()
	fns := make([]func(bool), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Switch is a Monitor whose state is set by hand. Use it in tests and when
// the host application owns connectivity detection.
type Switch struct {
	mu     sync.RWMutex
	online bool
	b      broadcaster
}

var _ Monitor = (*Switch)(nil)

// NewSwitch returns a Switch in the given state.
func NewSwitch(online bool) *Switch {
	return &Switch{online: online}
}

// IsOnline implements Monitor.
func (s *Switch) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// Subscribe implements Monitor.
func (s *Switch) Subscribe(fn func(online bool)) func() {
	return s.b.subscribe(fn)
}

// Set changes the state and notifies subscribers, even when unchanged.
func (s *Switch) Set(online bool) {
	s.mu.Lock()
	s.online = online
	s.mu.Unlock()

	s.b.publish(online)
}

// Subscribers returns the number of active subscriptions.
func (s *Switch) Subscribers() int {
	return s.b.count()
}
