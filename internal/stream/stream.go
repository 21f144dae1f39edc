// Package stream provides a small typed observable used to fan values out to subscribers.
//
// A Stream remembers the last published value and hands it to every new subscriber,
// the way an auth listener reports the current state as soon as it is registered.
// Deliveries on one stream are serialized: a subscriber never sees two values at once.
package stream

import (
	"sync"
	"sync/atomic"
)

type Stream[T any] struct {
	mu      sync.Mutex
	subs    map[uint64]*Subscription
	fns     map[uint64]func(T)
	nextID  uint64
	current T
	hasLast bool

	// held while callbacks run so deliveries are never interleaved
	deliver sync.Mutex
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id     uint64
	closed atomic.Bool
	cancel func(id uint64)
}

func New[T any]() *Stream[T] {
	return &Stream[T]{
		subs: make(map[uint64]*Subscription),
		fns:  make(map[uint64]func(T)),
	}
}

// Subscribe registers fn and, if a value was already published, delivers it immediately.
func (s *Stream[T]) Subscribe(fn func(T)) *Subscription {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	s.nextID++
	sub := &Subscription{id: s.nextID, cancel: s.remove}
	s.subs[sub.id] = sub
	s.fns[sub.id] = fn
	current, ok := s.current, s.hasLast
	s.mu.Unlock()

	if ok {
		fn(current)
	}
	return sub
}

// Publish records v as the current value and delivers it to every live subscriber.
// It must not be called from inside one of this stream's callbacks.
func (s *Stream[T]) Publish(v T) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	s.current = v
	s.hasLast = true
	type target struct {
		sub *Subscription
		fn  func(T)
	}
	targets := make([]target, 0, len(s.subs))
	for id, sub := range s.subs {
		targets = append(targets, target{sub: sub, fn: s.fns[id]})
	}
	s.mu.Unlock()

	for _, t := range targets {
		if t.sub.closed.Load() {
			continue
		}
		t.fn(v)
	}
}

// Current returns the last published value.
func (s *Stream[T]) Current() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.hasLast
}

// Len reports the number of live subscribers.
func (s *Stream[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Stream[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
	delete(s.fns, id)
}

// Unsubscribe stops deliveries to the subscriber. Safe to call more than once and from
// inside a callback.
func (sub *Subscription) Unsubscribe() {
	if sub == nil || sub.closed.Swap(true) {
		return
	}
	if sub.cancel != nil {
		sub.cancel(sub.id)
	}
}

func (sub *Subscription) Closed() bool {
	return sub == nil || sub.closed.Load()
}
