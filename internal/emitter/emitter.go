// Package emitter provides typed fan-out of host-facing notifications.
//
// Every subscriber receives every emission in emission order. Callback
// subscribers run synchronously inside Emit, in subscription order. Channel
// subscribers are buffered; when a channel subscriber falls behind by more
// than its buffer, further values are dropped for that subscriber only and
// counted in Dropped.
package emitter

import (
	"sync"
	"sync/atomic"

	"github.com/OCAP2/mapview/internal/channel"
)

type subscriber[T any] struct {
	id int
	fn func(T)
	ch channel.Channel[T]
}

// Emitter broadcasts values of type T.
type Emitter[T any] struct {
	name string

	mu     sync.RWMutex
	subs   []subscriber[T]
	nextID int

	dropped atomic.Uint64
}

// New creates an emitter. The name is used in logs and on the wire.
func New[T any](name string) *Emitter[T] {
	return &Emitter[T]{name: name}
}

// Name returns the emitter name.
func (e *Emitter[T]) Name() string {
	return e.name
}

// Subscribe registers a callback and returns a function that removes it.
func (e *Emitter[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscriber[T]{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

// Channel registers a channel subscriber with the given buffer.
// The returned cancel function closes the channel.
func (e *Emitter[T]) Channel(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := channel.NewBuffered[T](buffer)

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscriber[T]{id: id, ch: ch})
	e.mu.Unlock()

	var once sync.Once
	return ch.Receive(), func() {
		once.Do(func() { e.remove(id) })
	}
}

// Emit delivers v to all current subscribers.
func (e *Emitter[T]) Emit(v T) {
	e.mu.RLock()
	callbacks := make([]func(T), 0, len(e.subs))
	for _, s := range e.subs {
		if s.fn != nil {
			callbacks = append(callbacks, s.fn)
		}
	}
	// Channel sends stay under the read lock so remove cannot close a
	// channel mid-send.
	for _, s := range e.subs {
		if s.ch != nil && !s.ch.TrySend(v) {
			e.dropped.Add(1)
		}
	}
	e.mu.RUnlock()

	for _, fn := range callbacks {
		fn(v)
	}
}

// Len returns the number of subscribers.
func (e *Emitter[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}

// Dropped returns how many deliveries to slow channel subscribers were skipped.
func (e *Emitter[T]) Dropped() uint64 {
	return e.dropped.Load()
}

// Close removes every subscriber and closes their channels.
func (e *Emitter[T]) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.subs {
		if s.ch != nil {
			s.ch.Close()
		}
	}
	e.subs = nil
}

func (e *Emitter[T]) remove(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s.id == id {
			if s.ch != nil {
				s.ch.Close()
			}
			e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
			return
		}
	}
}
