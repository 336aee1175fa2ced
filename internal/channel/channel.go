// Package channel provides generic channel interfaces used for event delivery
// to subscribers and for the host loop's work queue.
package channel

import "context"

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to a channel.
type Sender[T any] interface {
	// Send blocks until the value is accepted.
	Send(T)
	// TrySend delivers without blocking and reports whether it did.
	TrySend(T) bool
	// SendContext blocks until the value is accepted or ctx is done.
	SendContext(context.Context, T) error
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}

// chanOf backs both the buffered and unbuffered flavours.
type chanOf[T any] struct {
	ch chan T
}

// NewBuffered creates a channel holding up to size pending values.
func NewBuffered[T any](size int) Channel[T] {
	if size < 0 {
		size = 0
	}
	return &chanOf[T]{ch: make(chan T, size)}
}

// NewUnbuffered creates a channel where Send blocks until received.
func NewUnbuffered[T any]() Channel[T] {
	return &chanOf[T]{ch: make(chan T)}
}

func (c *chanOf[T]) Send(v T) {
	c.ch <- v
}

func (c *chanOf[T]) TrySend(v T) bool {
	select {
	case c.ch <- v:
		return true
	default:
		return false
	}
}

func (c *chanOf[T]) SendContext(ctx context.Context, v T) error {
	select {
	case c.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *chanOf[T]) Receive() <-chan T {
	return c.ch
}

// Len returns the number of pending values; always 0 when unbuffered.
func (c *chanOf[T]) Len() int {
	return len(c.ch)
}

func (c *chanOf[T]) Close() {
	close(c.ch)
}
