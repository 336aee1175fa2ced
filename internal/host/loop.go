// Package host stands in for the UI shell around the map service. It runs
// every service call and engine event on a single loop goroutine and exposes
// the service to clients over HTTP and websocket.
package host

import (
	"context"
	"errors"

	"github.com/OCAP2/mapview/internal/channel"
)

// ErrLoopStopped is returned when work is posted to a loop that has stopped.
var ErrLoopStopped = errors.New("host loop stopped")

// DefaultQueueSize is the number of pending tasks a loop buffers.
const DefaultQueueSize = 256

// Loop runs posted functions one at a time, in posting order.
type Loop struct {
	queue   channel.Channel[func()]
	stopped context.Context
	stop    context.CancelFunc
}

// NewLoop creates a loop with the given queue size.
func NewLoop(size int) *Loop {
	if size <= 0 {
		size = DefaultQueueSize
	}
	stopped, stop := context.WithCancel(context.Background())
	return &Loop{
		queue:   channel.New[func()](size),
		stopped: stopped,
		stop:    stop,
	}
}

// Run executes tasks until ctx is cancelled. Tasks still queued are dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.queue.Receive():
			fn()
		}
	}
}

// Do posts fn without waiting for it to run. It blocks while the queue is
// full and must not be called from inside a task.
func (l *Loop) Do(fn func()) error {
	if l.stopped.Err() != nil {
		return ErrLoopStopped
	}
	if err := l.queue.SendContext(l.stopped, fn); err != nil {
		return ErrLoopStopped
	}
	return nil
}

// Call posts fn and waits for its result.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if err := l.Do(func() { result <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped.Done():
		return ErrLoopStopped
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.stopped.Done()
}
