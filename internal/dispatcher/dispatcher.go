package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Event is a named notification raised by an engine object.
type Event struct {
	Type      string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc reacts to an event.
type HandlerFunc func(Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Key identifies a registered handler so it can be removed again.
type Key struct {
	Type string
	id   uint64
}

type listener struct {
	id      uint64
	handler HandlerFunc
}

// Dispatcher fans events out to every handler registered for their type,
// in registration order.
type Dispatcher struct {
	logger Logger

	// OTEL metrics
	queueSize  metric.Int64ObservableGauge
	dispatched metric.Int64Counter
	dropped    metric.Int64Counter

	mu        sync.RWMutex
	listeners map[string][]listener
	nextID    uint64
	buffers   map[uint64]chan Event
	bufferTyp map[uint64]string
	wg        sync.WaitGroup
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:    logger,
		listeners: make(map[string][]listener),
		buffers:   make(map[uint64]chan Event),
		bufferTyp: make(map[uint64]string),
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"mapview.events.queue.size",
		metric.WithDescription("Current number of events waiting in buffered handlers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for id, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("event", d.bufferTyp[id])))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.dispatched, err = m.Int64Counter(
		"mapview.events.dispatched",
		metric.WithDescription("Total events delivered to handlers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dispatched counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"mapview.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// On registers a handler for the given event type with optional configuration.
func (d *Dispatcher) On(eventType string, h HandlerFunc, opts ...Option) Key {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.mu.Unlock()

	handler := h

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(id, eventType, cfg.bufferSize, cfg.blocking, handler)
	}

	if cfg.logged {
		handler = d.withLogging(eventType, handler)
	}

	d.mu.Lock()
	d.listeners[eventType] = append(d.listeners[eventType], listener{id: id, handler: handler})
	d.mu.Unlock()

	return Key{Type: eventType, id: id}
}

// Off removes a handler. Removing an unknown key is a no-op.
// Off must not run concurrently with Dispatch of the same event type.
func (d *Dispatcher) Off(key Key) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ls := d.listeners[key.Type]
	for i, l := range ls {
		if l.id == key.id {
			d.listeners[key.Type] = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if buf, ok := d.buffers[key.id]; ok {
		close(buf)
		delete(d.buffers, key.id)
		delete(d.bufferTyp, key.id)
	}
}

// Dispatch delivers an event to every handler registered for its type.
// Handler failures and queue drops are joined into the returned error;
// one failing handler does not stop delivery to the rest.
func (d *Dispatcher) Dispatch(e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	d.mu.RLock()
	ls := make([]listener, len(d.listeners[e.Type]))
	copy(ls, d.listeners[e.Type])
	d.mu.RUnlock()

	typeAttr := metric.WithAttributes(attribute.String("event", e.Type))

	var errs []error
	for _, l := range ls {
		if err := l.handler(e); err != nil {
			errs = append(errs, err)
			continue
		}
		d.dispatched.Add(context.Background(), 1, typeAttr)
	}
	return errors.Join(errs...)
}

// Logger returns the logger the bus reports through.
func (d *Dispatcher) Logger() Logger {
	return d.logger
}

// HasHandler returns true if at least one handler is registered for the event type.
func (d *Dispatcher) HasHandler(eventType string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[eventType]) > 0
}

// Close stops all buffered handlers after they drain their queues.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	for id, buf := range d.buffers {
		close(buf)
		delete(d.buffers, id)
		delete(d.bufferTyp, id)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) withBuffer(id uint64, eventType string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)

	d.mu.Lock()
	d.buffers[id] = buffer
	d.bufferTyp[id] = eventType
	d.mu.Unlock()

	typeAttr := attribute.String("event", eventType)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range buffer {
			if err := h(e); err != nil {
				d.logger.Error("buffered handler failed", "event", eventType, "error", err)
			}
		}
	}()

	if blocking {
		return func(e Event) error {
			buffer <- e
			return nil
		}
	}

	return func(e Event) error {
		select {
		case buffer <- e:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(typeAttr))
			return fmt.Errorf("queue full: %s", eventType)
		}
	}
}

func (d *Dispatcher) withLogging(eventType string, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "event", eventType)

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "event", eventType, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "event", eventType, "duration", time.Since(start))
		}

		return err
	}
}
