// Package engine is a headless, in-process mapping engine. It models the
// objects a renderer exposes (map surface, view, layers, vector features and a
// geolocation stream) without drawing anything, so the map service can run
// and be tested without a display.
//
// Engine objects are not safe for concurrent use. Callers serialize access,
// normally through the host loop.
package engine

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/OCAP2/mapview/internal/dispatcher"
)

// Event types raised by engine objects.
const (
	EventChange                 = "change"
	EventChangePosition         = "change:position"
	EventChangeAccuracyGeometry = "change:accuracyGeometry"
	EventChangeTracking         = "change:tracking"
	EventChangeSize             = "change:size"
	EventError                  = "error"
	EventMoveStart              = "movestart"
	EventMoveEnd                = "moveend"
)

// Engine creates engine objects that share one event bus.
type Engine struct {
	bus *dispatcher.Dispatcher
	seq atomic.Uint64
}

// New creates an engine on top of the given bus.
func New(bus *dispatcher.Dispatcher) *Engine {
	return &Engine{bus: bus}
}

func (en *Engine) nextID(kind string) string {
	return fmt.Sprintf("%s-%d", kind, en.seq.Add(1))
}

func (en *Engine) observable(kind string) observable {
	return observable{bus: en.bus, scope: en.nextID(kind) + "/"}
}

// observable scopes event types on the shared bus to one engine object.
type observable struct {
	bus   *dispatcher.Dispatcher
	scope string
}

// On registers a handler for one of this object's events. The handler sees
// the unscoped event type.
func (o observable) On(eventType string, fn dispatcher.HandlerFunc, opts ...dispatcher.Option) dispatcher.Key {
	scope := o.scope
	return o.bus.On(scope+eventType, func(e dispatcher.Event) error {
		e.Type = strings.TrimPrefix(e.Type, scope)
		return fn(e)
	}, opts...)
}

// Off removes a handler registered with On.
func (o observable) Off(key dispatcher.Key) {
	o.bus.Off(key)
}

func (o observable) dispatch(eventType string, payload any) error {
	return o.bus.Dispatch(dispatcher.Event{Type: o.scope + eventType, Payload: payload})
}

// notify dispatches a state-change event. Handler failures are logged on the
// bus since the setter that triggered them has no error return.
func (o observable) notify(eventType string, payload any) {
	if err := o.dispatch(eventType, payload); err != nil {
		o.bus.Logger().Error("event handler failed", "event", o.scope+eventType, "error", err)
	}
}
