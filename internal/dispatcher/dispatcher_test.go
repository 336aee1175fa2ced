package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	t.Cleanup(d.Close)

	return d, logger
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.On("change", func(e Event) error {
		got = e
		return nil
	})

	err := d.Dispatch(Event{Type: "change", Payload: 42})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if got.Payload != 42 {
		t.Errorf("expected payload 42, got %v", got.Payload)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected timestamp to be filled in")
	}
}

func TestDispatcher_NoHandlers(t *testing.T) {
	d, _ := newTestDispatcher(t)

	if err := d.Dispatch(Event{Type: "nobody-listens"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDispatcher_MultipleHandlersInOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var order []string
	d.On("change:position", func(e Event) error {
		order = append(order, "first")
		return nil
	})
	d.On("change:position", func(e Event) error {
		order = append(order, "second")
		return nil
	})
	d.On("change", func(e Event) error {
		order = append(order, "other")
		return nil
	})

	_ = d.Dispatch(Event{Type: "change:position"})
	_ = d.Dispatch(Event{Type: "change:position"})

	expected := []string{"first", "second", "first", "second"}
	if strings.Join(order, ",") != strings.Join(expected, ",") {
		t.Errorf("expected %v, got %v", expected, order)
	}
}

func TestDispatcher_FailingHandlerDoesNotStopOthers(t *testing.T) {
	d, _ := newTestDispatcher(t)

	boom := errors.New("boom")
	called := false
	d.On("error", func(e Event) error { return boom })
	d.On("error", func(e Event) error {
		called = true
		return nil
	})

	err := d.Dispatch(Event{Type: "error"})

	if !errors.Is(err, boom) {
		t.Errorf("expected joined error to contain boom, got %v", err)
	}
	if !called {
		t.Error("second handler was not called")
	}
}

func TestDispatcher_Off(t *testing.T) {
	d, _ := newTestDispatcher(t)

	calls := 0
	key := d.On("change", func(e Event) error {
		calls++
		return nil
	})

	_ = d.Dispatch(Event{Type: "change"})
	d.Off(key)
	_ = d.Dispatch(Event{Type: "change"})

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if d.HasHandler("change") {
		t.Error("expected no handler after Off")
	}

	// unknown key is a no-op
	d.Off(Key{Type: "change"})
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d.On("change", func(e Event) error {
		processed.Add(1)
		wg.Done()
		return nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		if err := d.Dispatch(Event{Type: "change"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}

	wg.Wait()

	if processed.Load() != 3 {
		t.Errorf("expected 3 processed, got %d", processed.Load())
	}
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.On("full", func(e Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, Buffered(2))

	_ = d.Dispatch(Event{Type: "full"}) // being processed
	<-started
	_ = d.Dispatch(Event{Type: "full"}) // queued
	_ = d.Dispatch(Event{Type: "full"}) // queued

	err := d.Dispatch(Event{Type: "full"})

	if err == nil {
		t.Error("expected error when queue is full")
	}

	close(block)
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.On("blocking", func(e Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, Buffered(1), Blocking())

	_ = d.Dispatch(Event{Type: "blocking"})
	<-started
	_ = d.Dispatch(Event{Type: "blocking"})

	done := make(chan struct{})
	go func() {
		_ = d.Dispatch(Event{Type: "blocking"})
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
		// Expected - dispatch is blocking
	}

	close(block)
	<-done
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.On("change", func(e Event) error { return nil }, Logged())

	_ = d.Dispatch(Event{Type: "change"})

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if len(logger.messages) < 2 {
		t.Errorf("expected at least 2 log messages, got %d", len(logger.messages))
	}
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.On("error", func(e Event) error {
		return fmt.Errorf("test error")
	}, Logged())

	_ = d.Dispatch(Event{Type: "error"})

	logger.mu.Lock()
	defer logger.mu.Unlock()

	hasError := false
	for _, msg := range logger.messages {
		if strings.HasPrefix(msg, "ERROR") {
			hasError = true
			break
		}
	}

	if !hasError {
		t.Error("expected error log message")
	}
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.On("change", func(e Event) error { return nil })

	if !d.HasHandler("change") {
		t.Error("expected handler to exist")
	}

	if d.HasHandler("moveend") {
		t.Error("expected handler to not exist")
	}
}
