package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
)

// osStdout is swapped in tests.
var osStdout io.Writer = os.Stdout

// SlogManager manages slog-based logging with an optional Graylog sink.
type SlogManager struct {
	logger *slog.Logger

	// provider supplies attributes stamped on every record
	provider atomic.Pointer[ContextProvider]
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the logging system. Records go to file when given,
// stdout otherwise, and additionally to graylog as JSON when it is non-nil.
func (m *SlogManager) Setup(file io.Writer, level string, graylog io.Writer) {
	lvl := parseLevel(level)

	// Common handler options with RFC3339 time formatting
	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler

	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(osStdout, handlerOpts))
	}

	if graylog != nil {
		handlers = append(handlers, slog.NewJSONHandler(graylog, handlerOpts))
	}

	m.logger = slog.New(NewContextHandler(NewMultiHandler(handlers...), m.contextAttrs))
	m.logger.Info("Logging initialized", "level", level)
}

// SetContextProvider registers the source of per-record attributes.
// It may be called after Setup; nil removes the provider.
func (m *SlogManager) SetContextProvider(p ContextProvider) {
	if p == nil {
		m.provider.Store(nil)
		return
	}
	m.provider.Store(&p)
}

func (m *SlogManager) contextAttrs() []slog.Attr {
	p := m.provider.Load()
	if p == nil {
		return nil
	}
	return (*p)()
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// NewGraylogWriter connects a GELF UDP writer to addr.
func NewGraylogWriter(addr, facility string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, err
	}
	w.Facility = facility
	return w, nil
}
