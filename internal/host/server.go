package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/OCAP2/mapview/internal/geo"
	"github.com/OCAP2/mapview/internal/logging"
	"github.com/OCAP2/mapview/internal/mapview"
	"github.com/OCAP2/mapview/pkg/core"
	"github.com/OCAP2/mapview/pkg/streaming"
)

const (
	sendChSize  = 256
	writeWait   = 10 * time.Second
	callTimeout = 5 * time.Second
)

// ServerOptions configures the host server.
type ServerOptions struct {
	// FollowPosition re-centers the view on every emitted position.
	FollowPosition bool
}

// Server exposes the map service over HTTP and websocket. Every service call
// runs on the loop.
type Server struct {
	loop     *Loop
	svc      *mapview.Service
	viewport *Viewport
	opts     ServerOptions
	logger   *slog.Logger
	upgrader ws.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	unsubscribe []func()
}

// NewServer subscribes to the service emitters. svc must be initialized.
func NewServer(loop *Loop, svc *mapview.Service, viewport *Viewport, opts ServerOptions, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		loop:     loop,
		svc:      svc,
		viewport: viewport,
		opts:     opts,
		logger:   logger.With("component", "host"),
		upgrader: ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*client]struct{}),
	}

	s.unsubscribe = append(s.unsubscribe,
		svc.GeolocationChange.Subscribe(func(r core.MeasurementResult) {
			s.broadcast(streaming.TypeGeolocationChange, r)
		}),
		svc.GeolocationError.Subscribe(func(msg string) {
			s.broadcast(streaming.TypeGeolocationError, streaming.GeolocationErrorPayload{Message: msg})
		}),
		svc.GeolocationPosition.Subscribe(func(p core.Position) {
			s.broadcast(streaming.TypeGeolocationPosition, p)
			if s.opts.FollowPosition {
				if err := svc.MoveTo(p); err != nil {
					s.logger.Warn("follow position failed", "error", err)
				}
			}
		}),
		svc.MapMoveStart.Subscribe(func(struct{}) {
			s.broadcast(streaming.TypeMapMoveStart, nil)
		}),
		svc.ViewChange.Subscribe(func(v core.ViewState) {
			s.broadcast(streaming.TypeViewState, v)
		}),
	)
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /view", s.handleView)
	mux.HandleFunc("GET /status", s.handleStatus)
	return mux
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close unsubscribes from the service and disconnects every client.
func (s *Server) Close() {
	for _, unsub := range s.unsubscribe {
		unsub()
	}
	s.unsubscribe = nil

	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

func (s *Server) broadcast(msgType string, payload any) {
	env, err := streaming.NewEnvelope(msgType, payload)
	if err != nil {
		s.logger.Error("encoding broadcast failed", "type", msgType, "error", err)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("encoding broadcast failed", "type", msgType, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.send(data)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn, s.logger)
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	ctx := logging.WithContextAttrs(r.Context(), slog.String("remote", r.RemoteAddr))
	s.logger.InfoContext(ctx, "client connected")

	go c.writeLoop()
	s.readLoop(ctx, c)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
	s.logger.InfoContext(ctx, "client disconnected")
}

// readLoop handles client commands until the connection fails.
func (s *Server) readLoop(ctx context.Context, c *client) {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				s.logger.DebugContext(ctx, "websocket read stopped", "error", err)
			}
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.reply(streaming.TypeError, streaming.ErrorPayload{Message: "invalid envelope"})
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		err = s.loop.Call(callCtx, func() error { return s.command(env) })
		cancel()
		if err != nil {
			s.logger.WarnContext(ctx, "command failed", "type", env.Type, "error", err)
			c.reply(streaming.TypeError, streaming.ErrorPayload{For: env.Type, Message: err.Error()})
			continue
		}
		c.replyRaw(streaming.AckMessage{Type: "ack", For: env.Type})
	}
}

// command runs on the loop.
func (s *Server) command(env streaming.Envelope) error {
	switch env.Type {
	case streaming.TypeZoomIn:
		return s.svc.ZoomIn()
	case streaming.TypeZoomOut:
		return s.svc.ZoomOut()
	case streaming.TypeMoveTo:
		var p streaming.MoveToPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		pos := core.Position{X: p.X, Y: p.Y}
		if p.Coords != "" {
			parsed, err := geo.PositionFromString(p.Coords)
			if err != nil {
				return fmt.Errorf("%s: %w", env.Type, err)
			}
			pos = parsed
		}
		return s.svc.MoveTo(pos)
	case streaming.TypeEnableGeolocation:
		var p streaming.EnableGeolocationPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		return s.svc.EnableGeolocation(p.Enabled)
	case streaming.TypeResize:
		var p streaming.ResizePayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		s.viewport.SetSize(p.Width, p.Height)
		return s.svc.Resize()
	default:
		return fmt.Errorf("unknown command %q", env.Type)
	}
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	var resp streaming.ViewResponse
	err := s.loop.Call(r.Context(), func() error {
		state, err := s.svc.View()
		if err != nil {
			return err
		}
		resp.View = state

		extent, err := s.svc.Extent()
		if err != nil {
			// the view is still useful without an extent
			resp.Error = err.Error()
			return nil
		}
		resp.Extent = &extent
		resp.Polygon, err = s.svc.ExtentPolygon()
		if err != nil {
			return err
		}
		resp.Ring, err = s.svc.ExtentRing()
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp streaming.StatusResponse
	err := s.loop.Call(r.Context(), func() error {
		resp.Tracking = s.svc.TrackingState()
		resp.Marker = s.svc.MarkerState()
		resp.Layers = s.svc.RenderedLayers()
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, mapview.ErrNotInitialized) || errors.Is(err, ErrLoopStopped) {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("writing response failed", "error", err)
	}
}

// client owns one websocket connection with a single write goroutine.
type client struct {
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newClient(conn *ws.Conn, logger *slog.Logger) *client {
	return &client{
		conn:   conn,
		sendCh: make(chan []byte, sendChSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// send queues data for the write loop. Non-blocking; drops if the queue is full.
func (c *client) send(data []byte) {
	select {
	case c.sendCh <- data:
	default:
		c.logger.Warn("client send queue full, dropping message")
	}
}

func (c *client) reply(msgType string, payload any) {
	env, err := streaming.NewEnvelope(msgType, payload)
	if err != nil {
		return
	}
	c.replyRaw(env)
}

func (c *client) replyRaw(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.send(data)
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("websocket SetWriteDeadline error", "error", err)
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("websocket write error", "error", err)
				return
			}
		}
	}
}

// close sends a close frame and shuts the connection down.
func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = c.conn.Close()
	})
}
