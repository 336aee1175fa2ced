package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/OCAP2/mapview/internal/config"
	"github.com/OCAP2/mapview/internal/dispatcher"
	"github.com/OCAP2/mapview/internal/geo"
	"github.com/OCAP2/mapview/internal/gps"
	"github.com/OCAP2/mapview/internal/host"
	"github.com/OCAP2/mapview/internal/logging"
	"github.com/OCAP2/mapview/internal/mapview"
	"github.com/OCAP2/mapview/internal/marker"
	"github.com/OCAP2/mapview/pkg/core"
)

// app holds everything a command needs. The service is initialized but the
// loop is not running yet.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	bus      *dispatcher.Dispatcher
	svc      *mapview.Service
	loop     *host.Loop
	viewport *host.Viewport
	provider gps.Provider

	closers []io.Closer
}

func newApp() (*app, error) {
	cfg, err := config.Get()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}
	sessionStart := time.Now()

	if err := os.MkdirAll(cfg.LogsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}
	logFile, err := os.OpenFile(logging.LogFilePath(cfg.LogsDir, AppName, sessionStart), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	a.closers = append(a.closers, logFile)

	var graylog io.Writer
	if cfg.Graylog.Enabled {
		gw, err := logging.NewGraylogWriter(cfg.Graylog.Address, AppName)
		if err != nil {
			a.Close()
			return nil, err
		}
		graylog = gw
		a.closers = append(a.closers, gw)
	}

	logs := logging.NewSlogManager()
	logs.Setup(io.MultiWriter(logFile, os.Stdout), cfg.LogLevel, graylog)
	logs.SetContextProvider(func() []slog.Attr {
		return []slog.Attr{
			slog.String("version", Version),
			slog.Duration("uptime", time.Since(sessionStart).Round(time.Second)),
		}
	})
	a.logger = logs.Logger()
	a.logger.Info("starting", "version", Version, "buildDate", BuildDate, "gps", cfg.GPS.Source)

	a.bus, err = dispatcher.New(logging.NewBusLogger(logFile, cfg.LogLevel))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating event bus: %w", err)
	}

	opts, err := serviceOptions(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	center, err := initialCenter(startCenter, opts.Projection)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.svc = mapview.New(a.bus, opts, a.logger)
	a.loop = host.NewLoop(host.DefaultQueueSize)
	a.viewport = host.NewViewport(cfg.Host.Width, cfg.Host.Height)
	if err := a.svc.Init(a.viewport, center, core.None[float64]()); err != nil {
		a.Close()
		return nil, fmt.Errorf("initializing map: %w", err)
	}

	a.provider = newProvider(cfg.GPS, a.logger)
	return a, nil
}

// initialCenter parses a lon,lat override into the view projection. An
// empty override leaves the configured default in place.
func initialCenter(coords string, projection int) (core.Optional[core.Position], error) {
	if coords == "" {
		return core.None[core.Position](), nil
	}
	pos, err := geo.PositionFromString(coords)
	if err != nil {
		return core.None[core.Position](), fmt.Errorf("parsing center %q: %w", coords, err)
	}
	return core.Some(geo.Transformer(geo.EPSG4326, projection)(pos)), nil
}

// serviceOptions maps the config onto the service. The configured default
// center is longitude/latitude and is projected into the view projection.
func serviceOptions(cfg config.Config) (mapview.Options, error) {
	projection, err := geo.ProjectionCode(cfg.Map.Projection)
	if err != nil {
		return mapview.Options{}, err
	}
	toView := geo.Transformer(geo.EPSG4326, projection)

	style := marker.CircleStyle()
	if cfg.Marker.Style == "icon" {
		style = marker.IconStyle(cfg.Marker.Icon)
	}

	return mapview.Options{
		DefaultCenter: toView(core.Position{X: cfg.Map.DefaultCenter[0], Y: cfg.Map.DefaultCenter[1]}),
		DefaultZoom:   cfg.Map.DefaultZoom,
		MinZoom:       cfg.Map.MinZoom,
		MaxZoom:       cfg.Map.MaxZoom,
		Projection:    projection,
		ZoomDuration:  cfg.Map.ZoomDuration,
		TileURL:       cfg.Map.TileURL,

		MarkerStyle:               style,
		ShowAccuracy:              cfg.Marker.ShowAccuracy,
		VisibilityFollowsTracking: cfg.Marker.VisibilityFollowsTracking,
		RotateWithHeading:         cfg.Marker.RotateWithHeading,

		EmitMoveStart:     cfg.Events.EmitMoveStart,
		ViewQueueSize:     cfg.Events.ViewQueueSize,
		ViewQueueBlocking: cfg.Events.ViewQueueBlocking,
	}, nil
}

func newProvider(cfg config.GPSConfig, logger *slog.Logger) gps.Provider {
	if cfg.Source == "gpsd" {
		return &gps.GPSD{Addr: cfg.GpsdAddr, Logger: logger}
	}
	return &gps.Simulator{
		CenterLon: cfg.Sim.CenterLon,
		CenterLat: cfg.Sim.CenterLat,
		RadiusM:   cfg.Sim.RadiusM,
		Period:    cfg.Sim.Period,
		Interval:  cfg.Sim.Interval,
		Accuracy:  5,
		Logger:    logger,
	}
}

func (a *app) runProvider(ctx context.Context) {
	sink := host.NewLocationSink(a.loop, a.svc.Geolocation(), a.logger)
	if err := a.provider.Run(ctx, sink); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		a.logger.Error("location provider stopped", "error", err)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	if a.svc != nil {
		a.svc.Close()
	}
	if a.bus != nil {
		a.bus.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}
