package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/OCAP2/mapview/internal/config"
	"github.com/OCAP2/mapview/internal/host"
	"github.com/OCAP2/mapview/internal/monitor"
)

// BuildDate and Version can be set at build time via ldflags
var (
	Version   = "0.0.1"
	BuildDate = "unknown"

	AppName = "mapview"
)

var (
	configDir        string
	simulateDuration time.Duration
	enableOnStart    bool
	startCenter      string
)

var rootCmd = &cobra.Command{
	Use:     AppName,
	Short:   "Headless map view with live geolocation tracking",
	Long:    `Runs the map view service against a simulated track or a gpsd daemon and exposes it to a host shell.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Load(configDir)
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the map view over HTTP and websocket",
	RunE:  runServe,
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Track the configured provider and log every emission",
	RunE:  runSimulate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "Directory containing "+config.FileName)
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level")
	_ = viper.BindPFlag("logLevel", rootCmd.PersistentFlags().Lookup("log-level"))
	rootCmd.PersistentFlags().StringVar(&startCenter, "center", "", "Initial view center as lon,lat")

	serveCmd.Flags().BoolVar(&enableOnStart, "track", false, "Enable geolocation tracking on startup")
	serveCmd.Flags().String("listen", "", "Override the configured listen address")
	_ = viper.BindPFlag("host.listen", serveCmd.Flags().Lookup("listen"))

	simulateCmd.Flags().DurationVarP(&simulateDuration, "duration", "d", 30*time.Second, "How long to track before exiting")

	rootCmd.AddCommand(serveCmd, simulateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	go func() {
		if err := a.loop.Run(ctx); err != nil {
			a.logger.Error("host loop stopped", "error", err)
		}
	}()

	srv := host.NewServer(a.loop, a.svc, a.viewport, host.ServerOptions{
		FollowPosition: a.cfg.Host.FollowPosition,
	}, a.logger)
	defer srv.Close()

	if enableOnStart {
		if err := a.loop.Call(ctx, func() error { return a.svc.EnableGeolocation(true) }); err != nil {
			return fmt.Errorf("enabling geolocation: %w", err)
		}
	}

	if a.cfg.Host.StatusFile != "" {
		mon := monitor.NewService(monitor.Dependencies{
			Loop:       a.loop,
			Service:    a.svc,
			Clients:    srv.Clients,
			StatusPath: filepath.Join(a.cfg.LogsDir, a.cfg.Host.StatusFile),
			Logger:     a.logger,
		})
		if err := mon.Start(); err != nil {
			a.logger.Warn("status monitor disabled", "error", err)
		} else {
			defer mon.Stop()
		}
	}

	go a.runProvider(ctx)

	httpServer := &http.Server{
		Addr:              a.cfg.Host.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}
	a.logger.Info("stopped")
	return nil
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), simulateDuration)
	defer cancel()

	go func() {
		if err := a.loop.Run(ctx); err != nil {
			a.logger.Error("host loop stopped", "error", err)
		}
	}()

	changes, stopChanges := a.svc.GeolocationChange.Channel(16)
	defer stopChanges()
	positions, stopPositions := a.svc.GeolocationPosition.Channel(16)
	defer stopPositions()
	failures, stopFailures := a.svc.GeolocationError.Channel(16)
	defer stopFailures()

	if err := a.loop.Call(ctx, func() error { return a.svc.EnableGeolocation(true) }); err != nil {
		return fmt.Errorf("enabling geolocation: %w", err)
	}
	go a.runProvider(ctx)

	var fixes int
	for {
		select {
		case r := <-changes:
			fixes++
			a.logger.Info("geolocation change",
				"accuracy", r.Accuracy,
				"altitude", r.Altitude,
				"heading", r.Heading,
				"speed", r.Speed,
			)
		case p := <-positions:
			a.logger.Debug("geolocation position", "x", p.X, "y", p.Y)
		case msg := <-failures:
			a.logger.Warn("geolocation error", "message", msg)
		case <-ctx.Done():
			<-a.loop.Done()
			a.logger.Info("simulation finished", "fixes", fixes, "views", a.svc.ViewChanges(), "marker", a.svc.MarkerState())
			return nil
		}
	}
}
