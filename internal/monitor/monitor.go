// Package monitor periodically snapshots the map service state into a
// status file so operators can inspect a running host without connecting.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/OCAP2/mapview/internal/host"
	"github.com/OCAP2/mapview/internal/mapview"
	"github.com/OCAP2/mapview/pkg/core"
)

// DefaultInterval between status snapshots.
const DefaultInterval = time.Second

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Loop       *host.Loop
	Service    *mapview.Service
	Clients    func() int
	StatusPath string
	Interval   time.Duration
	Logger     *slog.Logger
}

// Status is one snapshot of the running service.
type Status struct {
	Time        time.Time          `json:"time"`
	View        core.ViewState     `json:"view"`
	Tracking    core.TrackingState `json:"tracking"`
	Marker      core.MarkerState   `json:"marker"`
	LastFix     time.Time          `json:"lastFix"`
	Clients     int                `json:"clients"`
	ViewChanges uint64             `json:"viewChanges"`
	Dropped     uint64             `json:"dropped"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot reads the current status on the host loop.
func (s *Service) Snapshot(ctx context.Context) (Status, error) {
	var st Status
	err := s.deps.Loop.Call(ctx, func() error {
		view, err := s.deps.Service.View()
		if err != nil {
			return err
		}
		st.View = view
		st.Tracking = s.deps.Service.TrackingState()
		st.Marker = s.deps.Service.MarkerState()
		st.LastFix = s.deps.Service.Geolocation().LastFixTime()
		return nil
	})
	if err != nil {
		return Status{}, fmt.Errorf("reading status: %w", err)
	}
	st.Time = time.Now().UTC()
	st.ViewChanges = s.deps.Service.ViewChanges()
	st.Dropped = s.deps.Service.DroppedEmissions()
	if s.deps.Clients != nil {
		st.Clients = s.deps.Clients()
	}
	return st, nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}

	statusFile, err := os.Create(s.deps.StatusPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("creating status file: %w", err)
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer func() {
			statusFile.Close()
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(done)
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "path", s.deps.StatusPath)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.deps.Interval)
				st, err := s.Snapshot(ctx)
				cancel()
				if err != nil {
					logger.Debug("Skipping status snapshot", "error", err)
					continue
				}
				if err := writeStatus(statusFile, st); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for the goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.isRunning = false
	s.mu.Unlock()
	<-done
}

func writeStatus(f *os.File, st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}
