package monitor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/mapview/internal/dispatcher"
	"github.com/OCAP2/mapview/internal/geo"
	"github.com/OCAP2/mapview/internal/host"
	"github.com/OCAP2/mapview/internal/mapview"
	"github.com/OCAP2/mapview/pkg/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func newDeps(t *testing.T) Dependencies {
	t.Helper()

	bus, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	t.Cleanup(bus.Close)

	svc := mapview.New(bus, mapview.Options{Projection: geo.EPSG4326, DefaultZoom: 3}, nil)
	require.NoError(t, svc.Init(host.NewViewport(256, 128), core.Some(core.Position{X: 10, Y: 20}), core.None[float64]()))

	loop := host.NewLoop(0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})

	return Dependencies{
		Loop:       loop,
		Service:    svc,
		Clients:    func() int { return 2 },
		StatusPath: filepath.Join(t.TempDir(), "status.json"),
		Interval:   10 * time.Millisecond,
	}
}

func TestSnapshot(t *testing.T) {
	s := NewService(newDeps(t))

	st, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.ViewState{Center: core.Position{X: 10, Y: 20}, Zoom: 3}, st.View)
	assert.False(t, st.Tracking.Enabled)
	assert.False(t, st.Marker.Geometry.IsSet())
	assert.Equal(t, 2, st.Clients)
	assert.False(t, st.Time.IsZero())
}

func TestSnapshot_CountsViewsAndDrops(t *testing.T) {
	deps := newDeps(t)
	svc := deps.Service
	ch, cancel := svc.ViewChange.Channel(1)
	defer cancel()

	require.NoError(t, deps.Loop.Call(context.Background(), func() error {
		for i := 0; i < 3; i++ {
			if err := svc.MoveTo(core.Position{X: float64(i), Y: 0}); err != nil {
				return err
			}
		}
		return nil
	}))
	require.Eventually(t, func() bool { return svc.ViewChanges() == 3 }, time.Second, 5*time.Millisecond)

	st, err := NewService(deps).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.ViewChanges)
	assert.Equal(t, uint64(2), st.Dropped, "the unread channel holds one view")
	assert.Equal(t, 0.0, (<-ch).Center.X)
}

func TestSnapshot_LoopStopped(t *testing.T) {
	deps := newDeps(t)
	deps.Loop = host.NewLoop(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, deps.Loop.Run(ctx))

	_, err := NewService(deps).Snapshot(context.Background())
	assert.ErrorIs(t, err, host.ErrLoopStopped)
}

func TestStartWritesStatusFile(t *testing.T) {
	deps := newDeps(t)
	s := NewService(deps)

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(deps.StatusPath)
		if err != nil || len(data) == 0 {
			return false
		}
		var st Status
		return json.Unmarshal(data, &st) == nil && st.View.Zoom == 3
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())

	// stopping twice is harmless
	s.Stop()
}

func TestStart_BadPath(t *testing.T) {
	deps := newDeps(t)
	deps.StatusPath = filepath.Join(t.TempDir(), "missing", "status.json")

	err := NewService(deps).Start()
	assert.Error(t, err)
}
