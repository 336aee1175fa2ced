package gps

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/OCAP2/mapview/internal/engine"
	"github.com/OCAP2/mapview/pkg/core"
)

// earthRadius is the mean earth radius in metres.
const earthRadius = 6371008.8

// Simulator moves clockwise around a circle at constant speed.
type Simulator struct {
	CenterLon float64
	CenterLat float64
	RadiusM   float64
	Period    time.Duration
	Interval  time.Duration
	// Accuracy reported with every fix, in metres. Zero omits it.
	Accuracy float64

	Now    func() time.Time
	Logger *slog.Logger
}

func (s *Simulator) period() time.Duration {
	if s.Period <= 0 {
		return 2 * time.Minute
	}
	return s.Period
}

func (s *Simulator) radius() float64 {
	if s.RadiusM <= 0 {
		return 200
	}
	return s.RadiusM
}

// FixAt returns the deterministic fix for the given instant. The track starts
// due north of the centre at phase zero.
func (s *Simulator) FixAt(now time.Time) engine.Fix {
	period := s.period()
	radius := s.radius()

	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())
	bearing := 2 * math.Pi * phase

	angular := radius / earthRadius
	latRad := s.CenterLat * math.Pi / 180

	lat := s.CenterLat + angular*math.Cos(bearing)*180/math.Pi
	lon := s.CenterLon + angular*math.Sin(bearing)/math.Cos(latRad)*180/math.Pi

	fix := engine.Fix{
		Longitude: lon,
		Latitude:  lat,
		Heading:   core.Some(math.Mod(bearing+math.Pi/2, 2*math.Pi)),
		Speed:     core.Some(2 * math.Pi * radius / period.Seconds()),
		Time:      now.UTC(),
	}
	if s.Accuracy > 0 {
		fix.Accuracy = core.Some(s.Accuracy)
	}
	return fix
}

// Run emits one fix per interval until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context, sink Sink) error {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	if s.Logger != nil {
		s.Logger.Info("gps provider started", "source", "sim", "interval", interval, "radius", s.radius())
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sink.Fix(s.FixAt(now()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sink.Fix(s.FixAt(now()))
		}
	}
}
