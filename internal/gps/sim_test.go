package gps

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// distance is the haversine distance in metres.
func distance(lon1, lat1, lon2, lat2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Sqrt(a))
}

func TestSimulator_StaysOnCircle(t *testing.T) {
	s := &Simulator{CenterLon: 13.405, CenterLat: 52.52, RadiusM: 200, Period: time.Minute}

	for i := 0; i < 12; i++ {
		fix := s.FixAt(time.Unix(int64(i*5), 0))
		d := distance(s.CenterLon, s.CenterLat, fix.Longitude, fix.Latitude)
		assert.InDelta(t, 200, d, 1, "step %d", i)
	}
}

func TestSimulator_StartsNorthHeadingEast(t *testing.T) {
	s := &Simulator{CenterLon: 0, CenterLat: 0, RadiusM: 1000, Period: time.Minute, Accuracy: 5}

	fix := s.FixAt(time.Unix(0, 0))

	assert.InDelta(t, 0, fix.Longitude, 1e-12)
	assert.Greater(t, fix.Latitude, 0.0)
	heading, ok := fix.Heading.Get()
	require.True(t, ok)
	assert.InDelta(t, math.Pi/2, heading, 1e-12)
	speed, _ := fix.Speed.Get()
	assert.InDelta(t, 2*math.Pi*1000/60, speed, 1e-9)
	acc, _ := fix.Accuracy.Get()
	assert.Equal(t, 5.0, acc)
	assert.False(t, fix.Altitude.IsSet())
}

func TestSimulator_Deterministic(t *testing.T) {
	s := &Simulator{CenterLon: 1, CenterLat: 2}
	at := time.Unix(1234, 0)
	assert.Equal(t, s.FixAt(at), s.FixAt(at))
}

func TestSimulator_RunUntilCancelled(t *testing.T) {
	s := &Simulator{Interval: 10 * time.Millisecond}
	sink := newChanSink()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, sink) }()

	for i := 0; i < 3; i++ {
		select {
		case <-sink.fixes:
		case <-time.After(2 * time.Second):
			t.Fatal("no fix")
		}
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
