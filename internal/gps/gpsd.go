package gps

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"strings"
	"time"

	"github.com/OCAP2/mapview/internal/engine"
	"github.com/OCAP2/mapview/pkg/core"
)

// DefaultGPSDAddr is where gpsd listens by default.
const DefaultGPSDAddr = "127.0.0.1:2947"

const (
	minBackoff = 250 * time.Millisecond
	maxBackoff = 10 * time.Second
)

type gpsdMsgBase struct {
	Class string `json:"class"`
}

// gpsdTPV is a time-position-velocity report. With scaled=true speeds are
// m/s, distances metres and angles degrees.
type gpsdTPV struct {
	Mode *int   `json:"mode"`
	Time string `json:"time"`

	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	Alt     *float64 `json:"alt"`
	AltMSL  *float64 `json:"altMSL"`
	SpeedMS *float64 `json:"speed"`
	Track   *float64 `json:"track"`

	Epx *float64 `json:"epx"`
	Epy *float64 `json:"epy"`
	Eph *float64 `json:"eph"`
	Epv *float64 `json:"epv"`
}

// GPSD streams fixes from a gpsd daemon and reconnects with backoff.
type GPSD struct {
	Addr   string
	Logger *slog.Logger
}

// Run connects, enables JSON watching and forwards every 2D/3D fix.
// Connection problems are reported to sink as position-unavailable errors.
func (g *GPSD) Run(ctx context.Context, sink Sink) error {
	addr := strings.TrimSpace(g.Addr)
	if addr == "" {
		addr = DefaultGPSDAddr
	}
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("source", "gpsd", "addr", addr)
	logger.Info("gps provider started")

	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := dialGPSD(ctx, addr)
		if err != nil {
			sink.Error(engine.ErrCodePositionUnavailable, fmt.Sprintf("gpsd dial failed: %v", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff

		err = g.stream(ctx, conn, sink)
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("gpsd stream stopped", "error", err)
		sink.Error(engine.ErrCodePositionUnavailable, fmt.Sprintf("gpsd read stopped: %v", err))
	}
}

func (g *GPSD) stream(ctx context.Context, conn net.Conn, sink Sink) error {
	defer conn.Close()

	// unblock the scanner on cancellation
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := gpsdWatch(conn); err != nil {
		return fmt.Errorf("gpsd watch failed: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fix, ok, err := parseLine(time.Now().UTC(), line)
		if err != nil {
			if g.Logger != nil {
				g.Logger.Debug("skipping gpsd line", "error", err)
			}
			continue
		}
		if ok {
			sink.Fix(fix)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// dialGPSD connects to gpsd over TCP.
func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 2 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

// gpsdWatch enables JSON streaming reports in SI units.
func gpsdWatch(conn net.Conn) error {
	_, err := conn.Write([]byte("?WATCH={\"enable\":true,\"json\":true,\"scaled\":true}\n"))
	return err
}

// parseLine decodes one gpsd report. Only TPV reports with a 2D or 3D fix
// produce a Fix; everything else is ignored.
func parseLine(nowUTC time.Time, line string) (engine.Fix, bool, error) {
	var base gpsdMsgBase
	if err := json.Unmarshal([]byte(line), &base); err != nil {
		return engine.Fix{}, false, fmt.Errorf("gpsd json parse failed: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(base.Class), "TPV") {
		return engine.Fix{}, false, nil
	}

	var tpv gpsdTPV
	if err := json.Unmarshal([]byte(line), &tpv); err != nil {
		return engine.Fix{}, false, fmt.Errorf("gpsd tpv parse failed: %w", err)
	}
	if tpv.Mode == nil || *tpv.Mode < 2 || tpv.Lat == nil || tpv.Lon == nil {
		return engine.Fix{}, false, nil
	}

	fix := engine.Fix{
		Longitude:        *tpv.Lon,
		Latitude:         *tpv.Lat,
		AltitudeAccuracy: core.FromPtr(tpv.Epv),
		Speed:            core.FromPtr(tpv.SpeedMS),
		Time:             nowUTC,
	}

	if tpv.Eph != nil {
		fix.Accuracy = core.Some(*tpv.Eph)
	} else if tpv.Epx != nil && tpv.Epy != nil {
		fix.Accuracy = core.Some(math.Hypot(*tpv.Epx, *tpv.Epy))
	}

	altM := tpv.AltMSL
	if altM == nil {
		altM = tpv.Alt
	}
	fix.Altitude = core.FromPtr(altM)

	if tpv.Track != nil {
		fix.Heading = core.Some(*tpv.Track * math.Pi / 180)
	}

	if t := strings.TrimSpace(tpv.Time); t != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			fix.Time = parsed.UTC()
		}
	}

	return fix, true, nil
}
