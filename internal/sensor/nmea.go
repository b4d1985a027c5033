package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"backend-routetrack/internal/observability"
	"backend-routetrack/internal/pipeline"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
	"github.com/sirupsen/logrus"
)

const (
	knotsToMps    = 0.514444
	metersPerHDOP = 5.0
)

// NMEASource turns RMC fixes into readings, with accuracy from the last GGA.
type NMEASource struct {
	open  func() (io.ReadCloser, error)
	now   func() time.Time
	sleep func(context.Context, time.Duration) bool
	log   logrus.FieldLogger

	replay bool
	speed  float64
}

type ReplayOption func(*NMEASource)

// WithReplaySpeed scales replay pacing. Zero or less disables it.
func WithReplaySpeed(speed float64) ReplayOption {
	return func(s *NMEASource) { s.speed = speed }
}

func NewSerialSource(device string, baud uint, lg logrus.FieldLogger) *NMEASource {
	opts := serial.OpenOptions{
		PortName:        device,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}
	return newNMEASource(func() (io.ReadCloser, error) {
		return serial.Open(opts)
	}, lg)
}

// NewReaderSource replays a recorded NMEA log. Fixes are re-stamped from
// the moment the first one is read and paced by the recorded gaps.
func NewReaderSource(r io.Reader, lg logrus.FieldLogger, opts ...ReplayOption) *NMEASource {
	s := newNMEASource(func() (io.ReadCloser, error) {
		return io.NopCloser(r), nil
	}, lg)
	s.replay = true
	s.speed = 1
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newNMEASource(open func() (io.ReadCloser, error), lg logrus.FieldLogger) *NMEASource {
	if lg == nil {
		lg = observability.Discard()
	}
	return &NMEASource{open: open, now: time.Now, sleep: sleepCtx, log: lg}
}

func (s *NMEASource) Replaying() bool { return s.replay }

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *NMEASource) Stream(ctx context.Context, out chan<- pipeline.RawReading) error {
	port, err := s.open()
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return &Error{Kind: PermissionDenied, Err: err}
		}
		return &Error{Kind: PositionUnavailable, Err: fmt.Errorf("open gps device: %w", err)}
	}
	defer port.Close()
	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer stop()

	hdop := 0.0
	var clock replayClock
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}
		sentence, err := nmea.Parse(line)
		if err != nil {
			s.log.WithError(err).Debug("nmea parse error")
			continue
		}

		switch sentence.DataType() {
		case nmea.TypeGGA:
			hdop = sentence.(nmea.GGA).HDOP
		case nmea.TypeRMC:
			m := sentence.(nmea.RMC)
			if m.Validity != nmea.ValidRMC {
				continue
			}
			r := s.reading(m, hdop)
			if s.replay {
				wait := clock.stamp(&r, s.now)
				if s.speed > 0 && wait > 0 && !s.sleep(ctx, time.Duration(float64(wait)/s.speed)) {
					return nil
				}
			}
			select {
			case out <- r:
			case <-ctx.Done():
				return nil
			}
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return &Error{Kind: PositionUnavailable, Err: fmt.Errorf("read gps device: %w", err)}
	}
	return nil
}

func (s *NMEASource) reading(m nmea.RMC, hdop float64) pipeline.RawReading {
	accuracy := -1.0
	if hdop > 0 {
		accuracy = hdop * metersPerHDOP
	}
	return pipeline.RawReading{
		Lat:            m.Latitude,
		Lon:            m.Longitude,
		AccuracyMeters: accuracy,
		SpeedMps:       pipeline.Float(m.Speed * knotsToMps),
		HeadingDegrees: pipeline.Float(m.Course),
		CapturedAt:     fixTime(m.Date, m.Time, s.now),
	}
}

func fixTime(d nmea.Date, t nmea.Time, now func() time.Time) time.Time {
	if !d.Valid || !t.Valid {
		return now().UTC()
	}
	return time.Date(2000+d.YY, time.Month(d.MM), d.DD, t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}

type replayClock struct {
	start    time.Time
	firstFix time.Time
	lastFix  time.Time
}

// stamp returns the recorded gap since the previous fix.
func (c *replayClock) stamp(r *pipeline.RawReading, now func() time.Time) time.Duration {
	fix := r.CapturedAt
	if c.start.IsZero() {
		c.start = now().UTC()
		c.firstFix, c.lastFix = fix, fix
		r.CapturedAt = c.start
		return 0
	}
	wait := fix.Sub(c.lastFix)
	if wait < 0 {
		wait = 0
		fix = c.lastFix
	}
	c.lastFix = fix
	r.CapturedAt = c.start.Add(fix.Sub(c.firstFix))
	return wait
}
