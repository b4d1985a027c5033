package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"backend-routetrack/internal/observability"

	"github.com/sirupsen/logrus"
)

var (
	ErrNotTracking     = errors.New("pipeline: not tracking")
	ErrAlreadyTracking = errors.New("pipeline: already tracking")
	ErrDispatch        = errors.New("pipeline: dispatch failed")
)

type State int

const (
	StateIdle State = iota
	StateTracking
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

type Dispatcher interface {
	StartSession(ctx context.Context, routeID string) error
	SubmitPing(ctx context.Context, ping ConfirmedPing) (ConfirmedPing, error)
	StopSession(ctx context.Context, routeID string) error
}

type Journal interface {
	RecordDispatched(ping ConfirmedPing) error
	RecordFailure(ping ConfirmedPing, cause error) error
}

type Config struct {
	Validator       ValidatorConfig
	Gate            GateConfig
	SmoothingWindow int
}

func DefaultConfig() Config {
	return Config{
		Validator:       DefaultValidatorConfig(),
		Gate:            DefaultGateConfig(),
		SmoothingWindow: DefaultSmoothingWindow,
	}
}

const (
	StageValidation     = "validation"
	StageGate           = "gate"
	StageDispatched     = "dispatched"
	StageDispatchFailed = "dispatch_failed"
)

type Outcome struct {
	Stage    string
	Reason   string
	Smoothed SmoothedLocation
	Ping     *ConfirmedPing
}

type Status struct {
	State         State             `json:"-"`
	StateName     string            `json:"state"`
	RouteID       string            `json:"route_id,omitempty"`
	LastConfirmed *SmoothedLocation `json:"last_confirmed,omitempty"`
	LastPingTime  time.Time         `json:"last_ping_time,omitempty"`
	Readings      int               `json:"readings"`
	Rejected      int               `json:"rejected"`
	Pings         int               `json:"pings"`
	Failures      int               `json:"failures"`
}

type Option func(*Pipeline)

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithReadingTime gates on each reading's capture time instead of the clock.
func WithReadingTime() Option {
	return func(p *Pipeline) { p.readingTime = true }
}

func WithJournal(j Journal) Option {
	return func(p *Pipeline) { p.journal = j }
}

func WithLogger(lg logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.log = lg }
}

// Pipeline runs Validator -> Smoother -> Gate -> Dispatcher for one route.
type Pipeline struct {
	cfg        Config
	validator  *Validator
	gate       *Gate
	dispatcher Dispatcher
	journal    Journal
	log        logrus.FieldLogger
	now        func() time.Time

	readingTime bool

	procMu  sync.Mutex
	mu      sync.RWMutex
	state   State
	session *TrackingSession
}

func New(cfg Config, d Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		validator:  NewValidator(cfg.Validator),
		gate:       NewGate(cfg.Gate),
		dispatcher: d,
		log:        observability.Discard(),
		now:        time.Now,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Start(ctx context.Context, routeID string) error {
	p.procMu.Lock()
	defer p.procMu.Unlock()

	if p.State() == StateTracking {
		return ErrAlreadyTracking
	}
	if err := p.dispatcher.StartSession(ctx, routeID); err != nil {
		return fmt.Errorf("start session %s: %w", routeID, err)
	}

	p.mu.Lock()
	p.session = newTrackingSession(routeID, p.cfg.SmoothingWindow, p.now())
	p.state = StateTracking
	p.mu.Unlock()

	p.log.WithField("route_id", routeID).Info("tracking started")
	return nil
}

// Process returns an error only for a failed dispatch or a stopped pipeline.
func (p *Pipeline) Process(ctx context.Context, r RawReading) (Outcome, error) {
	p.procMu.Lock()
	defer p.procMu.Unlock()

	p.mu.Lock()
	if p.state != StateTracking {
		p.mu.Unlock()
		return Outcome{}, ErrNotTracking
	}
	sess := p.session
	sess.Readings++

	verdict := p.validator.Validate(r)
	if !verdict.Valid {
		sess.Rejected++
		p.mu.Unlock()
		observability.ReadingsTotal.WithLabelValues("invalid").Inc()
		p.log.WithFields(logrus.Fields{"route_id": sess.RouteID, "reason": verdict.Reason}).Debug("reading dropped")
		return Outcome{Stage: StageValidation, Reason: verdict.Reason}, nil
	}

	smoothed := sess.smooth(r)
	now := p.now()
	if p.readingTime && !r.CapturedAt.IsZero() {
		now = r.CapturedAt
	}
	decision := p.gate.ShouldRecord(sess.LastConfirmed, sess.LastPingTime, smoothed, now)
	if !decision.Record {
		sess.Rejected++
		p.mu.Unlock()
		observability.ReadingsTotal.WithLabelValues("gated").Inc()
		observability.GateRejections.WithLabelValues(decision.Reason).Inc()
		p.log.WithFields(logrus.Fields{
			"route_id":    sess.RouteID,
			"reason":      decision.Reason,
			"distance_m":  decision.DistanceMeters,
			"threshold_m": decision.ThresholdMeters,
		}).Debug("movement gate rejected")
		return Outcome{Stage: StageGate, Reason: decision.Reason, Smoothed: smoothed}, nil
	}

	ping := ConfirmedPing{
		RouteID:        sess.RouteID,
		Lat:            smoothed.Lat,
		Lon:            smoothed.Lon,
		AccuracyMeters: smoothed.AccuracyMeters,
		SpeedMps:       r.SpeedMps,
		HeadingDegrees: r.HeadingDegrees,
		CreatedAt:      now,
	}
	p.mu.Unlock()

	stored, err := p.dispatcher.SubmitPing(ctx, ping)
	if err != nil {
		p.mu.Lock()
		sess.Failures++
		p.mu.Unlock()
		observability.ReadingsTotal.WithLabelValues("dispatch_failed").Inc()
		observability.DispatchFailures.Inc()
		if p.journal != nil {
			if jerr := p.journal.RecordFailure(ping, err); jerr != nil {
				p.log.WithError(jerr).Warn("journal write failed")
			}
		}
		p.log.WithFields(logrus.Fields{"route_id": sess.RouteID}).WithError(err).Warn("ping dispatch failed, baseline kept")
		return Outcome{Stage: StageDispatchFailed, Reason: decision.Reason, Smoothed: smoothed, Ping: &ping},
			fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	if stored.CreatedAt.IsZero() {
		stored = ping
	}

	p.mu.Lock()
	sess.advance(ping)
	p.mu.Unlock()

	observability.ReadingsTotal.WithLabelValues("dispatched").Inc()
	observability.PingsDispatched.Inc()
	if p.journal != nil {
		if jerr := p.journal.RecordDispatched(stored); jerr != nil {
			p.log.WithError(jerr).Warn("journal write failed")
		}
	}
	p.log.WithFields(logrus.Fields{
		"route_id":   sess.RouteID,
		"reason":     decision.Reason,
		"lat":        ping.Lat,
		"lon":        ping.Lon,
		"distance_m": decision.DistanceMeters,
	}).Info("ping confirmed")
	return Outcome{Stage: StageDispatched, Reason: decision.Reason, Smoothed: smoothed, Ping: &stored}, nil
}

func (p *Pipeline) Run(ctx context.Context, readings <-chan RawReading) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-readings:
			if !ok {
				return nil
			}
			if _, err := p.Process(ctx, r); err != nil {
				if errors.Is(err, ErrNotTracking) {
					return err
				}
			}
		}
	}
}

func (p *Pipeline) Stop(ctx context.Context) error {
	p.procMu.Lock()
	defer p.procMu.Unlock()

	p.mu.Lock()
	if p.state != StateTracking {
		p.mu.Unlock()
		return nil
	}
	sess := p.session
	p.state = StateStopped
	sess.discard()
	p.mu.Unlock()

	p.log.WithFields(logrus.Fields{"route_id": sess.RouteID, "pings": sess.Pings}).Info("tracking stopped")
	if err := p.dispatcher.StopSession(ctx, sess.RouteID); err != nil {
		return fmt.Errorf("stop session %s: %w", sess.RouteID, err)
	}
	return nil
}

func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := Status{State: p.state, StateName: p.state.String()}
	if p.session == nil {
		return st
	}
	s := p.session
	st.RouteID = s.RouteID
	st.LastPingTime = s.LastPingTime
	st.Readings = s.Readings
	st.Rejected = s.Rejected
	st.Pings = s.Pings
	st.Failures = s.Failures
	if s.LastConfirmed != nil {
		loc := *s.LastConfirmed
		st.LastConfirmed = &loc
	}
	return st
}
