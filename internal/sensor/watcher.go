package sensor

import (
	"context"
	"time"

	"backend-routetrack/internal/observability"
	"backend-routetrack/internal/pipeline"

	"github.com/sirupsen/logrus"
)

const (
	DefaultTimeout = 20 * time.Second
	DefaultMaxAge  = 30 * time.Second
	DefaultBuffer  = 32
)

// Source must not block on out once ctx is done.
type Source interface {
	Stream(ctx context.Context, out chan<- pipeline.RawReading) error
}

type Replayer interface {
	Replaying() bool
}

type WatcherConfig struct {
	Timeout time.Duration
	MaxAge  time.Duration
	Buffer  int
}

func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{Timeout: DefaultTimeout, MaxAge: DefaultMaxAge, Buffer: DefaultBuffer}
}

type WatcherOption func(*Watcher)

func WithWatcherClock(now func() time.Time) WatcherOption {
	return func(w *Watcher) { w.now = now }
}

func WithWatcherLogger(lg logrus.FieldLogger) WatcherOption {
	return func(w *Watcher) { w.log = lg }
}

// Watcher drops live readings older than MaxAge and fails after Timeout.
type Watcher struct {
	src Source
	cfg WatcherConfig
	now func() time.Time
	log logrus.FieldLogger
}

func NewWatcher(src Source, cfg WatcherConfig, opts ...WatcherOption) *Watcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	w := &Watcher{src: src, cfg: cfg, now: time.Now, log: observability.Discard()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Watcher) Watch(ctx context.Context) (<-chan pipeline.RawReading, <-chan error) {
	out := make(chan pipeline.RawReading, w.cfg.Buffer)
	errc := make(chan error, 1)

	srcCtx, cancel := context.WithCancel(ctx)
	raw := make(chan pipeline.RawReading)
	srcDone := make(chan error, 1)
	go func() {
		srcDone <- w.src.Stream(srcCtx, raw)
	}()

	go func() {
		defer close(errc)
		defer close(out)
		defer cancel()

		live := true
		if rp, ok := w.src.(Replayer); ok && rp.Replaying() {
			live = false
		}

		timer := time.NewTimer(w.cfg.Timeout)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case err := <-srcDone:
				if err != nil && ctx.Err() == nil {
					se := AsError(err)
					w.log.WithField("kind", se.Kind.String()).WithError(se.Err).Error(se.Message())
					errc <- se
				}
				return
			case <-timer.C:
				se := &Error{Kind: Timeout, Err: context.DeadlineExceeded}
				w.log.WithField("timeout", w.cfg.Timeout.String()).Error(se.Message())
				errc <- se
				return
			case r := <-raw:
				if live && !r.CapturedAt.IsZero() && w.now().Sub(r.CapturedAt) > w.cfg.MaxAge {
					observability.ReadingsTotal.WithLabelValues("stale").Inc()
					w.log.WithField("captured_at", r.CapturedAt).Debug("stale reading dropped")
					continue
				}
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.cfg.Timeout)

				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, errc
}
