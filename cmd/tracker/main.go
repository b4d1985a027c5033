package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-routetrack/internal/apiclient"
	"backend-routetrack/internal/config"
	"backend-routetrack/internal/observability"
	"backend-routetrack/internal/pipeline"
	"backend-routetrack/internal/route"
	"backend-routetrack/internal/sensor"

	"github.com/sirupsen/logrus"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	os.Exit(mainRunner(mainDepsProvider()))
}

type mainDeps struct {
	loadConfig  func() config.Config
	openJournal func(path string) (*pipeline.BoltJournal, error)
	openSource  func(config.Config, logrus.FieldLogger) (sensor.Source, func(), error)
	notify      func(chan<- os.Signal, ...os.Signal)
	run         func(context.Context, config.Config, sensor.Source, pipeline.Journal, <-chan os.Signal, *logrus.Logger) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig: func() config.Config {
			config.LoadDotEnv()
			return config.Load()
		},
		openJournal: pipeline.OpenJournal,
		openSource:  openSource,
		notify:      signal.Notify,
		run:         Run,
	}
}

func realMain(deps mainDeps) int {
	cfg := deps.loadConfig()
	lg := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	var journal pipeline.Journal
	if cfg.JournalPath != "" {
		j, err := deps.openJournal(cfg.JournalPath)
		if err != nil {
			lg.WithError(err).WithField("path", cfg.JournalPath).Warn("journal unavailable, continuing without it")
		} else {
			defer j.Close()
			journal = j
		}
	}

	src, closeSource, err := deps.openSource(cfg, lg)
	if err != nil {
		var se *sensor.Error
		if errors.As(err, &se) {
			logSensorError(lg, se)
		} else {
			lg.WithError(err).Error("sensor unavailable")
		}
		return 1
	}
	defer closeSource()

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, src, journal, signals, lg); err != nil {
		var se *sensor.Error
		if errors.As(err, &se) {
			logSensorError(lg, se)
		} else {
			lg.WithError(err).Error("tracker exited with error")
		}
		return 1
	}
	return 0
}

func logSensorError(lg logrus.FieldLogger, err error) {
	se := sensor.AsError(err)
	lg.WithError(se.Err).WithField("kind", se.Kind.String()).Error(se.Message())
}

func openSource(cfg config.Config, lg logrus.FieldLogger) (sensor.Source, func(), error) {
	switch cfg.SensorSource {
	case "", "nmea":
		return sensor.NewSerialSource(cfg.SensorDevice, cfg.SensorBaud, lg), func() {}, nil
	case "file":
		f, err := os.Open(cfg.SensorDevice)
		if err != nil {
			if errors.Is(err, os.ErrPermission) {
				return nil, nil, &sensor.Error{Kind: sensor.PermissionDenied, Err: err}
			}
			return nil, nil, &sensor.Error{Kind: sensor.PositionUnavailable, Err: err}
		}
		return sensor.NewReaderSource(f, lg, sensor.WithReplaySpeed(cfg.ReplaySpeed)), func() { _ = f.Close() }, nil
	case "mqtt":
		client, err := sensor.DialMQTT(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			return nil, nil, err
		}
		return sensor.NewMQTTSource(client, cfg.MQTTTopic, lg), func() { client.Disconnect(250) }, nil
	}
	return nil, nil, fmt.Errorf("unknown sensor source %q", cfg.SensorSource)
}

func pipelineConfig(cfg config.Config) pipeline.Config {
	pc := pipeline.DefaultConfig()
	if cfg.MaxAccuracy > 0 {
		pc.Validator.MaxAccuracyMeters = cfg.MaxAccuracy
	}
	if cfg.MaxSpeed > 0 {
		pc.Validator.MaxSpeedKmh = cfg.MaxSpeed
		pc.Gate.MaxSpeedKmh = cfg.MaxSpeed
	}
	if cfg.SmoothingWindow > 0 {
		pc.SmoothingWindow = cfg.SmoothingWindow
	}
	if cfg.MinTimeInterval > 0 {
		pc.Gate.MinTimeInterval = cfg.MinTimeInterval
	}
	if cfg.MinDistance > 0 {
		pc.Gate.MinDistanceMeters = cfg.MinDistance
	}
	if cfg.IndoorAccuracyThreshold > 0 {
		pc.Gate.IndoorAccuracyThreshold = cfg.IndoorAccuracyThreshold
	}
	if cfg.JumpDistance > 0 {
		pc.Gate.JumpDistanceMeters = cfg.JumpDistance
	}
	return pc
}

func watcherConfig(cfg config.Config) sensor.WatcherConfig {
	return sensor.WatcherConfig{Timeout: cfg.SensorTimeout, MaxAge: cfg.SensorMaxAge, Buffer: sensor.DefaultBuffer}
}

// Run returns a sensor failure as *sensor.Error after stopping the session.
func Run(ctx context.Context, cfg config.Config, src sensor.Source, journal pipeline.Journal, signals <-chan os.Signal, lg *logrus.Logger) error {
	if cfg.RouteID == "" {
		return errors.New("ROUTE_ID is required")
	}
	log := lg.WithField("route_id", cfg.RouteID)

	analyzer, err := route.NewAnalyzer(route.AnalyzerConfigFrom(cfg))
	if err != nil {
		return err
	}

	client := apiclient.New(cfg.APIBaseURL, cfg.APIToken, lg)
	opts := []pipeline.Option{pipeline.WithLogger(lg)}
	if journal != nil {
		opts = append(opts, pipeline.WithJournal(journal))
	}
	if rp, ok := src.(sensor.Replayer); ok && rp.Replaying() {
		opts = append(opts, pipeline.WithReadingTime())
	}
	p := pipeline.New(pipelineConfig(cfg), client, opts...)

	startCtx, startCancel := context.WithTimeout(ctx, 10*time.Second)
	err = p.Start(startCtx, cfg.RouteID)
	startCancel()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mon *monitor
	if cfg.RealtimeURL != "" {
		mon = newMonitor(cfg, client, analyzer, lg)
		if err := mon.start(runCtx); err != nil {
			log.WithError(err).Warn("realtime monitor unavailable")
		}
	}

	readings, errc := sensor.NewWatcher(src, watcherConfig(cfg), sensor.WithWatcherLogger(lg)).Watch(runCtx)
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(runCtx, readings) }()

	select {
	case sig := <-signals:
		log.WithField("signal", fmt.Sprint(sig)).Info("stopping tracker")
		cancel()
		<-runDone
	case <-ctx.Done():
		<-runDone
	case err := <-runDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("pipeline ended")
		}
	}
	cancel()

	var sensorErr error
	for err := range errc {
		sensorErr = err
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := p.Stop(stopCtx); err != nil {
		log.WithError(err).Warn("stop session failed")
	}
	if mon != nil {
		mon.close()
	}

	st := p.Status()
	log.WithFields(logrus.Fields{
		"readings": st.Readings,
		"rejected": st.Rejected,
		"pings":    st.Pings,
		"failures": st.Failures,
	}).Info("tracking finished")
	return sensorErr
}
