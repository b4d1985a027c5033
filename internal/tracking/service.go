package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-routetrack/internal/db"
	"backend-routetrack/internal/observability"
	"backend-routetrack/internal/pipeline"
	"backend-routetrack/internal/route"
	"backend-routetrack/internal/shared/geo"
	"backend-routetrack/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const NoDataMessage = "no tracking data yet"

var (
	ErrNoActiveSession = errors.New("no active tracking session")
	ErrOutOfOrder      = errors.New("ping is not newer than the last ping")
	ErrDuplicatePing   = errors.New("duplicate ping")
	ErrInvalidPing     = errors.New("invalid ping")
)

type Service struct {
	db        db.Querier
	hub       *stream.Hub
	positions *PositionCache
	routes    *route.Service
	analyzer  *route.Analyzer
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewService(db db.Querier, hub *stream.Hub, rdb *redis.Client, analyzer *route.Analyzer, lg logrus.FieldLogger) *Service {
	if analyzer == nil {
		analyzer, _ = route.NewAnalyzer(route.DefaultAnalyzerConfig())
	}
	if lg == nil {
		lg = observability.Discard()
	}
	return &Service{
		db:        db,
		hub:       hub,
		positions: NewPositionCache(rdb),
		routes:    route.NewService(db),
		analyzer:  analyzer,
		log:       lg,
		now:       time.Now,
	}
}

func (s *Service) StartSession(ctx context.Context, routeID string) (Session, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM routes WHERE id=$1)`, routeID).Scan(&exists); err != nil {
		return Session{}, err
	}
	if !exists {
		return Session{}, route.ErrRouteNotFound
	}

	if active, err := s.activeSession(ctx, routeID); err == nil {
		return active, nil
	} else if !errors.Is(err, ErrNoActiveSession) {
		return Session{}, err
	}

	session := Session{ID: uuid.NewString(), RouteID: routeID, StartedAt: s.now().UTC(), Status: StatusActive}
	row := s.db.QueryRow(ctx, `
		INSERT INTO tracking_sessions (id, route_id, started_at, status)
		VALUES ($1,$2,$3,$4)
		RETURNING started_at, status
	`, session.ID, session.RouteID, session.StartedAt, session.Status)
	if err := row.Scan(&session.StartedAt, &session.Status); err != nil {
		return Session{}, err
	}

	s.log.WithFields(logrus.Fields{"route_id": routeID, "session_id": session.ID}).Info("tracking session started")
	s.publish(ctx, routeID, stream.TypeTrackingStatus, stream.TrackingStatus{Active: true, SessionID: session.ID})
	return session, nil
}

func (s *Service) StopSession(ctx context.Context, routeID string) (Session, error) {
	var session Session
	var endedAt time.Time
	row := s.db.QueryRow(ctx, `
		UPDATE tracking_sessions
		SET status=$3, ended_at=$2
		WHERE route_id=$1 AND status='active'
		RETURNING id, started_at, ended_at, status
	`, routeID, s.now().UTC(), StatusStopped)
	if err := row.Scan(&session.ID, &session.StartedAt, &endedAt, &session.Status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNoActiveSession
		}
		return Session{}, err
	}
	session.RouteID = routeID
	session.EndedAt = &endedAt

	s.log.WithFields(logrus.Fields{"route_id": routeID, "session_id": session.ID}).Info("tracking session stopped")
	s.publish(ctx, routeID, stream.TypeTrackingStatus, stream.TrackingStatus{Active: false, SessionID: session.ID})
	return session, nil
}

func (s *Service) AddPing(ctx context.Context, routeID string, input PingInput) (Ping, error) {
	if !geo.ValidCoordinates(input.Lat, input.Lon) {
		return Ping{}, fmt.Errorf("%w: invalid coordinates", ErrInvalidPing)
	}
	if input.AccuracyMeters == nil || *input.AccuracyMeters < 0 {
		return Ping{}, fmt.Errorf("%w: missing accuracy", ErrInvalidPing)
	}

	session, err := s.activeSession(ctx, routeID)
	if err != nil {
		return Ping{}, err
	}
	if input.CreatedAt.IsZero() {
		input.CreatedAt = s.now().UTC()
	}

	fresh, err := s.positions.Claim(ctx, routeID, input.CreatedAt)
	if err != nil {
		s.log.WithError(err).Warn("ping claim failed")
	} else if !fresh {
		observability.DuplicatePings.Inc()
		return Ping{}, ErrDuplicatePing
	}

	var last time.Time
	err = s.db.QueryRow(ctx, `
		SELECT created_at FROM route_pings
		WHERE route_id=$1
		ORDER BY created_at DESC
		LIMIT 1
	`, routeID).Scan(&last)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Ping{}, err
	}
	if err == nil && !input.CreatedAt.After(last) {
		observability.DuplicatePings.Inc()
		return Ping{}, ErrOutOfOrder
	}

	ping := Ping{ConfirmedPing: pipeline.ConfirmedPing{
		RouteID:        routeID,
		Lat:            input.Lat,
		Lon:            input.Lon,
		AccuracyMeters: *input.AccuracyMeters,
		SpeedMps:       input.SpeedMps,
		HeadingDegrees: input.HeadingDegrees,
		CreatedAt:      input.CreatedAt,
	}}
	row := s.db.QueryRow(ctx, `
		INSERT INTO route_pings (route_id, session_id, location, accuracy_m, speed_mps, heading_deg, created_at)
		VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3,$4), 4326)::geography, $5, $6, $7, $8)
		RETURNING id
	`, routeID, session.ID, ping.Lon, ping.Lat, ping.AccuracyMeters, ping.SpeedMps, ping.HeadingDegrees, ping.CreatedAt)
	if err := row.Scan(&ping.ID); err != nil {
		if rerr := s.positions.Release(ctx, routeID, input.CreatedAt); rerr != nil {
			s.log.WithError(rerr).Warn("ping claim release failed")
		}
		return Ping{}, err
	}
	observability.PingsIngested.Inc()

	if err := s.positions.Update(ctx, routeID, ping.Lat, ping.Lon); err != nil {
		s.log.WithError(err).WithField("route_id", routeID).Warn("last position update failed")
	}

	if s.hub != nil {
		s.publish(ctx, routeID, stream.TypeGPSPing, ping)
		if analytics, err := s.Analytics(ctx, routeID); err != nil {
			s.log.WithError(err).WithField("route_id", routeID).Warn("summary refresh failed")
		} else {
			s.publish(ctx, routeID, stream.TypeRouteSummary, analytics)
		}
	}
	return ping, nil
}

func (s *Service) Pings(ctx context.Context, routeID string) ([]Ping, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, route_id, ST_Y(location::geometry), ST_X(location::geometry), accuracy_m, speed_mps, heading_deg, created_at
		FROM route_pings
		WHERE route_id=$1
		ORDER BY created_at
	`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pings := []Ping{}
	for rows.Next() {
		var p Ping
		if err := rows.Scan(&p.ID, &p.RouteID, &p.Lat, &p.Lon, &p.AccuracyMeters, &p.SpeedMps, &p.HeadingDegrees, &p.CreatedAt); err != nil {
			return nil, err
		}
		pings = append(pings, p)
	}
	return pings, rows.Err()
}

func (s *Service) Analytics(ctx context.Context, routeID string) (Analytics, error) {
	pings, err := s.Pings(ctx, routeID)
	if err != nil {
		return Analytics{}, err
	}
	return s.analyticsFor(ctx, routeID, pings)
}

func (s *Service) analyticsFor(ctx context.Context, routeID string, pings []Ping) (Analytics, error) {
	if len(pings) == 0 {
		return Analytics{Message: NoDataMessage}, nil
	}
	summary := s.analyzer.Summarize(confirmed(pings))
	visits, err := s.routes.Visits(ctx, routeID)
	if err != nil {
		return Analytics{}, err
	}
	opt := s.analyzer.Analyze(summary, visits)
	return Analytics{Summary: summary, Optimization: &opt}, nil
}

func (s *Service) Status(ctx context.Context, routeID string) (Status, error) {
	st := Status{RouteID: routeID}
	session, err := s.activeSession(ctx, routeID)
	switch {
	case err == nil:
		st.Active = true
		st.SessionID = session.ID
		st.StartedAt = &session.StartedAt
	case !errors.Is(err, ErrNoActiveSession):
		return Status{}, err
	}

	var last Ping
	err = s.db.QueryRow(ctx, `
		SELECT id, route_id, ST_Y(location::geometry), ST_X(location::geometry), accuracy_m, speed_mps, heading_deg, created_at
		FROM route_pings
		WHERE route_id=$1
		ORDER BY created_at DESC
		LIMIT 1
	`, routeID).Scan(&last.ID, &last.RouteID, &last.Lat, &last.Lon, &last.AccuracyMeters, &last.SpeedMps, &last.HeadingDegrees, &last.CreatedAt)
	switch {
	case err == nil:
		st.LastPing = &last
	case !errors.Is(err, pgx.ErrNoRows):
		return Status{}, err
	}

	pos, err := s.positions.Last(ctx, routeID)
	if err != nil {
		s.log.WithError(err).Warn("last position lookup failed")
	}
	st.LastPosition = pos
	return st, nil
}

func (s *Service) InitialData(ctx context.Context, routeID string) (any, error) {
	pings, err := s.Pings(ctx, routeID)
	if err != nil {
		return nil, err
	}
	analytics, err := s.analyticsFor(ctx, routeID, pings)
	if err != nil {
		return nil, err
	}
	return InitialData{Pings: pings, Analytics: analytics}, nil
}

func (s *Service) activeSession(ctx context.Context, routeID string) (Session, error) {
	session := Session{RouteID: routeID, Status: StatusActive}
	row := s.db.QueryRow(ctx, `
		SELECT id, started_at FROM tracking_sessions
		WHERE route_id=$1 AND status='active'
		LIMIT 1
	`, routeID)
	if err := row.Scan(&session.ID, &session.StartedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNoActiveSession
		}
		return Session{}, err
	}
	return session, nil
}

func (s *Service) publish(ctx context.Context, routeID, kind string, data any) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(ctx, routeID, kind, data); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"route_id": routeID, "type": kind}).Warn("realtime publish failed")
	}
}
