package route

import (
	"context"
	"errors"

	"backend-routetrack/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrRouteNotFound = errors.New("route not found")

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) CreateRoute(ctx context.Context, input Route) (Route, error) {
	input.ID = uuid.NewString()
	row := s.db.QueryRow(ctx, `
		INSERT INTO routes (id, name)
		VALUES ($1,$2)
		RETURNING created_at
	`, input.ID, input.Name)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Route{}, err
	}

	for i := range input.Visits {
		input.Visits[i].Seq = i + 1
		v := input.Visits[i]
		_, err := s.db.Exec(ctx, `
			INSERT INTO route_visits (route_id, seq, name, location)
			VALUES ($1,$2,$3, ST_SetSRID(ST_MakePoint($4,$5), 4326)::geography)
		`, input.ID, v.Seq, v.Name, v.Lon, v.Lat)
		if err != nil {
			return Route{}, err
		}
	}
	if input.Visits == nil {
		input.Visits = []Visit{}
	}
	return input, nil
}

func (s *Service) GetRoute(ctx context.Context, id string) (Route, error) {
	var r Route
	row := s.db.QueryRow(ctx, `SELECT id, name, created_at FROM routes WHERE id=$1`, id)
	if err := row.Scan(&r.ID, &r.Name, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Route{}, ErrRouteNotFound
		}
		return Route{}, err
	}

	visits, err := s.Visits(ctx, id)
	if err != nil {
		return Route{}, err
	}
	r.Visits = visits
	return r, nil
}

func (s *Service) Visits(ctx context.Context, routeID string) ([]Visit, error) {
	rows, err := s.db.Query(ctx, `
		SELECT seq, COALESCE(name,''), ST_Y(location::geometry), ST_X(location::geometry)
		FROM route_visits
		WHERE route_id=$1
		ORDER BY seq
	`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	visits := []Visit{}
	for rows.Next() {
		var v Visit
		if err := rows.Scan(&v.Seq, &v.Name, &v.Lat, &v.Lon); err != nil {
			return nil, err
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

// AddVisit appends a stop after the current last one.
func (s *Service) AddVisit(ctx context.Context, routeID string, v Visit) (Visit, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO route_visits (route_id, seq, name, location)
		SELECT $1, COALESCE(MAX(seq),0)+1, $2, ST_SetSRID(ST_MakePoint($3,$4), 4326)::geography
		FROM route_visits WHERE route_id=$1
		RETURNING seq
	`, routeID, v.Name, v.Lon, v.Lat)
	if err := row.Scan(&v.Seq); err != nil {
		return Visit{}, err
	}
	return v, nil
}
