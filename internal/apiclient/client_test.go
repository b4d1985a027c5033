package apiclient

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"backend-routetrack/internal/pipeline"
	"backend-routetrack/internal/route"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu      sync.Mutex
	auth    []string
	pings   []map[string]any
	calls   []string
	summary fiber.Map
}

func serve(t *testing.T, api *fakeAPI) string {
	t.Helper()
	app := fiber.New()
	record := func(c *fiber.Ctx) {
		api.mu.Lock()
		defer api.mu.Unlock()
		api.auth = append(api.auth, c.Get(fiber.HeaderAuthorization))
		api.calls = append(api.calls, c.Method()+" "+c.Path())
	}

	app.Post("/tracking/routes/:routeID/start", func(c *fiber.Ctx) error {
		record(c)
		if c.Params("routeID") == "missing" {
			return fiber.NewError(fiber.StatusNotFound, "route not found")
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": "s-1", "status": "active"})
	})
	app.Post("/tracking/routes/:routeID/pings", func(c *fiber.Ctx) error {
		record(c)
		var body map[string]any
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		api.mu.Lock()
		api.pings = append(api.pings, body)
		api.mu.Unlock()
		body["id"] = 9
		body["route_id"] = c.Params("routeID")
		return c.Status(fiber.StatusCreated).JSON(body)
	})
	app.Post("/tracking/routes/:routeID/stop", func(c *fiber.Ctx) error {
		record(c)
		return fiber.NewError(fiber.StatusConflict, "no active tracking session")
	})
	app.Get("/tracking/routes/:routeID/pings", func(c *fiber.Ctx) error {
		record(c)
		return c.JSON([]fiber.Map{{"id": 1, "route_id": "r-1", "lat": 1.5, "lon": 2.5, "accuracy_m": 5, "created_at": "2024-05-01T08:00:00Z"}})
	})
	app.Get("/tracking/routes/:routeID/analytics", func(c *fiber.Ctx) error {
		record(c)
		switch c.Params("routeID") {
		case "gone":
			return fiber.NewError(fiber.StatusNotFound, "not found")
		case "empty":
			return c.JSON(fiber.Map{"summary": fiber.Map{}, "message": "no tracking data yet"})
		}
		return c.JSON(api.summary)
	})
	app.Get("/tracking/routes/:routeID/status", func(c *fiber.Ctx) error {
		record(c)
		return c.JSON(fiber.Map{"route_id": c.Params("routeID"), "active": true, "session_id": "s-1"})
	})
	app.Get("/routes/:id", func(c *fiber.Ctx) error {
		record(c)
		return c.JSON(fiber.Map{"id": c.Params("id"), "name": "r", "visits": []fiber.Map{{"seq": 1, "lat": 1, "lon": 2}}})
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String() + "/"
}

func TestClientSessionAndPing(t *testing.T) {
	api := &fakeAPI{}
	c := New(serve(t, api), "token-1", nil)
	ctx := context.Background()

	require.NoError(t, c.StartSession(ctx, "r-1"))

	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	stored, err := c.SubmitPing(ctx, pipeline.ConfirmedPing{
		RouteID:        "r-1",
		Lat:            25.2,
		Lon:            55.27,
		AccuracyMeters: 12,
		SpeedMps:       pipeline.Float(3),
		CreatedAt:      created,
	})
	require.NoError(t, err)
	assert.Equal(t, "r-1", stored.RouteID)
	assert.Equal(t, 25.2, stored.Lat)
	assert.True(t, created.Equal(stored.CreatedAt))

	api.mu.Lock()
	require.Len(t, api.pings, 1)
	assert.Equal(t, 12.0, api.pings[0]["accuracy_m"])
	assert.Equal(t, 3.0, api.pings[0]["speed_mps"])
	_, hasHeading := api.pings[0]["heading_deg"]
	assert.False(t, hasHeading)
	for _, h := range api.auth {
		assert.Equal(t, "Bearer token-1", h)
	}
	api.mu.Unlock()
}

func TestClientStatusErrors(t *testing.T) {
	c := New(serve(t, &fakeAPI{}), "", nil)
	ctx := context.Background()

	err := c.StartSession(ctx, "missing")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, fiber.StatusNotFound, se.Code)
	assert.Contains(t, se.Message, "route not found")

	err = c.StopSession(ctx, "r-1")
	require.True(t, errors.As(err, &se))
	assert.Equal(t, fiber.StatusConflict, se.Code)
}

func TestClientFetchAnalytics(t *testing.T) {
	api := &fakeAPI{summary: fiber.Map{
		"summary":      fiber.Map{"total_distance_km": 10, "ping_count": 4},
		"optimization": fiber.Map{"optimal_distance_km": 8, "deviation_km": 2, "efficiency_rating": "Good"},
	}}
	c := New(serve(t, api), "", nil)
	ctx := context.Background()

	a, err := c.FetchAnalytics(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, 4, a.Summary.PingCount)
	require.NotNil(t, a.Optimization)
	assert.Equal(t, route.RatingGood, a.Optimization.EfficiencyRating)

	_, err = c.FetchAnalytics(ctx, "gone")
	assert.ErrorIs(t, err, ErrNoData)

	a, err = c.FetchAnalytics(ctx, "empty")
	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, "no tracking data yet", a.Message)
}

func TestClientReads(t *testing.T) {
	c := New(serve(t, &fakeAPI{}), "", nil)
	ctx := context.Background()

	pings, err := c.FetchPings(ctx, "r-1")
	require.NoError(t, err)
	require.Len(t, pings, 1)
	assert.Equal(t, 1.5, pings[0].Lat)

	st, err := c.FetchStatus(ctx, "r-1")
	require.NoError(t, err)
	assert.True(t, st.Active)
	assert.Equal(t, "s-1", st.SessionID)

	r, err := c.FetchRoute(ctx, "r-1")
	require.NoError(t, err)
	require.Len(t, r.Visits, 1)
	assert.Equal(t, 2.0, r.Visits[0].Lon)
}

func TestClientCanceledContext(t *testing.T) {
	c := New("http://127.0.0.1:1", "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.StartSession(ctx, "r-1"), context.Canceled)
}

func TestClientConnectionRefused(t *testing.T) {
	c := New("http://127.0.0.1:1", "", nil)
	c.timeout = 500 * time.Millisecond
	_, err := c.SubmitPing(context.Background(), pipeline.ConfirmedPing{RouteID: "r-1"})
	require.Error(t, err)
	var se *StatusError
	assert.False(t, errors.As(err, &se))
}

var _ pipeline.Dispatcher = (*Client)(nil)
