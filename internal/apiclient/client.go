package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"backend-routetrack/internal/observability"
	"backend-routetrack/internal/pipeline"
	"backend-routetrack/internal/route"
	"backend-routetrack/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const defaultTimeout = 10 * time.Second

var ErrNoData = errors.New("no tracking data yet")

type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Code, e.Message)
}

type Analytics struct {
	Summary      route.Summary       `json:"summary"`
	Optimization *route.Optimization `json:"optimization,omitempty"`
	Message      string              `json:"message,omitempty"`
}

type Status struct {
	RouteID      string                  `json:"route_id"`
	Active       bool                    `json:"active"`
	SessionID    string                  `json:"session_id,omitempty"`
	StartedAt    *time.Time              `json:"started_at,omitempty"`
	LastPing     *pipeline.ConfirmedPing `json:"last_ping,omitempty"`
	LastPosition *geo.Point              `json:"last_position,omitempty"`
}

type pingRequest struct {
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	AccuracyMeters float64   `json:"accuracy_m"`
	SpeedMps       *float64  `json:"speed_mps,omitempty"`
	HeadingDegrees *float64  `json:"heading_deg,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	log     logrus.FieldLogger
}

func New(baseURL, token string, lg logrus.FieldLogger) *Client {
	if lg == nil {
		lg = observability.Discard()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: defaultTimeout,
		log:     lg,
	}
}

func (c *Client) StartSession(ctx context.Context, routeID string) error {
	return c.do(ctx, fiber.MethodPost, trackingPath(routeID, "start"), nil, nil)
}

func (c *Client) SubmitPing(ctx context.Context, ping pipeline.ConfirmedPing) (pipeline.ConfirmedPing, error) {
	body := pingRequest{
		Lat:            ping.Lat,
		Lon:            ping.Lon,
		AccuracyMeters: ping.AccuracyMeters,
		SpeedMps:       ping.SpeedMps,
		HeadingDegrees: ping.HeadingDegrees,
		CreatedAt:      ping.CreatedAt,
	}
	var stored pipeline.ConfirmedPing
	if err := c.do(ctx, fiber.MethodPost, trackingPath(ping.RouteID, "pings"), body, &stored); err != nil {
		return pipeline.ConfirmedPing{}, err
	}
	return stored, nil
}

func (c *Client) StopSession(ctx context.Context, routeID string) error {
	return c.do(ctx, fiber.MethodPost, trackingPath(routeID, "stop"), nil, nil)
}

func (c *Client) FetchPings(ctx context.Context, routeID string) ([]pipeline.ConfirmedPing, error) {
	var pings []pipeline.ConfirmedPing
	if err := c.do(ctx, fiber.MethodGet, trackingPath(routeID, "pings"), nil, &pings); err != nil {
		return nil, err
	}
	return pings, nil
}

// FetchAnalytics returns ErrNoData for a 404 or an empty payload.
func (c *Client) FetchAnalytics(ctx context.Context, routeID string) (Analytics, error) {
	var a Analytics
	err := c.do(ctx, fiber.MethodGet, trackingPath(routeID, "analytics"), nil, &a)
	var se *StatusError
	if errors.As(err, &se) && se.Code == fiber.StatusNotFound {
		return Analytics{}, ErrNoData
	}
	if err != nil {
		return Analytics{}, err
	}
	if a.Summary.PingCount == 0 || a.Message != "" {
		return a, ErrNoData
	}
	return a, nil
}

func (c *Client) FetchStatus(ctx context.Context, routeID string) (Status, error) {
	var st Status
	err := c.do(ctx, fiber.MethodGet, trackingPath(routeID, "status"), nil, &st)
	return st, err
}

func (c *Client) FetchRoute(ctx context.Context, routeID string) (route.Route, error) {
	var r route.Route
	err := c.do(ctx, fiber.MethodGet, "/routes/"+url.PathEscape(routeID), nil, &r)
	return r, err
}

func trackingPath(routeID, action string) string {
	return "/tracking/routes/" + url.PathEscape(routeID) + "/" + action
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}

	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	if c.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	agent.Timeout(timeout)
	if body != nil {
		agent.JSON(body)
	}
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return err
	}

	code, respBody, errs := agent.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if code < 200 || code > 299 {
		msg := strings.TrimSpace(string(respBody))
		c.log.WithFields(logrus.Fields{"method": method, "path": path, "status": code}).Debug("api request rejected")
		return &StatusError{Code: code, Message: msg}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
