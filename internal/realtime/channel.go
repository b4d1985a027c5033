package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"backend-routetrack/internal/apiclient"
	"backend-routetrack/internal/observability"
	"backend-routetrack/internal/pipeline"
	"backend-routetrack/internal/stream"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	dialTimeout           = 10 * time.Second
	closeGrace            = time.Second
)

var (
	// ErrDegraded means the one reconnect attempt failed.
	ErrDegraded = errors.New("realtime updates degraded")
	ErrClosed   = errors.New("realtime channel closed")
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

type InitialData struct {
	Pings     []pipeline.ConfirmedPing `json:"pings"`
	Analytics apiclient.Analytics      `json:"analytics"`
}

type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "realtime: " + e.Message }

// Handlers run on the read goroutine in arrival order. Any may be nil.
type Handlers struct {
	OnPing       func(pipeline.ConfirmedPing)
	OnSummary    func(apiclient.Analytics)
	OnStatus     func(stream.TrackingStatus)
	OnError      func(error)
	OnInitial    func(InitialData)
	OnConnection func(stream.ConnectionStatus)
}

type Option func(*Channel)

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.delay = d
		}
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

func WithLogger(lg logrus.FieldLogger) Option {
	return func(c *Channel) {
		if lg != nil {
			c.log = lg
		}
	}
}

func WithDeduper(d *PingDeduper) Option {
	return func(c *Channel) { c.dedupe = d }
}

type scheduleFunc func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Channel is one live subscription to a route's realtime stream.
type Channel struct {
	endpoint string
	routeID  string
	handlers Handlers
	dialer   *websocket.Dialer
	delay    time.Duration
	schedule scheduleFunc
	dedupe   *PingDeduper
	log      logrus.FieldLogger

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	cancelTimer func() bool
	closed      bool
}

// New builds a channel for routeID; baseURL is e.g. ws://host:8080/stream/ws.
func New(baseURL, routeID string, h Handlers, opts ...Option) *Channel {
	c := &Channel{
		endpoint: strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(routeID),
		routeID:  routeID,
		handlers: h,
		dialer:   websocket.DefaultDialer,
		delay:    DefaultReconnectDelay,
		schedule: afterFunc,
		log:      observability.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dedupe == nil {
		c.dedupe = NewPingDeduper(DefaultDedupeWindow)
	}
	c.log = c.log.WithField("route_id", routeID)
	return c
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != Disconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = Connecting
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = Disconnected
		return fmt.Errorf("realtime: dial %s: %w", c.endpoint, err)
	}
	if c.closed {
		c.state = Disconnected
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.state = Connected
	go c.readLoop(conn)
	c.log.Info("realtime channel connected")
	return nil
}

// Close is idempotent and cancels a pending reconnect.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.cancelTimer != nil {
		c.cancelTimer()
		c.cancelTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = Disconnected
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	return conn.Close()
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.lost(conn, err)
			return
		}
		if c.isClosed() {
			return
		}
		c.dispatch(data)
	}
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) lost(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Disconnected
	c.cancelTimer = c.schedule(c.delay, c.reconnect)
	c.mu.Unlock()

	_ = conn.Close()
	c.log.WithError(err).WithField("delay", c.delay).Warn("realtime channel lost, reconnect scheduled")
	if h := c.handlers.OnConnection; h != nil {
		h(stream.ConnectionStatus{Connected: false, RouteID: c.routeID})
	}
}

func (c *Channel) reconnect() {
	c.mu.Lock()
	c.cancelTimer = nil
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	err := c.Connect(ctx)
	switch {
	case err == nil:
		observability.RealtimeReconnects.WithLabelValues("success").Inc()
	case errors.Is(err, ErrClosed):
	default:
		observability.RealtimeReconnects.WithLabelValues("failure").Inc()
		c.log.WithError(err).Warn("realtime reconnect failed")
		c.emitError(fmt.Errorf("%w: %v", ErrDegraded, err))
	}
}

func (c *Channel) emitError(err error) {
	if h := c.handlers.OnError; h != nil {
		h(err)
	}
}

func (c *Channel) dispatch(data []byte) {
	var msg stream.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.WithError(err).Debug("undecodable realtime frame")
		return
	}
	if msg.RouteID != "" && msg.RouteID != c.routeID {
		return
	}

	var err error
	switch msg.Type {
	case stream.TypeGPSPing:
		var p pipeline.ConfirmedPing
		if err = decode(msg.Data, &p); err == nil {
			if p.RouteID == "" {
				p.RouteID = c.routeID
			}
			if !c.dedupe.Accept(p) {
				observability.DuplicatePings.Inc()
				return
			}
			if h := c.handlers.OnPing; h != nil {
				h(p)
			}
		}
	case stream.TypeRouteSummary:
		var a apiclient.Analytics
		if err = decode(msg.Data, &a); err == nil && c.handlers.OnSummary != nil {
			c.handlers.OnSummary(a)
		}
	case stream.TypeTrackingStatus:
		var st stream.TrackingStatus
		if err = decode(msg.Data, &st); err == nil && c.handlers.OnStatus != nil {
			c.handlers.OnStatus(st)
		}
	case stream.TypeError:
		var e stream.ErrorData
		if err = decode(msg.Data, &e); err == nil {
			c.emitError(&RemoteError{Message: e.Message})
		}
	case stream.TypeInitialData:
		var init InitialData
		if err = decode(msg.Data, &init); err == nil {
			for i := range init.Pings {
				if init.Pings[i].RouteID == "" {
					init.Pings[i].RouteID = c.routeID
				}
			}
			before := len(init.Pings)
			init.Pings = c.dedupe.Filter(init.Pings)
			if dropped := before - len(init.Pings); dropped > 0 {
				observability.DuplicatePings.Add(float64(dropped))
			}
			if h := c.handlers.OnInitial; h != nil {
				h(init)
			}
		}
	case stream.TypeConnectionStatus:
		var st stream.ConnectionStatus
		if err = decode(msg.Data, &st); err == nil && c.handlers.OnConnection != nil {
			c.handlers.OnConnection(st)
		}
	default:
		c.log.WithField("type", msg.Type).Debug("unknown realtime frame")
		return
	}
	if err != nil {
		c.log.WithError(err).WithField("type", msg.Type).Warn("bad realtime payload")
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
