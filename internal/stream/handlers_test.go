package stream

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
)

func TestStreamHandlersUpgradeRequired(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), NewHub(nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/stream/ws/route-1", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("expected non-200 for non-websocket request")
	}
}

func serve(t *testing.T, hub *Hub) string {
	t.Helper()
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String()
}

func readFrame(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	return decode(t, raw)
}

func TestStreamHandlersGreetingThenLive(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.SetInitialData(func(_ context.Context, routeID string) (any, error) {
		return map[string]string{"route": routeID}, nil
	})
	base := serve(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/stream/ws/route-1", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	if msg := readFrame(t, conn); msg.Type != TypeConnectionStatus {
		t.Fatalf("expected connection_status first, got %s", msg.Type)
	}
	msg := readFrame(t, conn)
	if msg.Type != TypeInitialData || string(msg.Data) != `{"route":"route-1"}` {
		t.Fatalf("unexpected initial data %+v", msg)
	}

	if err := hub.Publish(context.Background(), "route-1", TypeGPSPing, map[string]float64{"lat": 2}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if msg := readFrame(t, conn); msg.Type != TypeGPSPing {
		t.Fatalf("expected live ping, got %s", msg.Type)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("client")); err != nil {
		t.Fatalf("write error: %v", err)
	}
}

func TestStreamHandlersInitialDataError(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.SetInitialData(func(context.Context, string) (any, error) {
		return nil, errors.New("db down")
	})
	base := serve(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/stream/ws/route-2", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	readFrame(t, conn)
	if msg := readFrame(t, conn); msg.Type != TypeError {
		t.Fatalf("expected error frame, got %s", msg.Type)
	}
}

func TestStreamHandlersClientGone(t *testing.T) {
	hub := NewHub(nil, nil)
	base := serve(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/stream/ws/route-3", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	readFrame(t, conn)
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		n := len(hub.clients["route-3"])
		hub.mu.RUnlock()
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client not unregistered")
}
