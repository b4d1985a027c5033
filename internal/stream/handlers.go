package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/ws/:routeID", websocket.New(func(c *websocket.Conn) {
		routeID := c.Params("routeID")
		client := hub.Register(routeID)
		defer hub.Unregister(client)

		if err := greet(c, hub, routeID); err != nil {
			hub.log.WithError(err).WithField("route_id", routeID).Debug("websocket greeting failed")
			return
		}

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
	}))
}

// greet runs before any live frame is written.
func greet(c *websocket.Conn, hub *Hub, routeID string) error {
	if err := writeFrame(c, TypeConnectionStatus, routeID, ConnectionStatus{Connected: true, RouteID: routeID}); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, ok, err := hub.initialData(ctx, routeID)
	if !ok {
		return nil
	}
	if err != nil {
		hub.log.WithError(err).WithField("route_id", routeID).Warn("initial data unavailable")
		return writeFrame(c, TypeError, routeID, ErrorData{Message: "initial data unavailable"})
	}
	return writeFrame(c, TypeInitialData, routeID, data)
}

func writeFrame(c *websocket.Conn, kind, routeID string, data any) error {
	msg, err := NewMessage(kind, routeID, data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, payload)
}
