package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"backend-routetrack/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisPattern = "routes:*:events"

type InitialDataFunc func(ctx context.Context, routeID string) (any, error)

type Hub struct {
	redis      *redis.Client
	instanceID string
	clients    map[string]map[*Client]struct{}
	mu         sync.RWMutex
	initial    InitialDataFunc
	log        logrus.FieldLogger
	cancel     context.CancelFunc
	done       chan struct{}
}

type Client struct {
	RouteID string
	Send    chan []byte
}

func NewHub(redisClient *redis.Client, lg logrus.FieldLogger) *Hub {
	if lg == nil {
		lg = observability.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		redis:      redisClient,
		instanceID: uuid.NewString(),
		clients:    map[string]map[*Client]struct{}{},
		log:        lg,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	if redisClient != nil {
		pubsub := redisClient.PSubscribe(ctx, redisPattern)
		waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
		if _, err := pubsub.Receive(waitCtx); err != nil {
			h.log.WithError(err).Warn("redis psubscribe not confirmed")
		}
		waitCancel()
		go h.subscribeRedis(ctx, pubsub)
	} else {
		close(h.done)
	}
	return h
}

func (h *Hub) SetInitialData(fn InitialDataFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.initial = fn
}

func (h *Hub) initialData(ctx context.Context, routeID string) (any, bool, error) {
	h.mu.RLock()
	fn := h.initial
	h.mu.RUnlock()
	if fn == nil {
		return nil, false, nil
	}
	data, err := fn(ctx, routeID)
	return data, true, err
}

func (h *Hub) Register(routeID string) *Client {
	client := &Client{
		RouteID: routeID,
		Send:    make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[routeID] == nil {
		h.clients[routeID] = map[*Client]struct{}{}
	}
	h.clients[routeID][client] = struct{}{}
	observability.StreamClients.Inc()
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if routeClients, ok := h.clients[client.RouteID]; ok {
		if _, ok := routeClients[client]; !ok {
			return
		}
		delete(routeClients, client)
		if len(routeClients) == 0 {
			delete(h.clients, client.RouteID)
		}
		observability.StreamClients.Dec()
		close(client.Send)
	}
}

// Publish fans out locally and to other instances through redis.
func (h *Hub) Publish(ctx context.Context, routeID, kind string, data any) error {
	msg, err := NewMessage(kind, routeID, data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.deliver(routeID, payload)

	if h.redis != nil {
		relayed, _ := json.Marshal(relay{Origin: h.instanceID, Payload: payload})
		if err := h.redis.Publish(ctx, redisChannel(routeID), relayed).Err(); err != nil {
			h.log.WithError(err).WithField("route_id", routeID).Warn("redis publish error")
			return err
		}
	}
	return nil
}

func (h *Hub) deliver(routeID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[routeID] {
		select {
		case client.Send <- payload:
		default:
			h.log.WithField("route_id", routeID).Warn("subscriber buffer full, frame dropped")
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer close(h.done)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var r relay
			if err := json.Unmarshal([]byte(msg.Payload), &r); err != nil {
				h.log.WithError(err).Debug("redis relay decode error")
				continue
			}
			if r.Origin == h.instanceID {
				continue
			}
			h.deliver(routeIDFromChannel(msg.Channel), r.Payload)
		}
	}
}

func (h *Hub) Close() {
	h.cancel()
	<-h.done
}

func redisChannel(routeID string) string {
	return "routes:" + routeID + ":events"
}

func routeIDFromChannel(ch string) string {
	// routes:{route}:events
	const prefix = "routes:"
	const suffix = ":events"
	if len(ch) <= len(prefix)+len(suffix) || !strings.HasPrefix(ch, prefix) || !strings.HasSuffix(ch, suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
