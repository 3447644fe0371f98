// Package relay fans call-lifecycle events out to connected dashboard and
// user sessions. Delivery is best-effort: a disconnected or slow session
// misses the event, nothing is queued or retried, and the call store stays
// the single source of truth.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"emergency-response/internal/config"
	"emergency-response/internal/metrics"
	"emergency-response/internal/models"
)

const (
	dashboardChannel  = "relay:dashboard"
	userChannelPrefix = "relay:user:"
)

// envelope wraps a payload published to Redis so an instance can skip
// messages it originated itself.
type envelope struct {
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

// Hub maintains the set of connected sessions and broadcasts events to them.
// When Redis is configured, events are also relayed across instances through
// pub/sub channels.
type Hub struct {
	cfg      config.RelayConfig
	logger   *zap.Logger
	redis    *redis.Client
	metrics  *metrics.Collector
	upgrader websocket.Upgrader

	instanceID string

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub creates a hub. redisClient and collector may be nil; the hub then
// runs single-instance and unmetered.
func NewHub(cfg config.RelayConfig, redisClient *redis.Client, collector *metrics.Collector, logger *zap.Logger) *Hub {
	return &Hub{
		cfg:        cfg,
		logger:     logger.Named("relay"),
		redis:      redisClient,
		metrics:    collector,
		instanceID: uuid.NewString(),
		clients:    make(map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Register adds a session to the subscriber set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	h.logger.Info("Session connected",
		zap.String("client_id", c.ID),
		zap.Bool("dashboard", c.Dashboard),
		zap.String("user_id", c.UserID))
	h.updateSessionGauges()
}

// Unregister removes a session. Safe to call for a session that was already
// removed; a disconnect never errors the broadcaster.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	h.logger.Info("Session disconnected", zap.String("client_id", c.ID))
	h.updateSessionGauges()
}

// BroadcastToDashboards delivers an event to every connected dashboard
// session, in no particular order, and relays it to other instances. The
// timestamp is stamped on a copy; the caller's event is never mutated.
func (h *Hub) BroadcastToDashboards(event *models.Event) error {
	stamped := *event
	stamped.Timestamp = time.Now().UTC()
	data, err := json.Marshal(&stamped)
	if err != nil {
		return err
	}

	h.deliver(data, func(c *Client) bool { return c.Dashboard })
	h.countEvent(string(event.Type))
	h.publish(dashboardChannel, data)
	return nil
}

// NotifyUser delivers an event only to sessions registered under userID. If
// none are connected the event is silently dropped.
func (h *Hub) NotifyUser(userID string, event *models.Event) error {
	stamped := *event
	stamped.Timestamp = time.Now().UTC()
	data, err := json.Marshal(&stamped)
	if err != nil {
		return err
	}

	h.deliver(data, func(c *Client) bool { return !c.Dashboard && c.UserID == userID })
	h.countEvent(string(event.Type))
	h.publish(userChannelPrefix+userID, data)
	return nil
}

// deliver pushes data onto the send queue of every matching session. A
// session whose queue is full is dropped rather than allowed to delay the
// others.
func (h *Hub) deliver(data []byte, match func(*Client) bool) {
	var stale []*Client

	h.mu.RLock()
	for c := range h.clients {
		if !match(c) {
			continue
		}
		select {
		case c.send <- data:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.logger.Warn("Dropping slow session", zap.String("client_id", c.ID))
		h.Unregister(c)
		if h.metrics != nil {
			h.metrics.SessionDropped()
		}
	}
}

// DashboardSessions returns the number of connected dashboard sessions.
func (h *Hub) DashboardSessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.clients {
		if c.Dashboard {
			n++
		}
	}
	return n
}

// UserSessions returns the number of sessions connected for userID.
func (h *Hub) UserSessions(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.clients {
		if !c.Dashboard && c.UserID == userID {
			n++
		}
	}
	return n
}

// HandleDashboardSocket upgrades a dashboard connection and registers it as a
// broadcast subscriber. The session subscribes immediately; there is no
// application-level handshake.
func (h *Hub) HandleDashboardSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade dashboard connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:        uuid.NewString(),
		Dashboard: true,
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, h.cfg.SendBufferSize),
	}

	h.Register(client)
	go client.writePump()
	go client.readPump()
}

// HandleUserSocket upgrades a user-scoped connection. The user id comes from
// the authenticated request context, not from the client payload.
func (h *Hub) HandleUserSocket(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user identity required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade user connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.cfg.SendBufferSize),
	}

	h.Register(client)
	go client.writePump()
	go client.readPump()
}

// publish relays data to other instances through Redis. Failures only log;
// local delivery already happened and the contract is best-effort.
func (h *Hub) publish(channel string, data []byte) {
	if h.redis == nil {
		return
	}

	payload, err := json.Marshal(envelope{Origin: h.instanceID, Data: data})
	if err != nil {
		return
	}

	if err := h.redis.Publish(context.Background(), channel, payload).Err(); err != nil {
		h.logger.Warn("Failed to relay event to Redis",
			zap.String("channel", channel),
			zap.Error(err))
	}
}

// RunRedisRelay subscribes to the relay channels and re-delivers events
// published by other instances to the local sessions. Blocks until ctx is
// done or the subscription closes.
func (h *Hub) RunRedisRelay(ctx context.Context) {
	if h.redis == nil {
		return
	}

	pubsub := h.redis.PSubscribe(ctx, "relay:*")
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
			h.handleRelayed(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (h *Hub) handleRelayed(channel string, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.logger.Warn("Discarding malformed relayed event", zap.Error(err))
		return
	}
	if env.Origin == h.instanceID {
		return
	}

	switch {
	case channel == dashboardChannel:
		h.deliver(env.Data, func(c *Client) bool { return c.Dashboard })
	case strings.HasPrefix(channel, userChannelPrefix):
		userID := strings.TrimPrefix(channel, userChannelPrefix)
		h.deliver(env.Data, func(c *Client) bool { return !c.Dashboard && c.UserID == userID })
	}
}

func (h *Hub) countEvent(eventType string) {
	if h.metrics != nil {
		h.metrics.EventPublished(eventType)
	}
}

func (h *Hub) updateSessionGauges() {
	if h.metrics == nil {
		return
	}

	h.mu.RLock()
	dashboards, users := 0, 0
	for c := range h.clients {
		if c.Dashboard {
			dashboards++
		} else {
			users++
		}
	}
	h.mu.RUnlock()

	h.metrics.SetSessions(dashboards, users)
}
