// Package finuraws is the finura presence gateway: it authenticates websocket
// connections against the session authority, keeps one live connection per
// user, revalidates sessions on a heartbeat, and reports connects and
// disconnects to the presence service.
package finuraws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	finuraauth "github.com/finura-app/finura-go-presence/finura-auth"
	"github.com/finura-app/finura-go-presence/finura-ws/connectiondao"
	"github.com/finura-app/finura-go-presence/finura-ws/status"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var (
	ErrNotConnected = errors.New("user is not connected")
	ErrNotDelivered = errors.New("message could not be queued")
)

type Config struct {
	HandshakeTimeout        time.Duration
	HeartbeatInterval       time.Duration
	CloseOnHeartbeatFailure bool

	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64
	OutboxSize      int
	ConnTTL         time.Duration // TTL for logged connection records
}

func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		HeartbeatInterval: 60 * time.Second,
		PingInterval:      30 * time.Second,
		PongWait:          75 * time.Second,
		WriteWait:         10 * time.Second,
		MaxMessageBytes:   64 << 10,
		OutboxSize:        64,
		ConnTTL:           2 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = d.MaxMessageBytes
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = d.OutboxSize
	}
	if c.ConnTTL <= 0 {
		c.ConnTTL = d.ConnTTL
	}
	return c
}

// ConnectionLog records authorized connections outside the process, where any
// gateway can look them up.
type ConnectionLog interface {
	Put(ctx context.Context, conn connectiondao.Connection) error
	Get(ctx context.Context, connectionID string) (*connectiondao.Connection, error)
	Delete(ctx context.Context, connectionID string) error
}

// WelcomeFunc returns the messages sent to a user right after authorization.
type WelcomeFunc func(user finuraauth.UserRecord) [][]byte

func DefaultWelcome(user finuraauth.UserRecord) [][]byte {
	return [][]byte{
		NotificationMessage("Welcome back, "+user.DisplayName(), "FINURA"),
	}
}

// Handler upgrades HTTP requests to presence connections.
type Handler struct {
	Config      Config
	Validator   finuraauth.Validator
	Registry    *Registry
	Status      status.Notifier
	Connections ConnectionLog // optional
	Welcome     WelcomeFunc
	Metrics     *Metrics
	Logger      zerolog.Logger

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*Connection]struct{}
}

func NewHandler(cfg Config, validator finuraauth.Validator, logger zerolog.Logger) *Handler {
	h := &Handler{
		Config:    cfg.withDefaults(),
		Validator: validator,
		Status:    status.Nop{},
		Welcome:   DefaultWelcome,
		Metrics:   NewMetrics(prometheus.NewRegistry()),
		Logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		conns: map[*Connection]struct{}{},
	}
	h.Registry = NewRegistry(status.NotifierFunc(h.notify))
	return h
}

// notify forwards registry changes to Status, which may be replaced after
// construction.
func (h *Handler) notify(identity string, connected bool) {
	h.Status.Notify(identity, connected)
}

func (h *Handler) welcome(user finuraauth.UserRecord) [][]byte {
	if h.Welcome == nil {
		return nil
	}
	return h.Welcome(user)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ws, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.Logger.Warn().Err(err).Str("remote_addr", req.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	c := newConnection(h, ws)
	h.track(c)
	defer h.untrack(c)

	c.run()
}

func (h *Handler) track(c *Connection) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	h.Metrics.Connections.Set(float64(n))
}

func (h *Handler) untrack(c *Connection) {
	h.mu.Lock()
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()
	h.Metrics.Connections.Set(float64(n))
}

// Open returns the number of open transport connections in any state.
func (h *Handler) Open() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Deliver pushes a protocol message to identity's live connection.
func (h *Handler) Deliver(identity string, msg []byte) error {
	c := h.Registry.Lookup(identity)
	if c == nil {
		return ErrNotConnected
	}
	if !c.Send(msg) {
		return ErrNotDelivered
	}
	return nil
}

// Shutdown closes every open connection with CloseGoingAway.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	h.Logger.Info().Int("connections", len(conns)).Msg("closing connections")
	for _, c := range conns {
		c.Close(websocket.CloseGoingAway, "Server shutting down")
	}
}
