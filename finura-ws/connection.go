package finuraws

import (
	"context"
	"fmt"
	"sync"
	"time"

	finuraauth "github.com/finura-app/finura-go-presence/finura-auth"
	"github.com/finura-app/finura-go-presence/finura-ws/connectiondao"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// State is the handshake state of a connection.
type State int

const (
	StateOpenUnauthenticated State = iota
	StateAuthenticating
	StateAuthorized
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpenUnauthenticated:
		return "OPEN_UNAUTHENTICATED"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateAuthorized:
		return "AUTHORIZED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type outbound struct {
	data []byte

	close     bool
	closeCode int
	reason    string
}

// Connection is one live websocket session. Its reader goroutine drives the
// handshake and keeps reading while the token is validated in the background;
// a writer goroutine owns every data write.
type Connection struct {
	id        string
	createdAt time.Time
	handler   *Handler
	conn      *websocket.Conn
	logger    zerolog.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	outbox     chan outbound
	closed     chan struct{}
	writerDone chan struct{}
	tasks      sync.WaitGroup

	mu        sync.Mutex
	state     State
	user      *finuraauth.UserRecord
	handshake *time.Timer
	closeCode int
}

func newConnection(h *Handler, conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Connection{
		id:         id,
		createdAt:  time.Now(),
		handler:    h,
		conn:       conn,
		logger:     h.Logger.With().Str("connection_id", id).Logger(),
		ctx:        ctx,
		cancel:     cancel,
		outbox:     make(chan outbound, h.Config.OutboxSize),
		closed:     make(chan struct{}),
		writerDone: make(chan struct{}),
		state:      StateOpenUnauthenticated,
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) CreatedAt() time.Time { return c.createdAt }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// User returns the authorized user, or nil before authorization.
func (c *Connection) User() *finuraauth.UserRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// CloseCode returns the code the server closed the connection with, or 0.
func (c *Connection) CloseCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// Done is closed once the connection has reached CLOSED.
func (c *Connection) Done() <-chan struct{} { return c.closed }

func (c *Connection) run() {
	c.mu.Lock()
	c.handshake = time.AfterFunc(c.handler.Config.HandshakeTimeout, c.handshakeExpired)
	c.mu.Unlock()

	c.logger.Debug().Msg("connection opened")

	go c.writeLoop()
	c.readLoop()

	c.Close(websocket.CloseNormalClosure, "")
	c.tasks.Wait()
	<-c.writerDone

	if c.wasAuthorized() {
		c.unlogConnection()
	}
}

func (c *Connection) wasAuthorized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user != nil
}

func (c *Connection) readLoop() {
	cfg := c.handler.Config
	c.conn.SetReadLimit(cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.logger.Debug().Err(err).Msg("read failed")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))

		if !c.handleMessage(data) {
			return
		}
	}
}

// handleMessage reports whether the read loop should continue.
func (c *Connection) handleMessage(data []byte) bool {
	msg, err := ParseMessage(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("invalid message format")
		c.protocolViolation("Invalid format")
		return false
	}

	c.mu.Lock()
	state := c.state
	if state == StateOpenUnauthenticated && msg.Type == MsgAuthorization && msg.Token != "" {
		c.state = StateAuthenticating
		c.tasks.Add(1)
		c.mu.Unlock()

		go c.authorize(msg.Token)
		return true
	}
	c.mu.Unlock()

	switch state {
	case StateOpenUnauthenticated, StateAuthenticating:
		// nothing but a single AUTHORIZATION is allowed before the ack
		c.logger.Info().Str("type", msg.Type).Str("state", state.String()).Msg("unauthorized message rejected")
		c.protocolViolation("Not authorized")
		return false

	case StateAuthorized:
		if msg.Type == MsgAuthorization {
			c.logger.Info().Msg("re-authorization rejected")
			c.Send(ErrorMessage("Already authorized"))
			return true
		}
		c.logger.Debug().Str("type", msg.Type).Msg("ignoring message")
		return true

	default:
		return false
	}
}

func (c *Connection) protocolViolation(message string) {
	c.handler.Metrics.Handshakes.WithLabelValues(outcomeProtocolError).Inc()
	c.Send(ErrorMessage(message))
	c.Close(CloseProtocolError, message)
}

// authorize validates token and moves the connection from AUTHENTICATING to
// AUTHORIZED. It runs beside the read loop.
func (c *Connection) authorize(token string) {
	defer c.tasks.Done()

	user, err := c.handler.Validator.Validate(c.ctx, token, false)
	if err != nil {
		if c.ctx.Err() != nil {
			// closed while the validator was in flight
			return
		}
		outcome := outcomeInvalid
		if finuraauth.IsUnavailable(err) {
			outcome = outcomeUnavailable
		}
		c.handler.Metrics.Handshakes.WithLabelValues(outcome).Inc()
		c.logger.Warn().Err(err).Msg("authorization failed")
		c.Send(ErrorMessage("Authorization failed"))
		c.Close(CloseInvalidCredentials, "Invalid token")
		return
	}

	identity := user.Identity()
	logger := c.logger.With().Str("user_id", identity).Logger()

	c.mu.Lock()
	if c.state != StateAuthenticating {
		c.mu.Unlock()
		return
	}
	c.handshake.Stop()
	c.state = StateAuthorized
	c.user = user
	prior := c.handler.Registry.Admit(identity, c)
	c.mu.Unlock()

	if prior != nil {
		logger.Info().Str("prior_connection_id", prior.ID()).Msg("closing existing connection")
		c.handler.Metrics.Superseded.Inc()
		prior.Close(CloseSuperseded, "New connection established")
	}

	c.handler.Metrics.Handshakes.WithLabelValues(outcomeSuccess).Inc()
	c.handler.Metrics.Authorized.Set(float64(c.handler.Registry.Len()))

	c.handler.Metrics.HeartbeatsStarted.Inc()
	go c.heartbeatLoop(token, logger)

	c.Send(AuthorizationSuccessMessage(*user))
	for _, msg := range c.handler.welcome(*user) {
		c.Send(msg)
	}

	logger.Info().Str("username", user.Username).Msg("session authenticated")
	c.logConnection(identity)
}

func (c *Connection) handshakeExpired() {
	closed := c.closeIf(func(s State) bool {
		return s == StateOpenUnauthenticated || s == StateAuthenticating
	}, CloseAuthTimeout, "Authentication timeout")
	if closed {
		c.handler.Metrics.Handshakes.WithLabelValues(outcomeTimeout).Inc()
	}
}

func (c *Connection) heartbeatLoop(token string, logger zerolog.Logger) {
	cfg := c.handler.Config
	ticker := time.NewTicker(cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}

		_, err := c.handler.Validator.Validate(c.ctx, token, true)
		if c.ctx.Err() != nil {
			return
		}
		if err == nil {
			c.handler.Metrics.Heartbeats.WithLabelValues("ok").Inc()
			continue
		}

		c.handler.Metrics.Heartbeats.WithLabelValues("failed").Inc()
		logger.Warn().Err(err).Msg("failed to fetch updated session")
		c.Send(ErrorMessage("Failed to fetch updated session"))
		if cfg.CloseOnHeartbeatFailure && !finuraauth.IsUnavailable(err) {
			c.Close(CloseInvalidCredentials, "Session expired")
			return
		}
	}
}

// Send queues data for the client. It never blocks; a full outbox drops the
// message.
func (c *Connection) Send(data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.outbox <- outbound{data: data}:
		return true
	default:
		c.handler.Metrics.Dropped.Inc()
		c.logger.Warn().Msg("outbox full, dropping message")
		return false
	}
}

// Close moves the connection to CLOSED from any state and ends the transport
// with code. It is safe to call more than once and from any goroutine.
func (c *Connection) Close(code int, reason string) {
	c.closeIf(nil, code, reason)
}

// closeIf closes the connection only when allowed accepts its current state.
// The check and the transition happen under the same lock.
func (c *Connection) closeIf(allowed func(State) bool, code int, reason string) bool {
	c.mu.Lock()
	prev := c.state
	if prev == StateClosed || (allowed != nil && !allowed(prev)) {
		c.mu.Unlock()
		return false
	}
	c.state = StateClosed
	c.closeCode = code
	if c.handshake != nil {
		c.handshake.Stop()
	}
	user := c.user
	c.cancel()
	close(c.closed)
	c.mu.Unlock()

	if prev == StateAuthorized {
		c.handler.Registry.Evict(user.Identity(), c)
		c.handler.Metrics.Authorized.Set(float64(c.handler.Registry.Len()))
	}
	c.handler.Metrics.Closes.WithLabelValues(fmt.Sprint(code)).Inc()
	c.logger.Info().
		Int("code", code).
		Str("reason", reason).
		Str("state", prev.String()).
		Dur("age", time.Since(c.createdAt)).
		Msg("connection closed")

	select {
	case c.outbox <- outbound{close: true, closeCode: code, reason: reason}:
	default:
		c.writeClose(code, reason)
		_ = c.conn.Close()
	}
	return true
}

func (c *Connection) writeLoop() {
	defer close(c.writerDone)

	cfg := c.handler.Config
	ping := time.NewTicker(cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case msg := <-c.outbox:
			if msg.close {
				c.writeClose(msg.closeCode, msg.reason)
				_ = c.conn.Close()
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				_ = c.conn.Close()
				return
			}

		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteWait)); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *Connection) writeClose(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.handler.Config.WriteWait))
}

func (c *Connection) logConnection(identity string) {
	if c.handler.Connections == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.handler.Config.WriteWait)
	defer cancel()

	record := connectiondao.Connection{
		ConnectionID: c.id,
		UserID:       identity,
		RemoteAddr:   c.conn.RemoteAddr().String(),
		ConnectedAt:  time.Now().Unix(),
		TTL:          time.Now().Add(c.handler.Config.ConnTTL).Unix(),
	}
	if err := c.handler.Connections.Put(ctx, record); err != nil {
		c.logger.Error().Err(err).Msg("failed to store connection")
	}
}

func (c *Connection) unlogConnection() {
	if c.handler.Connections == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.handler.Config.WriteWait)
	defer cancel()

	if err := c.handler.Connections.Delete(ctx, c.id); err != nil {
		c.logger.Error().Err(err).Msg("failed to delete connection")
	}
}
