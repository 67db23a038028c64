package finuraws

import (
	"encoding/json"
	"errors"
	"net/http"

	finurarest "github.com/finura-app/finura-go-presence/finura-rest"
	"github.com/finura-app/finura-go-presence/finura-ws/connectiondao"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// DeliverRequest is the body of POST /api/deliver.
type DeliverRequest struct {
	UserID   string `json:"user_id"`
	Type     string `json:"type"`
	Message  string `json:"message"`
	Sender   string `json:"sender"`
	SenderID string `json:"sender_id"`
}

// Routes mounts the websocket endpoint alongside the gateway's internal API.
func Routes(h *Handler, gatherer prometheus.Gatherer) chi.Router {
	router := finurarest.Middlewares(h.Logger, chi.NewRouter())
	router.Get("/healthz", finurarest.Healthz)
	router.Method(http.MethodGet, "/ws", h)
	router.Post("/api/deliver", h.handleDeliver)
	router.Get("/api/presence", h.handleConnected)
	router.Get("/api/presence/{userID}", h.handlePresence)
	router.Get("/api/connections/{connectionID}", h.handleConnection)
	if gatherer != nil {
		router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return router
}

func (h *Handler) handleDeliver(w http.ResponseWriter, req *http.Request) {
	logger := zerolog.Ctx(req.Context())

	var input DeliverRequest
	if err := json.NewDecoder(req.Body).Decode(&input); err != nil {
		finurarest.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.UserID == "" || input.Message == "" {
		finurarest.WriteError(w, http.StatusBadRequest, "user_id and message are required")
		return
	}

	var msg []byte
	switch input.Type {
	case "", MsgNotification:
		msg = NotificationMessage(input.Message, input.Sender)
	case MsgMail:
		msg = MailMessage(input.Message, input.Sender, input.SenderID)
	default:
		finurarest.WriteError(w, http.StatusBadRequest, "unsupported message type")
		return
	}

	err := h.Deliver(input.UserID, msg)
	switch {
	case errors.Is(err, ErrNotConnected):
		finurarest.WriteError(w, http.StatusNotFound, err.Error())
	case err != nil:
		logger.Warn().Err(err).Str("user_id", input.UserID).Msg("unable to deliver message")
		finurarest.WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		finurarest.WriteJSON(w, http.StatusAccepted, map[string]bool{"success": true})
	}
}

func (h *Handler) handlePresence(w http.ResponseWriter, req *http.Request) {
	userID := chi.URLParam(req, "userID")
	c := h.Registry.Lookup(userID)

	out := map[string]interface{}{
		"success":   true,
		"user_id":   userID,
		"connected": c != nil,
	}
	if c != nil {
		out["connection_id"] = c.ID()
		out["connected_at"] = c.CreatedAt().UTC()
	}
	finurarest.WriteJSON(w, http.StatusOK, out)
}

// handleConnected lists the identities with a live connection on this gateway.
func (h *Handler) handleConnected(w http.ResponseWriter, req *http.Request) {
	finurarest.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"user_ids":   h.Registry.Identities(),
		"open":       h.Open(),
		"authorized": h.Registry.Len(),
	})
}

// handleConnection looks a connection up in the connection log, so it finds
// connections held by other gateways too.
func (h *Handler) handleConnection(w http.ResponseWriter, req *http.Request) {
	if h.Connections == nil {
		finurarest.WriteError(w, http.StatusNotFound, "connection logging is disabled")
		return
	}

	connectionID := chi.URLParam(req, "connectionID")
	conn, err := h.Connections.Get(req.Context(), connectionID)
	switch {
	case errors.Is(err, connectiondao.ErrNotFound):
		finurarest.WriteError(w, http.StatusNotFound, err.Error())
	case err != nil:
		zerolog.Ctx(req.Context()).Warn().Err(err).Str("connection_id", connectionID).Msg("unable to look up connection")
		finurarest.WriteError(w, http.StatusServiceUnavailable, "unable to look up connection")
	default:
		finurarest.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success":    true,
			"connection": conn,
		})
	}
}
