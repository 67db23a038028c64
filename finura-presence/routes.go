package finurapresence

import (
	"encoding/json"
	"fmt"
	"net/http"

	finuraauth "github.com/finura-app/finura-go-presence/finura-auth"
	finurarest "github.com/finura-app/finura-go-presence/finura-rest"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type statusRequest struct {
	UserID    finuraauth.Identity `json:"user_id"`
	Connected *bool               `json:"connected"`
}

type activityRequest struct {
	UserID finuraauth.Identity `json:"user_id"`
}

type server struct {
	tracker *Tracker
	store   UserStore
}

// Routes serves the status API the gateway and other services report to.
func Routes(logger zerolog.Logger, tracker *Tracker, store UserStore) chi.Router {
	s := server{tracker: tracker, store: store}

	router := finurarest.Middlewares(logger, chi.NewRouter())
	router.Get("/healthz", finurarest.Healthz)
	router.Post("/api/websocket-status", s.handleWebsocketStatus)
	router.Post("/api/activity", s.handleRecordActivity)
	router.Get("/api/activity", s.handleActivityStatus)
	return router
}

func (s server) handleWebsocketStatus(w http.ResponseWriter, req *http.Request) {
	var input statusRequest
	if err := json.NewDecoder(req.Body).Decode(&input); err != nil || input.UserID == "" || input.Connected == nil {
		finurarest.WriteError(w, http.StatusBadRequest, "Missing user_id or connected status")
		return
	}

	var (
		identity  = string(input.UserID)
		connected = *input.Connected
		state     = "disconnected"
	)
	if connected {
		state = "connected"
	}
	s.tracker.SetConnected(identity, connected)
	zerolog.Ctx(req.Context()).Info().Str("user_id", identity).Bool("connected", connected).Msg("websocket status updated")

	finurarest.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("WebSocket status updated for user %v: %v", identity, state),
	})
}

func (s server) handleRecordActivity(w http.ResponseWriter, req *http.Request) {
	var input activityRequest
	if err := json.NewDecoder(req.Body).Decode(&input); err != nil || input.UserID == "" {
		finurarest.WriteError(w, http.StatusBadRequest, "Missing user_id")
		return
	}

	s.tracker.RecordActivity(string(input.UserID))
	finurarest.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s server) handleActivityStatus(w http.ResponseWriter, req *http.Request) {
	ids, err := s.store.ListAll(req.Context())
	if err != nil {
		zerolog.Ctx(req.Context()).Error().Err(err).Msg("unable to list users")
		finurarest.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	finurarest.WriteJSON(w, http.StatusOK, s.tracker.Status(ids))
}
