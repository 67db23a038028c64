// Package finurarest provides REST API utilities with CORS support and common middleware.
package finurarest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	finuracli "github.com/finura-app/finura-go-presence/finura-cli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

func Middlewares(logger zerolog.Logger, routes chi.Router) chi.Router {
	routes.Use(
		middleware.RequestID,
		withCORS(),
		withLogger(logger),
		middleware.Recoverer,
	)
	return routes
}

// Webserver serves routes on CommonOpts.Port until ctx is cancelled, then
// shuts down gracefully.
func Webserver(ctx context.Context, service finuracli.Service, routes http.Handler) error {
	logger := finuracli.Logger(service)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%v", finuracli.CommonOpts.Port),
		Handler:           routes,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info().Int("port", finuracli.CommonOpts.Port).Msg("starting http server")
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("http server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("unable to shut down http server: %w", err)
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func Healthz(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the {success:false, error} envelope the finura APIs use.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func withCORS() func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
	})
}

func withLogger(logger zerolog.Logger) func(handler http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			l := logger.With().Str("request_id", middleware.GetReqID(req.Context())).Logger()
			ctx := l.WithContext(req.Context())
			req = req.WithContext(ctx)
			handler.ServeHTTP(w, req)
		})
	}
}
