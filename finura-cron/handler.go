// Package finuracron provides utilities for building in-process scheduled tasks.
package finuracron

import (
	"context"
	"fmt"
	"time"

	finuracli "github.com/finura-app/finura-go-presence/finura-cli"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type RunCallback func(ctx context.Context) error

type Handler struct {
	service  finuracli.Service
	logger   zerolog.Logger
	interval time.Duration

	runOnce RunCallback
}

func NewHandler(
	service finuracli.Service,
	interval time.Duration,
	runOnce RunCallback,
) *Handler {
	return &Handler{
		service:  service,
		logger:   finuracli.Logger(service),
		interval: interval,
		runOnce:  runOnce,
	}
}

// WithLogger replaces the handler's logger.
func (h *Handler) WithLogger(logger zerolog.Logger) *Handler {
	h.logger = logger
	return h
}

// RunOnce runs the task a single time. A failed run is logged and returned;
// it never stops the schedule.
func (h *Handler) RunOnce(ctx context.Context) error {
	h.logger.Info().Msg("running scheduled task")
	if err := h.runOnce(h.logger.WithContext(ctx)); err != nil {
		h.logger.Error().Err(err).Msg("scheduled task failed")
		return err
	}
	return nil
}

// Start runs the task immediately, then every interval until ctx is cancelled.
// Overlapping runs are skipped rather than queued.
func (h *Handler) Start(ctx context.Context) error {
	if h.interval < time.Second {
		return fmt.Errorf("invalid schedule interval %v: must be at least 1s", h.interval)
	}

	_ = h.RunOnce(ctx)

	logger := cronLogger{logger: h.logger}
	c := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	), cron.WithLogger(logger))
	c.Schedule(cron.Every(h.interval), cron.FuncJob(func() {
		_ = h.RunOnce(ctx)
	}))

	h.logger.Info().Dur("interval", h.interval).Msg("scheduled task started")
	c.Start()
	<-ctx.Done()

	// Stop returns a context that is done once any running job completes.
	<-c.Stop().Done()
	h.logger.Info().Msg("scheduled task stopped")
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
