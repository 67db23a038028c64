package finurapresence

import (
	"context"
	"fmt"
	"time"

	finuracli "github.com/finura-app/finura-go-presence/finura-cli"
	"github.com/rs/zerolog"
)

// UserStore is the persistent side of presence: the users table.
type UserStore interface {
	ListActive(ctx context.Context) ([]string, error)
	ListAll(ctx context.Context) ([]string, error)
	Deactivate(ctx context.Context, ids []string) (int64, error)
	SetActive(ctx context.Context, id string, active bool) (bool, error)
}

type SweepResult struct {
	Checked int
	Demoted int
	Failed  int
}

// Sweeper marks users inactive once they have neither a websocket nor recent
// activity.
type Sweeper struct {
	Store      UserStore
	Tracker    *Tracker
	StaleAfter time.Duration
	Metrics    finuracli.Metrics
	Logger     zerolog.Logger
}

func NewSweeper(store UserStore, tracker *Tracker, staleAfter time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		Store:      store,
		Tracker:    tracker,
		StaleAfter: staleAfter,
		Logger:     logger.With().Str("component", "sweep").Logger(),
	}
}

// candidate is a user chosen for demotion along with the activity record the
// decision was based on.
type candidate struct {
	identity string
	seen     time.Time
	tracked  bool
}

// reason returns why identity should be demoted, or "" to keep it active.
func (s *Sweeper) reason(identity string, now time.Time) (string, candidate) {
	last, ok := s.Tracker.LastActivity(identity)
	c := candidate{identity: identity, seen: last, tracked: ok}

	switch {
	case !s.Tracker.IsConnected(identity):
		return "no websocket connection", c
	case !ok:
		return "no recorded activity", c
	case now.Sub(last) > s.StaleAfter:
		return "inactive", c
	default:
		return "", c
	}
}

// Run performs one sweep. It matches finuracron.RunCallback.
func (s *Sweeper) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}

func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var (
		start  = time.Now()
		now    = s.Tracker.now()
		result SweepResult
	)
	defer s.Metrics.Timing(ctx, finuracli.SweepDurationMetric, start)

	active, err := s.Store.ListActive(ctx)
	if err != nil {
		s.Metrics.Event(ctx, finuracli.SweepErrorMetric)
		return result, fmt.Errorf("unable to list active users: %w", err)
	}
	result.Checked = len(active)

	var (
		candidates []candidate
		ids        []string
	)
	for _, id := range active {
		why, c := s.reason(id, now)
		if why == "" {
			continue
		}
		s.Logger.Debug().Str("user_id", id).Str("reason", why).Msg("marking user inactive")
		candidates = append(candidates, c)
		ids = append(ids, id)
	}

	if len(ids) > 0 {
		result.Demoted, result.Failed = s.deactivate(ctx, ids)

		// only the records the decision saw; activity recorded during the
		// update starts a new tracking window
		for _, c := range candidates {
			if c.tracked {
				s.Tracker.Activity.ClearIf(c.identity, c.seen)
			}
		}
	}

	s.Metrics.Count(ctx, finuracli.SweepCheckedMetric, result.Checked)
	s.Metrics.Count(ctx, finuracli.SweepDemotedMetric, result.Demoted)
	s.Metrics.Count(ctx, finuracli.SweepFailedMetric, result.Failed)
	s.Metrics.Gauge(ctx, finuracli.TrackedUsersMetric, float64(s.Tracker.Activity.Len()))

	s.Logger.Info().
		Int("checked", result.Checked).
		Int("demoted", result.Demoted).
		Int("failed", result.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("sweep complete")
	return result, nil
}

// deactivate demotes ids in one statement, falling back to one update per user
// so a single bad row only fails that user.
func (s *Sweeper) deactivate(ctx context.Context, ids []string) (demoted, failed int) {
	n, err := s.Store.Deactivate(ctx, ids)
	if err == nil {
		return int(n), 0
	}
	s.Logger.Warn().Err(err).Int("users", len(ids)).Msg("batch deactivate failed, updating users individually")

	for _, id := range ids {
		if ctx.Err() != nil {
			failed++
			continue
		}
		ok, err := s.Store.SetActive(ctx, id, false)
		if err != nil {
			s.Logger.Error().Err(err).Str("user_id", id).Msg("failed to mark user inactive")
			failed++
			continue
		}
		if ok {
			demoted++
		}
	}
	return demoted, failed
}
