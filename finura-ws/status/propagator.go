package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	URL            string
	Workers        int
	QueueSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	Timeout        time.Duration // per attempt
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

// Propagator delivers status events to the presence service from a fixed pool
// of workers. Events for one identity always land on the same worker, so they
// arrive in the order they were reported.
type Propagator struct {
	config     Config
	httpClient *http.Client
	logger     zerolog.Logger
	queues     []chan Event

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	failed  atomic.Int64
}

func New(config Config, logger zerolog.Logger) *Propagator {
	config = config.withDefaults()
	queues := make([]chan Event, config.Workers)
	for i := range queues {
		queues[i] = make(chan Event, config.QueueSize)
	}
	return &Propagator{
		config:     config,
		httpClient: &http.Client{},
		logger:     logger.With().Str("component", "status").Logger(),
		queues:     queues,
	}
}

func (p *Propagator) shard(identity string) chan Event {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return p.queues[int(h.Sum32()%uint32(len(p.queues)))]
}

// Notify queues an event without blocking. When the identity's queue is full,
// or the propagator is closed, the event is dropped.
func (p *Propagator) Notify(identity string, connected bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.dropped.Add(1)
		return
	}

	select {
	case p.shard(identity) <- Event{UserID: identity, Connected: connected}:
	default:
		p.dropped.Add(1)
		p.logger.Warn().
			Str("user_id", identity).
			Bool("connected", connected).
			Msg("status queue full, dropping event")
	}
}

// Dropped returns the number of events discarded without being attempted.
func (p *Propagator) Dropped() int64 {
	return p.dropped.Load()
}

// Failed returns the number of events that exhausted their attempts.
func (p *Propagator) Failed() int64 {
	return p.failed.Load()
}

// Close stops accepting events. Run returns once the queued events have been
// sent.
func (p *Propagator) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
}

// Run processes events until Close has been called and the queues are drained,
// or until ctx is cancelled.
func (p *Propagator) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for i, q := range p.queues {
		i, q := i, q
		group.Go(func() error {
			return p.work(ctx, i, q)
		})
	}
	return group.Wait()
}

func (p *Propagator) work(ctx context.Context, worker int, queue <-chan Event) error {
	logger := p.logger.With().Int("worker", worker).Logger()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-queue:
			if !ok {
				return nil
			}
			if err := p.deliver(ctx, event); err != nil {
				p.failed.Add(1)
				logger.Error().
					Err(err).
					Str("user_id", event.UserID).
					Bool("connected", event.Connected).
					Msg("failed to propagate status")
			}
		}
	}
}

func (p *Propagator) deliver(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("unable to encode status event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < p.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := p.config.InitialBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if lastErr = p.post(ctx, body); lastErr == nil {
			return nil
		}
		p.logger.Debug().Err(lastErr).Int("attempt", attempt+1).Str("user_id", event.UserID).Msg("status post failed")
	}
	return fmt.Errorf("gave up after %v attempts: %w", p.config.MaxAttempts, lastErr)
}

func (p *Propagator) post(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status endpoint returned %v", resp.Status)
	}
	return nil
}
