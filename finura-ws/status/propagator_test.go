package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var event Event
		err := json.NewDecoder(req.Body).Decode(&event)
		assert.Nil(t, err)
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

		r.mu.Lock()
		r.events = append(r.events, event)
		r.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func runPropagator(t *testing.T, p *Propagator) func() {
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	return func() {
		p.Close()
		select {
		case err := <-done:
			assert.Nil(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("propagator did not drain")
		}
	}
}

func TestPropagator(t *testing.T) {
	t.Run("delivers events in order per identity", func(t *testing.T) {
		var r recorder
		server := httptest.NewServer(r.handler(t))
		defer server.Close()

		p := New(Config{URL: server.URL, Workers: 4}, zerolog.Nop())
		stop := runPropagator(t, p)

		p.Notify("42", true)
		p.Notify("42", false)
		p.Notify("42", true)
		stop()

		assert.Equal(t, []Event{
			{UserID: "42", Connected: true},
			{UserID: "42", Connected: false},
			{UserID: "42", Connected: true},
		}, r.Events())
		assert.EqualValues(t, 0, p.Dropped())
	})

	t.Run("retries failed posts", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		p := New(Config{URL: server.URL, Workers: 1, MaxAttempts: 3, InitialBackoff: time.Millisecond}, zerolog.Nop())
		stop := runPropagator(t, p)
		p.Notify("42", true)
		stop()

		assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
		assert.EqualValues(t, 0, p.Failed())
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		p := New(Config{URL: server.URL, Workers: 1, MaxAttempts: 2, InitialBackoff: time.Millisecond}, zerolog.Nop())
		stop := runPropagator(t, p)
		p.Notify("42", false)
		stop()

		assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
		assert.EqualValues(t, 1, p.Failed())
	})

	t.Run("drops when queue is full", func(t *testing.T) {
		p := New(Config{URL: "http://127.0.0.1:1", Workers: 1, QueueSize: 1}, zerolog.Nop())

		p.Notify("42", true) // queued, no worker running
		p.Notify("42", false)
		p.Notify("43", true)
		assert.EqualValues(t, 2, p.Dropped())
	})

	t.Run("drops after close", func(t *testing.T) {
		p := New(Config{URL: "http://127.0.0.1:1"}, zerolog.Nop())
		p.Close()
		p.Close()
		p.Notify("42", true)
		assert.EqualValues(t, 1, p.Dropped())
	})

	t.Run("notify never blocks on a slow endpoint", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			<-release
		}))
		defer server.Close()
		defer close(release)

		p := New(Config{URL: server.URL, Workers: 1, QueueSize: 2, Timeout: time.Second}, zerolog.Nop())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go p.Run(ctx)

		start := time.Now()
		for i := 0; i < 100; i++ {
			p.Notify("42", i%2 == 0)
		}
		assert.True(t, time.Since(start) < time.Second)
		assert.True(t, p.Dropped() > 0)
	})
}

func TestNotifierFunc(t *testing.T) {
	var got Event
	var n Notifier = NotifierFunc(func(identity string, connected bool) {
		got = Event{UserID: identity, Connected: connected}
	})
	n.Notify("7", true)
	assert.Equal(t, Event{UserID: "7", Connected: true}, got)

	Nop{}.Notify("7", false)
}
