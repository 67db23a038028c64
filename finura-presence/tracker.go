// Package finurapresence tracks per-user activity and websocket status and
// demotes users that have gone quiet.
package finurapresence

import (
	"sort"
	"sync"
	"time"
)

// ActivityLog holds the last time each user was seen doing something.
type ActivityLog struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewActivityLog() *ActivityLog {
	return &ActivityLog{last: map[string]time.Time{}}
}

func (a *ActivityLog) Record(identity string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last[identity] = at
}

func (a *ActivityLog) Last(identity string) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.last[identity]
	return t, ok
}

func (a *ActivityLog) Clear(identity string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.last, identity)
}

// ClearIf removes identity's record only while it still holds seen, so
// activity recorded after seen survives.
func (a *ActivityLog) ClearIf(identity string, seen time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if current, ok := a.last[identity]; ok && current.Equal(seen) {
		delete(a.last, identity)
		return true
	}
	return false
}

func (a *ActivityLog) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.last)
}

// ConnectionFlags records whether each user has a live websocket, as reported
// by the gateway. Users never reported are not connected.
type ConnectionFlags struct {
	mu        sync.RWMutex
	connected map[string]bool
}

func NewConnectionFlags() *ConnectionFlags {
	return &ConnectionFlags{connected: map[string]bool{}}
}

func (f *ConnectionFlags) Set(identity string, connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected[identity] = connected
}

func (f *ConnectionFlags) IsConnected(identity string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected[identity]
}

// Tracker combines the activity log with the connection flags.
type Tracker struct {
	Activity *ActivityLog
	Flags    *ConnectionFlags

	now func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		Activity: NewActivityLog(),
		Flags:    NewConnectionFlags(),
		now:      time.Now,
	}
}

func (t *Tracker) RecordActivity(identity string) {
	t.Activity.Record(identity, t.now())
}

func (t *Tracker) LastActivity(identity string) (time.Time, bool) {
	return t.Activity.Last(identity)
}

// SetConnected stores the websocket status of identity. A disconnect also
// forgets the user's activity.
func (t *Tracker) SetConnected(identity string, connected bool) {
	t.Flags.Set(identity, connected)
	if !connected {
		t.Activity.Clear(identity)
	}
}

func (t *Tracker) IsConnected(identity string) bool {
	return t.Flags.IsConnected(identity)
}

// ActivityStatus describes one user as seen by the tracker.
type ActivityStatus struct {
	UserID       string     `json:"user_id"`
	LastActivity *time.Time `json:"last_activity"`
	IsTracked    bool       `json:"is_tracked"`
	Connected    bool       `json:"connected"`
}

// Status reports the tracked state of each identity, sorted by identity.
func (t *Tracker) Status(identities []string) []ActivityStatus {
	out := make([]ActivityStatus, 0, len(identities))
	for _, id := range identities {
		s := ActivityStatus{
			UserID:    id,
			Connected: t.IsConnected(id),
		}
		if last, ok := t.LastActivity(id); ok {
			last := last
			s.LastActivity = &last
			s.IsTracked = true
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
