// Package status reports websocket connects and disconnects to the presence
// service.
package status

// Notifier receives connection status changes. Implementations must not block.
type Notifier interface {
	Notify(identity string, connected bool)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(string, bool) {}

type NotifierFunc func(identity string, connected bool)

func (f NotifierFunc) Notify(identity string, connected bool) {
	f(identity, connected)
}

// Event is the body POSTed to the status endpoint.
type Event struct {
	UserID    string `json:"user_id"`
	Connected bool   `json:"connected"`
}
