package reconcile

import (
	"sync"
	"time"
)

type EntityKind string

const (
	KindOrder       EntityKind = "order"
	KindAppointment EntityKind = "appointment"
)

// Notification summarises one applied change.
type Notification struct {
	Entity  EntityKind
	ID      string
	Status  string
	Message string
	At      time.Time
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Tray keeps notifications until their TTL elapses.
type Tray struct {
	ttl   time.Duration
	limit int
	now   func() time.Time

	mu    sync.Mutex
	items []Notification
}

func NewTray(ttl time.Duration, limit int) *Tray {
	return &Tray{ttl: ttl, limit: limit, now: time.Now}
}

func (t *Tray) Notify(n Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n.At.IsZero() {
		n.At = t.now()
	}
	t.items = append(t.pruneLocked(t.now()), n)
	if t.limit > 0 && len(t.items) > t.limit {
		t.items = t.items[len(t.items)-t.limit:]
	}
}

// Active returns the notifications that have not yet expired, oldest first.
func (t *Tray) Active() []Notification {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = t.pruneLocked(t.now())
	out := make([]Notification, len(t.items))
	copy(out, t.items)
	return out
}

func (t *Tray) pruneLocked(now time.Time) []Notification {
	kept := t.items[:0]
	for _, n := range t.items {
		if now.Sub(n.At) < t.ttl {
			kept = append(kept, n)
		}
	}
	return kept
}
