package sync

import (
	"sync"
	"time"
)

// Severity classifies a toast
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Toast is a short-lived status notification
type Toast struct {
	ID        uint64    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StatusEvent is a snapshot of the board delivered to subscribers
type StatusEvent struct {
	Toasts  []Toast `json:"toasts"`
	Alert   string  `json:"alert,omitempty"`
	Version uint64  `json:"version"`
	Online  bool    `json:"online"`
}

// StatusBoard holds what the presentation layer shows about sync: expiring
// toasts, a persistent alert, the data version counter and the online flag.
// Renderers read it directly or subscribe to snapshots.
type StatusBoard struct {
	mu      sync.Mutex
	seq     uint64
	toasts  []Toast
	timers  map[uint64]*time.Timer
	alert   string
	version uint64
	online  bool
	subs    map[int]chan StatusEvent
	nextSub int
	now     func() time.Time
}

// NewStatusBoard creates an empty board
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{
		timers: make(map[uint64]*time.Timer),
		subs:   make(map[int]chan StatusEvent),
		now:    time.Now,
	}
}

// AddToast shows message for d. The toast is removed when d elapses.
func (b *StatusBoard) AddToast(message string, severity Severity, d time.Duration) Toast {
	b.mu.Lock()
	b.seq++
	now := b.now()
	t := Toast{
		ID:        b.seq,
		Message:   message,
		Severity:  severity,
		CreatedAt: now,
		ExpiresAt: now.Add(d),
	}
	b.toasts = append(b.toasts, t)
	id := t.ID
	b.timers[id] = time.AfterFunc(d, func() { b.Dismiss(id) })
	b.publishLocked()
	b.mu.Unlock()
	return t
}

// Dismiss removes a toast before it expires
func (b *StatusBoard) Dismiss(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, t := range b.toasts {
		if t.ID == id {
			b.toasts = append(b.toasts[:i], b.toasts[i+1:]...)
			if timer, ok := b.timers[id]; ok {
				timer.Stop()
				delete(b.timers, id)
			}
			b.publishLocked()
			return
		}
	}
}

// Toasts returns the live toasts, oldest first
func (b *StatusBoard) Toasts() []Toast {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Toast(nil), b.toasts...)
}

// SetAlert sets the persistent alert
func (b *StatusBoard) SetAlert(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.alert == msg {
		return
	}
	b.alert = msg
	b.publishLocked()
}

// ClearAlert removes the persistent alert
func (b *StatusBoard) ClearAlert() {
	b.SetAlert("")
}

// Alert returns the persistent alert, empty when none is set
func (b *StatusBoard) Alert() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alert
}

// Version returns the data version. It grows by one per successful cycle.
func (b *StatusBoard) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// BumpVersion increments the data version and returns the new value
func (b *StatusBoard) BumpVersion() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.version++
	b.publishLocked()
	return b.version
}

// SetOnline records the connectivity state shown to renderers
func (b *StatusBoard) SetOnline(online bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.online == online {
		return
	}
	b.online = online
	b.publishLocked()
}

// Online returns the last recorded connectivity state
func (b *StatusBoard) Online() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online
}

// Snapshot returns the current state of the board
func (b *StatusBoard) Snapshot() StatusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// Subscribe returns a channel of snapshots taken after every change, and a
// function that ends the subscription. A slow reader only misses
// intermediate snapshots, never the latest one.
func (b *StatusBoard) Subscribe() (<-chan StatusEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan StatusEvent, 1)
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	ch <- b.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
}

// Close stops pending expiry timers and ends all subscriptions
func (b *StatusBoard) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, timer := range b.timers {
		timer.Stop()
		delete(b.timers, id)
	}
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *StatusBoard) snapshotLocked() StatusEvent {
	return StatusEvent{
		Toasts:  append([]Toast(nil), b.toasts...),
		Alert:   b.alert,
		Version: b.version,
		Online:  b.online,
	}
}

func (b *StatusBoard) publishLocked() {
	if len(b.subs) == 0 {
		return
	}
	ev := b.snapshotLocked()
	for _, ch := range b.subs {
		// replace an unread snapshot with the newer one
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}
