package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 16

// Handle identifies a broadcaster. Handles are small opaque values; zero is
// never issued.
type Handle uint64

// Notification announces the time a panel is looking at.
type Notification struct {
	Time   time.Time
	Source Handle
}

// Hub is the broadcast point for time synchronization. Create one per process
// and pass it to every panel.
type Hub struct {
	mu          sync.RWMutex
	enabled     bool
	current     time.Time
	hasCurrent  bool
	source      Handle
	subscribers []*Subscription
	dropped     int64
	closed      bool

	next atomic.Uint64
	log  logrus.FieldLogger
}

// New creates a Hub. Sync starts enabled when enabled is true.
func New(enabled bool, log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		enabled: enabled,
		log:     log.WithField("component", "hub"),
	}
}

// NewHandle issues a fresh broadcaster identity.
func (h *Hub) NewHandle() Handle {
	return Handle(h.next.Add(1))
}

// Subscription delivers notifications to one subscriber.
type Subscription struct {
	hub *Hub
	ch  chan Notification
}

// C returns the notification channel. It is closed by Close or by Hub.Close.
func (s *Subscription) C() <-chan Notification { return s.ch }

// Close unsubscribes. Once it returns no further notification is sent.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Subscribe registers a subscriber. It only sees broadcasts made after this
// call returns.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{hub: h, ch: make(chan Notification, subscriberBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.ch)
		return s
	}
	h.subscribers = append(h.subscribers, s)
	return s
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, sub := range h.subscribers {
		if sub == s {
			h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
			close(s.ch)
			return
		}
	}
}

// Broadcast records t as the current time from source and notifies every
// subscriber, the source included. It does nothing while sync is disabled.
func (h *Hub) Broadcast(t time.Time, source Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.enabled || h.closed {
		h.log.Debug("broadcast ignored, sync disabled")
		return
	}

	h.current = t
	h.hasCurrent = true
	h.source = source
	h.log.WithFields(logrus.Fields{"time": t.Format("15:04:05.000"), "source": source}).Debug("broadcast")

	n := Notification{Time: t, Source: source}
	for _, s := range h.subscribers {
		select {
		case s.ch <- n:
		default:
			// Only the latest time matters: replace the oldest pending one.
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- n:
			default:
			}
			h.dropped++
		}
	}
}

// IsCurrentSource reports whether source made the latest broadcast.
func (h *Hub) IsCurrentSource(source Handle) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hasCurrent && h.source == source
}

// Current returns the latest broadcast time and its source.
func (h *Hub) Current() (time.Time, Handle, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current, h.source, h.hasCurrent
}

// Reset forgets the current time and source.
func (h *Hub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resetLocked()
}

func (h *Hub) resetLocked() {
	h.current = time.Time{}
	h.hasCurrent = false
	h.source = 0
}

// SetEnabled turns sync on or off. Any change resets the current state.
func (h *Hub) SetEnabled(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.enabled == enabled {
		return
	}
	h.enabled = enabled
	h.resetLocked()
	h.log.WithField("enabled", enabled).Info("sync toggled")
}

// Enabled reports whether broadcasts are delivered.
func (h *Hub) Enabled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.enabled
}

// Dropped returns how many pending notifications were replaced because a
// subscriber fell behind.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Close shuts the hub down and closes every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, s := range h.subscribers {
		close(s.ch)
	}
	h.subscribers = nil
	h.resetLocked()
}
