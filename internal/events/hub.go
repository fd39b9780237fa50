package events

import (
	"sync"
	"sync/atomic"
	"time"

	"vrdl/internal/queue"
)

// Kind names an event.
type Kind string

const (
	KindQueueChanged     Kind = "queue-changed"
	KindInstallSucceeded Kind = "install-succeeded"
	KindDeviceAttached   Kind = "device-attached"
)

// Event is one notification. Queue is set for queue-changed; DeviceID for
// install-succeeded and device-attached.
type Event struct {
	Kind     Kind
	Seq      uint64
	Time     time.Time
	Queue    []queue.Item
	DeviceID string
	Release  string
}

const defaultBuffer = 32

// Hub distributes events to subscribers. Publishing never blocks: a full
// subscriber loses its oldest pending event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	seq    atomic.Uint64
	now    func() time.Time
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*Subscription), now: time.Now}
}

// Subscription receives events until closed.
type Subscription struct {
	id   uint64
	hub  *Hub
	ch   chan Event
	once sync.Once
}

// C returns the delivery channel. It is closed by Close.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

// Subscribe registers a subscriber with the given buffer size.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{id: h.nextID, hub: h, ch: make(chan Event, buffer)}
	h.subs[sub.id] = sub
	return sub
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish stamps evt and delivers it to every subscriber.
func (h *Hub) Publish(evt Event) Event {
	evt.Seq = h.seq.Add(1)
	if evt.Time.IsZero() {
		evt.Time = h.now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		deliver(sub.ch, evt.clone())
	}
	return evt
}

// clone gives each subscriber its own queue snapshot.
func (e Event) clone() Event {
	if e.Queue != nil {
		items := make([]queue.Item, len(e.Queue))
		for i, item := range e.Queue {
			items[i] = item.Clone()
		}
		e.Queue = items
	}
	return e
}

func deliver(ch chan Event, evt Event) {
	for {
		select {
		case ch <- evt:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// PublishInstallSucceeded announces a successful install immediately.
func (h *Hub) PublishInstallSucceeded(release, deviceID string) {
	h.Publish(Event{Kind: KindInstallSucceeded, Release: release, DeviceID: deviceID})
}

// PublishDeviceAttached announces a newly attached headset.
func (h *Hub) PublishDeviceAttached(deviceID string) {
	h.Publish(Event{Kind: KindDeviceAttached, DeviceID: deviceID})
}
