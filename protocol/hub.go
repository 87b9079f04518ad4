package protocol

import (
	"sync"
	"time"

	"github.com/CK6170/canbridge-go/can"
	"github.com/CK6170/canbridge-go/models"
)

// Topic is a multi-subscriber broadcast channel for one event kind.
//
// Delivery is FIFO in subscription order and asynchronous: each subscriber
// gets a buffered channel, and a subscriber whose buffer is full misses
// that message. Publishers never block, which keeps the ingestion path
// independent of slow monitors.
type Topic[T any] struct {
	mu   sync.RWMutex
	subs []chan T
}

// Subscribe registers a new subscriber with the given buffer size
// (minimum 1) and returns its channel.
func (t *Topic[T]) Subscribe(buf int) <-chan T {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan T, buf)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a previously subscribed channel.
func (t *Topic[T]) Unsubscribe(ch <-chan T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.subs {
		if s == ch {
			t.subs = append(t.subs[:i], t.subs[i+1:]...)
			close(s)
			return
		}
	}
}

func (t *Topic[T]) publish(v T) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.subs {
		select {
		case s <- v:
		default:
		}
	}
}

// BootStatus is the decoded bootloader status event.
type BootStatus struct {
	State byte
	Error byte
}

// Hub carries the generic "message observed" stream plus one typed stream
// per semantic event kind. It replaces the original multicast delegates
// with explicit publish-subscribe channels.
type Hub struct {
	// Frames sees every frame in both directions (passive monitoring).
	Frames Topic[can.Frame]

	Raw     Topic[models.RawSample]
	Status  Topic[models.DeviceStatus]
	Version Topic[models.FirmwareVersion]
	Boot    Topic[BootStatus]

	// Lost delivers one timestamp per silence episode.
	Lost Topic[time.Time]
}

// NewHub constructs an empty hub.
func NewHub() *Hub { return &Hub{} }

// PublishLost forwards a silence-timeout notification to subscribers.
func (h *Hub) PublishLost(t time.Time) { h.Lost.publish(t) }
