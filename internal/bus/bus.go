// Package bus is the typed publish/subscribe channel between ledger
// mutations and everything that wants to refresh afterwards. Delivery is
// at-least-once per subscriber with per-poll publish ordering; a subscriber
// that falls behind loses events rather than blocking producers, which is
// safe because consumers re-fetch instead of applying payloads.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/predictrack/predictrack-go/internal/model"
)

const defaultBuffer = 64

type subscriber struct {
	ch chan model.Event
}

// Bus fans events out to any number of subscribers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscriber
	nextID  int
	buffer  int
	dropped atomic.Uint64
	log     zerolog.Logger
}

func New(log zerolog.Logger) *Bus {
	return NewWithBuffer(log, defaultBuffer)
}

func NewWithBuffer(log zerolog.Logger, buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{
		subs:   make(map[int]*subscriber),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release it; afterwards the channel is closed.
func (b *Bus) Subscribe() (<-chan model.Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan model.Event, b.buffer)}
	b.subs[id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish delivers the event to every subscriber without blocking. Events
// published from the same goroutine arrive in publish order, which is all
// the same-poll ordering guarantee requires since mutations on one poll are
// serialized upstream.
func (b *Bus) Publish(evt model.Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
			b.log.Warn().
				Str("type", string(evt.Type)).
				Str("poll_id", evt.PollID).
				Msg("bus: subscriber buffer full, event dropped")
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many events were lost to full subscriber buffers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
