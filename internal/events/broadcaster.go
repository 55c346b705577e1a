package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mr1hm/go-perimeter-risk/internal/models"
)

type Kind string

const (
	KindVerdict  Kind = "verdict"
	KindControls Kind = "controls"
	KindPOIs     Kind = "pois"
	KindLocation Kind = "location"
	KindDeleted  Kind = "deleted"
)

type Event struct {
	OfficeID string              `json:"officeId"`
	Kind     Kind                `json:"kind"`
	Verdict  *models.RiskVerdict `json:"verdict,omitempty"`
	At       time.Time           `json:"at"`
}

const subscriberBuffer = 64

type Broadcaster struct {
	subscribers map[uint64]chan Event
	nextID      atomic.Uint64
	mu          sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan Event),
	}
}

func (b *Broadcaster) Subscribe() (uint64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Publish fans e out to every subscriber. Subscribers with a full buffer miss
// the event.
func (b *Broadcaster) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels so streaming handlers return.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
