package events

import (
	"sync"
	"time"

	"plateful/internal/recipe"
)

// Kind names what changed.
type Kind string

const (
	KindRecipes  Kind = "recipes"
	KindImage    Kind = "image"
	KindAdvisory Kind = "advisory"
	KindSaved    Kind = "saved"
	KindTimer    Kind = "timer_done"
	KindPopular  Kind = "popular"
)

// Event describes a session update pushed to browsers.
// An empty ClientID broadcasts to every subscriber.
type Event struct {
	ClientID string         `json:"-"`
	Kind     Kind           `json:"kind"`
	RecipeID string         `json:"recipeId,omitempty"`
	Recipe   *recipe.Recipe `json:"recipe,omitempty"`
	Message  string         `json:"message,omitempty"`
	At       time.Time      `json:"at"`
}

// Publisher is the side of the broker producers depend on.
type Publisher interface {
	Publish(evt Event)
}

// Broker manages SSE subscribers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[chan Event]string
}

// NewBroker constructs a broker instance.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[chan Event]string),
	}
}

// Subscribe returns a channel that receives the client's events and broadcasts.
func (b *Broker) Subscribe(clientID string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subscribers[ch] = clientID
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel from the broker.
func (b *Broker) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish fan-outs the event to matching subscribers.
func (b *Broker) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	b.mu.RLock()
	for ch, clientID := range b.subscribers {
		if evt.ClientID != "" && evt.ClientID != clientID {
			continue
		}
		select {
		case ch <- evt:
		default:
			// drop if subscriber is slow
		}
	}
	b.mu.RUnlock()
}

// Discard is a Publisher that drops every event.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(Event) {}
