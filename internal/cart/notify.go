package cart

import (
	"sync"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
)

// Reason labels what changed the cart.
type Reason string

const (
	ReasonAdd    Reason = "add"
	ReasonUpdate Reason = "update"
	ReasonRemove Reason = "remove"
	ReasonClear  Reason = "clear"
	ReasonSync   Reason = "sync"
)

// Event is broadcast after every successful mutation.
type Event struct {
	Cart   domain.Cart `json:"cart"`
	Reason Reason      `json:"reason"`
}

// Notifier fans cart-changed events out to any number of listeners.
// Delivery is synchronous on the publishing goroutine; listeners must not block.
type Notifier struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]func(Event)
}

// NewNotifier constructs a Notifier with no listeners.
func NewNotifier() *Notifier {
	return &Notifier{listeners: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a function that removes it. Calling the returned function twice is safe.
func (n *Notifier) Subscribe(fn func(Event)) func() {
	if fn == nil {
		return func() {}
	}
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

// Publish delivers evt to every current listener, each with its own copy of the cart.
func (n *Notifier) Publish(evt Event) {
	n.mu.RLock()
	targets := make([]func(Event), 0, len(n.listeners))
	for _, fn := range n.listeners {
		targets = append(targets, fn)
	}
	n.mu.RUnlock()

	for _, fn := range targets {
		fn(Event{Cart: evt.Cart.Clone(), Reason: evt.Reason})
	}
}

// Len reports the number of listeners.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}
