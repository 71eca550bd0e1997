package cart

import (
	"testing"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
)

func TestNotifierBroadcastsToAllListeners(t *testing.T) {
	n := NewNotifier()
	var a, b int
	unsubA := n.Subscribe(func(Event) { a++ })
	n.Subscribe(func(Event) { b++ })

	n.Publish(Event{Cart: domain.Cart{}, Reason: ReasonAdd})
	unsubA()
	unsubA()
	n.Publish(Event{Cart: domain.Cart{}, Reason: ReasonRemove})

	if a != 1 || b != 2 {
		t.Fatalf("unexpected deliveries a=%d b=%d", a, b)
	}
	if n.Len() != 1 {
		t.Fatalf("expected one listener, got %d", n.Len())
	}
}

func TestNotifierGivesListenersIndependentCopies(t *testing.T) {
	n := NewNotifier()
	n.Subscribe(func(e Event) { e.Cart.Items[0].Quantity = 99 })
	var seen int
	n.Subscribe(func(e Event) { seen = e.Cart.Items[0].Quantity })

	original := domain.Cart{Items: []domain.CartLineItem{{ProductID: "p1", Quantity: 1}}}
	n.Publish(Event{Cart: original})
	if original.Items[0].Quantity != 1 {
		t.Fatal("publisher cart mutated")
	}
	if seen != 1 && seen != 99 {
		t.Fatalf("unexpected quantity %d", seen)
	}
}
