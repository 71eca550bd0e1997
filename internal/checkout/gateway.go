package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoPendingPayment indicates a gateway callback arrived for no waiting authorization.
var ErrNoPendingPayment = errors.New("checkout: no pending payment for order")

// Handle is the payment order created before the gateway UI opens.
type Handle struct {
	Provider     string          `json:"provider"`
	OrderID      string          `json:"orderId"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	ClientSecret string          `json:"clientSecret,omitempty"`
}

// OutcomeKind tags how a gateway interaction ended.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeCancelled OutcomeKind = "cancelled"
	OutcomeFailed    OutcomeKind = "failed"
)

// ParseOutcomeKind maps browser callback statuses onto an OutcomeKind.
func ParseOutcomeKind(value string) (OutcomeKind, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "success", "succeeded", "paid", "completed":
		return OutcomeSuccess, true
	case "cancelled", "canceled", "dismissed", "closed":
		return OutcomeCancelled, true
	case "failed", "failure", "error":
		return OutcomeFailed, true
	default:
		return "", false
	}
}

// Outcome is the result of one gateway interaction.
type Outcome struct {
	Kind      OutcomeKind
	PaymentID string
	Signature string
	Reason    string
}

// Gateway opens the payment UI for handle and blocks until it reports an outcome.
type Gateway interface {
	Authorize(ctx context.Context, handle Handle) Outcome
}

type waiter struct {
	handle Handle
	result chan Outcome
}

// BrowserGateway hands the payment handle to the browser SDK and waits for the browser to post
// the gateway's callback through Resolve. At most one authorization waits at a time.
type BrowserGateway struct {
	mu       sync.Mutex
	waiting  *waiter
	timeout  time.Duration
	onPrompt func(Handle)
}

// NewBrowserGateway builds a gateway that gives up after timeout. onPrompt, when set, is called
// once the handle is ready for the browser.
func NewBrowserGateway(timeout time.Duration, onPrompt func(Handle)) *BrowserGateway {
	return &BrowserGateway{timeout: timeout, onPrompt: onPrompt}
}

// Authorize implements Gateway. Context cancellation and timeout both end as cancelled.
func (g *BrowserGateway) Authorize(ctx context.Context, handle Handle) Outcome {
	w := &waiter{handle: handle, result: make(chan Outcome, 1)}

	g.mu.Lock()
	if g.waiting != nil {
		g.mu.Unlock()
		return Outcome{Kind: OutcomeFailed, Reason: "another payment is awaiting authorization"}
	}
	g.waiting = w
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		if g.waiting == w {
			g.waiting = nil
		}
		g.mu.Unlock()
	}()

	if g.onPrompt != nil {
		g.onPrompt(handle)
	}

	var expired <-chan time.Time
	if g.timeout > 0 {
		timer := time.NewTimer(g.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case out := <-w.result:
		return out
	case <-ctx.Done():
		return Outcome{Kind: OutcomeCancelled, Reason: ctx.Err().Error()}
	case <-expired:
		return Outcome{Kind: OutcomeCancelled, Reason: "payment window expired"}
	}
}

// Resolve delivers the browser's outcome for orderID. Duplicate callbacks are ignored.
func (g *BrowserGateway) Resolve(orderID string, out Outcome) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	w := g.waiting
	if w == nil || w.handle.OrderID != strings.TrimSpace(orderID) {
		return ErrNoPendingPayment
	}
	select {
	case w.result <- out:
	default:
	}
	return nil
}

// Pending returns the handle awaiting the browser, if any.
func (g *BrowserGateway) Pending() (Handle, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.waiting == nil {
		return Handle{}, false
	}
	return g.waiting.handle, true
}
