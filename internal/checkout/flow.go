// Package checkout drives a signed-in user from address selection through payment to a placed
// order. The flow only moves forward, except that payment can go back to address selection.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/address"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/identity"
)

const instrumentationName = "github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/checkout"

// ErrCartChanged means the cart no longer matches what the payment step showed. The flow
// refreshes its snapshot and totals so the next attempt charges what the user now sees.
var ErrCartChanged = fmt.Errorf("%w: cart changed since checkout started", domain.ErrInvalidCheckoutState)

// Step is a checkout state.
type Step string

const (
	StepAddress Step = "address"
	StepPayment Step = "payment"
	StepSuccess Step = "success"
)

// CartSource is the cart the flow prices and clears.
type CartSource interface {
	Get(ctx context.Context) (domain.Cart, error)
	Clear(ctx context.Context) error
}

// AddressSource lists the user's saved addresses.
type AddressSource interface {
	List(ctx context.Context) ([]domain.Address, error)
}

// OrderAPI persists placed orders.
type OrderAPI interface {
	CreateOrder(ctx context.Context, token string, order domain.Order) error
}

// Receipt is the result of a placed order.
type Receipt struct {
	Order domain.Order `json:"order"`
	// PersistError is set when payment was confirmed but the order record could not be stored.
	PersistError string `json:"persistError,omitempty"`
}

// State is a snapshot of the flow for rendering.
type State struct {
	Step            Step                 `json:"step"`
	Addresses       []domain.Address     `json:"addresses"`
	SelectedAddress *domain.Address      `json:"selectedAddress,omitempty"`
	PaymentMethod   domain.PaymentMethod `json:"paymentMethod,omitempty"`
	CartSnapshot    domain.Cart          `json:"cart"`
	Totals          domain.Totals        `json:"totals"`
	Pending         bool                 `json:"pending"`
	PaymentPrompt   *Handle              `json:"paymentPrompt,omitempty"`
	Receipt         *Receipt             `json:"receipt,omitempty"`
	LastError       string               `json:"lastError,omitempty"`
}

// Deps wires a Flow.
type Deps struct {
	Cart       CartSource
	Addresses  AddressSource
	Orders     OrderAPI
	Processor  Processor
	Gateway    Gateway
	Identity   identity.Identity
	Fees       Fees
	ShopID     string
	Restaurant domain.RestaurantInfo
	Clock      func() time.Time
	NewID      func() string
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// Flow is the checkout state machine of one browser session.
type Flow struct {
	cart       CartSource
	addresses  AddressSource
	orders     OrderAPI
	processor  Processor
	gateway    Gateway
	identity   identity.Identity
	fees       Fees
	shopID     string
	restaurant domain.RestaurantInfo
	now        func() time.Time
	newID      func() string
	logger     func(ctx context.Context, event string, fields map[string]any)
	tracer     trace.Tracer
	placed     metric.Int64Counter

	mu      sync.Mutex
	state   State
	attempt *Attempt
}

// New constructs a Flow. Processor and Gateway are only needed for online payments.
func New(deps Deps) (*Flow, error) {
	if deps.Cart == nil {
		return nil, errors.New("checkout: cart is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("checkout: address source is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout: order api is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	placed, err := otel.GetMeterProvider().Meter(instrumentationName).Int64Counter(
		"storefront.checkout.orders",
		metric.WithDescription("Order placement attempts by payment method and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("checkout: create counter: %w", err)
	}
	return &Flow{
		cart:       deps.Cart,
		addresses:  deps.Addresses,
		orders:     deps.Orders,
		processor:  deps.Processor,
		gateway:    deps.Gateway,
		identity:   deps.Identity,
		fees:       deps.Fees,
		shopID:     strings.TrimSpace(deps.ShopID),
		restaurant: deps.Restaurant,
		now:        func() time.Time { return clock().UTC() },
		newID:      newID,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
		placed:     placed,
		state:      State{Step: StepAddress, Addresses: []domain.Address{}},
	}, nil
}

// State returns a copy of the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot()
}

func (f *Flow) snapshot() State {
	out := f.state
	out.Addresses = append([]domain.Address(nil), f.state.Addresses...)
	out.CartSnapshot = f.state.CartSnapshot.Clone()
	if f.state.SelectedAddress != nil {
		addr := *f.state.SelectedAddress
		out.SelectedAddress = &addr
	}
	if f.state.PaymentPrompt != nil {
		prompt := *f.state.PaymentPrompt
		out.PaymentPrompt = &prompt
	}
	if f.state.Receipt != nil {
		receipt := *f.state.Receipt
		out.Receipt = &receipt
	}
	return out
}

// Start (re)enters the address step with a fresh cart snapshot and address list, pre-selecting
// the default address. Load failures are surfaced in LastError and leave safe empty defaults.
func (f *Flow) Start(ctx context.Context) (State, error) {
	if !f.identity.Authenticated(f.now()) {
		return State{}, domain.ErrUnauthenticated
	}

	f.mu.Lock()
	if f.state.Pending {
		f.mu.Unlock()
		return State{}, domain.ErrOrderInFlight
	}
	f.mu.Unlock()

	var problems []string
	cart, err := f.cart.Get(ctx)
	if err != nil {
		problems = append(problems, "cart could not be refreshed")
		f.logger(ctx, "checkout.cart_load_failed", map[string]any{"userID": f.identity.UserID, "error": err.Error()})
	}
	list, err := f.addresses.List(ctx)
	if err != nil {
		problems = append(problems, "addresses could not be loaded")
		f.logger(ctx, "checkout.addresses_load_failed", map[string]any{"userID": f.identity.UserID, "error": err.Error()})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Pending {
		return State{}, domain.ErrOrderInFlight
	}
	f.state = State{
		Step:         StepAddress,
		Addresses:    list,
		CartSnapshot: cart,
		Totals:       ComputeTotals(cart.Items, f.fees),
		LastError:    strings.Join(problems, "; "),
	}
	if f.state.Addresses == nil {
		f.state.Addresses = []domain.Address{}
	}
	if addr, ok := address.Default(list); ok {
		f.state.SelectedAddress = &addr
	}
	return f.snapshot(), nil
}

// SelectAddress chooses a delivery address. It never advances the step.
func (f *Flow) SelectAddress(id string) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Step != StepAddress {
		return f.snapshot(), fmt.Errorf("%w: select address from %s", domain.ErrInvalidCheckoutState, f.state.Step)
	}
	addr, ok := address.Find(f.state.Addresses, id)
	if !ok {
		return f.snapshot(), domain.FieldErrors{"addressId": "is not one of the saved addresses"}
	}
	f.state.SelectedAddress = &addr
	f.state.LastError = ""
	return f.snapshot(), nil
}

// Continue moves from address to payment once an address is selected.
func (f *Flow) Continue() (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Step != StepAddress || f.state.SelectedAddress == nil {
		return f.snapshot(), fmt.Errorf("%w: continue requires a selected address", domain.ErrInvalidCheckoutState)
	}
	f.state.Step = StepPayment
	f.state.LastError = ""
	return f.snapshot(), nil
}

// ChangeAddress returns from payment to address and clears the selection so it is re-confirmed.
func (f *Flow) ChangeAddress() (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Pending {
		return f.snapshot(), domain.ErrOrderInFlight
	}
	if f.state.Step != StepPayment {
		return f.snapshot(), fmt.Errorf("%w: change address from %s", domain.ErrInvalidCheckoutState, f.state.Step)
	}
	f.state.Step = StepAddress
	f.state.SelectedAddress = nil
	f.state.LastError = ""
	return f.snapshot(), nil
}

// SelectPaymentMethod records how the user wants to pay.
func (f *Flow) SelectPaymentMethod(method domain.PaymentMethod) (State, error) {
	method = domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(method))))
	if !method.Valid() {
		return f.State(), domain.FieldErrors{"paymentMethod": "must be online or cod"}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Pending {
		return f.snapshot(), domain.ErrOrderInFlight
	}
	if f.state.Step != StepPayment {
		return f.snapshot(), fmt.Errorf("%w: select payment method from %s", domain.ErrInvalidCheckoutState, f.state.Step)
	}
	if method == domain.PaymentOnline && (f.processor == nil || f.gateway == nil) {
		return f.snapshot(), domain.FieldErrors{"paymentMethod": "online payment is not available"}
	}
	f.state.PaymentMethod = method
	f.state.LastError = ""
	return f.snapshot(), nil
}

// Reset returns the flow to an empty address step.
func (f *Flow) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Pending {
		return domain.ErrOrderInFlight
	}
	f.state = State{Step: StepAddress, Addresses: []domain.Address{}}
	return nil
}

// Attempt is an order placement running in the background.
type Attempt struct {
	done    chan struct{}
	receipt Receipt
	err     error
}

// Done is closed once the attempt reaches a terminal outcome.
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Wait blocks until the attempt finishes or ctx ends. The attempt keeps running if ctx ends first.
func (a *Attempt) Wait(ctx context.Context) (Receipt, error) {
	select {
	case <-a.done:
		return a.receipt, a.err
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
}

// InFlight returns the running attempt, if any.
func (f *Flow) InFlight() (*Attempt, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.state.Pending || f.attempt == nil {
		return nil, false
	}
	return f.attempt, true
}

// PlaceOrder places the order and waits for the outcome.
func (f *Flow) PlaceOrder(ctx context.Context) (Receipt, error) {
	attempt, err := f.Begin(ctx)
	if err != nil {
		return Receipt{}, err
	}
	return attempt.Wait(ctx)
}

// Begin starts placing the order. Only one attempt runs at a time; a second call while one is
// pending returns domain.ErrOrderInFlight without side effects. The attempt outlives ctx's
// cancellation so a closed browser tab cannot strand a confirmed payment.
func (f *Flow) Begin(ctx context.Context) (*Attempt, error) {
	f.mu.Lock()
	if f.state.Pending {
		f.mu.Unlock()
		return nil, domain.ErrOrderInFlight
	}
	if f.state.Step != StepPayment {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: place order from %s", domain.ErrInvalidCheckoutState, f.state.Step)
	}
	if f.state.SelectedAddress == nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: no delivery address selected", domain.ErrInvalidCheckoutState)
	}
	if !f.state.PaymentMethod.Valid() {
		f.mu.Unlock()
		return nil, domain.FieldErrors{"paymentMethod": "is required"}
	}
	f.state.Pending = true
	f.state.LastError = ""
	addr := *f.state.SelectedAddress
	method := f.state.PaymentMethod
	shown := f.state.CartSnapshot.Clone()

	attempt := &Attempt{done: make(chan struct{})}
	f.attempt = attempt
	f.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(attempt.done)
		attempt.receipt, attempt.err = f.place(runCtx, addr, method, shown)
	}()
	return attempt, nil
}

func (f *Flow) place(ctx context.Context, addr domain.Address, method domain.PaymentMethod, shown domain.Cart) (receipt Receipt, err error) {
	ctx, span := f.tracer.Start(ctx, "checkout.PlaceOrder", trace.WithAttributes(
		attribute.String("payment.method", string(method)),
	))
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = outcomeLabel(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		f.placed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", string(method)),
			attribute.String("outcome", outcome),
		))
		f.finish(receipt, err)
	}()

	cart, err := f.cart.Get(ctx)
	if err != nil {
		return Receipt{}, err
	}
	if cart.IsEmpty() {
		return Receipt{}, fmt.Errorf("%w: cart is empty", domain.ErrInvalidCheckoutState)
	}
	totals := ComputeTotals(cart.Items, f.fees)
	if !sameLines(shown.Items, cart.Items) {
		f.mu.Lock()
		f.state.CartSnapshot = cart.Clone()
		f.state.Totals = totals
		f.mu.Unlock()
		f.logger(ctx, "checkout.cart_changed", map[string]any{
			"userID":     f.identity.UserID,
			"grandTotal": totals.GrandTotal.String(),
		})
		return Receipt{}, ErrCartChanged
	}

	order := domain.Order{
		OrderID:         f.newID(),
		ShopID:          f.shopID,
		Items:           cart.Clone().Items,
		Totals:          totals,
		PaymentMethod:   method,
		PaymentStatus:   domain.PaymentStatusPending,
		OrderStatus:     domain.OrderStatusPlaced,
		DeliveryAddress: addr,
		Restaurant:      f.restaurant,
		CreatedAt:       f.now(),
	}
	span.SetAttributes(attribute.String("order.id", order.OrderID))

	if method == domain.PaymentOnline {
		paymentID, err := f.authorize(ctx, order)
		if err != nil {
			return Receipt{}, err
		}
		order.PaymentStatus = domain.PaymentStatusPaid
		order.PaymentID = paymentID
	}

	receipt = Receipt{Order: order}
	if err := f.orders.CreateOrder(ctx, f.identity.Token, order); err != nil {
		persistErr := fmt.Errorf("%w: %w", domain.ErrOrderPersistenceFailed, err)
		receipt.PersistError = persistErr.Error()
		span.RecordError(persistErr)
		f.logger(ctx, "checkout.order_persist_failed", map[string]any{
			"orderID":       order.OrderID,
			"paymentMethod": string(method),
			"paymentID":     order.PaymentID,
			"error":         err.Error(),
		})
	}
	if err := f.cart.Clear(ctx); err != nil {
		f.logger(ctx, "checkout.cart_clear_failed", map[string]any{"orderID": order.OrderID, "error": err.Error()})
	}
	f.logger(ctx, "checkout.order_placed", map[string]any{
		"orderID":       order.OrderID,
		"paymentMethod": string(method),
		"grandTotal":    totals.GrandTotal.String(),
		"persisted":     receipt.PersistError == "",
	})
	return receipt, nil
}

// authorize runs the online payment and returns the verified payment id.
func (f *Flow) authorize(ctx context.Context, order domain.Order) (string, error) {
	if f.processor == nil || f.gateway == nil {
		return "", fmt.Errorf("%w: online payment is not configured", domain.ErrPaymentAuthorizationFailed)
	}
	handle, err := f.processor.CreatePayment(ctx, PaymentRequest{
		Token:          f.identity.Token,
		OrderID:        order.OrderID,
		Amount:         order.Totals.GrandTotal,
		Currency:       order.Totals.Currency,
		IdempotencyKey: order.OrderID,
	})
	if err != nil {
		f.logger(ctx, "checkout.payment_create_failed", map[string]any{"orderID": order.OrderID, "error": err.Error()})
		return "", fmt.Errorf("%w: %w", domain.ErrPaymentAuthorizationFailed, err)
	}

	f.mu.Lock()
	f.state.PaymentPrompt = &handle
	f.mu.Unlock()
	outcome := f.gateway.Authorize(ctx, handle)
	f.mu.Lock()
	f.state.PaymentPrompt = nil
	f.mu.Unlock()

	switch outcome.Kind {
	case OutcomeSuccess:
	case OutcomeCancelled:
		f.logger(ctx, "checkout.payment_cancelled", map[string]any{"orderID": order.OrderID, "reason": outcome.Reason})
		return "", domain.ErrPaymentCancelled
	default:
		f.logger(ctx, "checkout.payment_failed", map[string]any{"orderID": order.OrderID, "reason": outcome.Reason, "error": outcome.Reason})
		return "", fmt.Errorf("%w: %s", domain.ErrPaymentAuthorizationFailed, outcome.Reason)
	}

	ok, err := f.processor.Verify(ctx, Verification{
		Token:     f.identity.Token,
		OrderID:   handle.OrderID,
		PaymentID: outcome.PaymentID,
		Signature: outcome.Signature,
		Amount:    handle.Amount,
		Currency:  handle.Currency,
	})
	if err != nil {
		f.logger(ctx, "checkout.payment_verify_failed", map[string]any{"orderID": order.OrderID, "error": err.Error()})
		return "", fmt.Errorf("%w: %w", domain.ErrPaymentVerificationFailed, err)
	}
	if !ok {
		f.logger(ctx, "checkout.payment_verify_rejected", map[string]any{"orderID": order.OrderID, "paymentID": outcome.PaymentID, "error": "signature rejected"})
		return "", domain.ErrPaymentVerificationFailed
	}
	return outcome.PaymentID, nil
}

// sameLines reports whether two carts hold the same lines at the same prices, in order.
func sameLines(a, b []domain.CartLineItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ProductID != b[i].ProductID || a[i].Variant != b[i].Variant ||
			a[i].Quantity != b[i].Quantity || !a[i].UnitPrice.Equal(b[i].UnitPrice) {
			return false
		}
	}
	return true
}

// finish records the terminal outcome. Failures keep the flow in payment.
func (f *Flow) finish(receipt Receipt, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Pending = false
	f.state.PaymentPrompt = nil
	f.attempt = nil
	if err != nil {
		f.state.LastError = err.Error()
		return
	}
	f.state.Step = StepSuccess
	f.state.Receipt = &receipt
	f.state.CartSnapshot = domain.Cart{Items: []domain.CartLineItem{}}
	f.state.LastError = ""
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrPaymentCancelled):
		return "cancelled"
	case errors.Is(err, domain.ErrPaymentVerificationFailed):
		return "verification_failed"
	case errors.Is(err, domain.ErrPaymentAuthorizationFailed):
		return "authorization_failed"
	case errors.Is(err, domain.ErrInvalidCheckoutState):
		return "invalid_state"
	case errors.Is(err, domain.ErrNetwork):
		return "network_error"
	default:
		return "error"
	}
}
