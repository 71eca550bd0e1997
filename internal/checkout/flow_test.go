package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/identity"
)

type stubCart struct {
	mu     sync.Mutex
	cart   domain.Cart
	getErr error
	clears int
}

func (s *stubCart) Get(context.Context) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return domain.Cart{Items: []domain.CartLineItem{}}, s.getErr
	}
	return s.cart.Clone(), nil
}

func (s *stubCart) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	s.cart = domain.Cart{Items: []domain.CartLineItem{}}
	return nil
}

type stubAddresses struct {
	list []domain.Address
	err  error
}

func (s stubAddresses) List(context.Context) ([]domain.Address, error) {
	return s.list, s.err
}

type stubOrders struct {
	mu     sync.Mutex
	orders []domain.Order
	err    error
}

func (s *stubOrders) CreateOrder(_ context.Context, token string, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		return domain.ErrUnauthenticated
	}
	if s.err != nil {
		return s.err
	}
	s.orders = append(s.orders, order)
	return nil
}

func (s *stubOrders) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type stubProcessor struct {
	createFunc func(ctx context.Context, req PaymentRequest) (Handle, error)
	verifyFunc func(ctx context.Context, v Verification) (bool, error)
}

func (s *stubProcessor) CreatePayment(ctx context.Context, req PaymentRequest) (Handle, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, req)
	}
	return Handle{Provider: ProviderAPI, OrderID: "pay_" + req.OrderID, Amount: req.Amount, Currency: req.Currency}, nil
}

func (s *stubProcessor) Verify(ctx context.Context, v Verification) (bool, error) {
	if s.verifyFunc != nil {
		return s.verifyFunc(ctx, v)
	}
	return true, nil
}

type gatewayFunc func(ctx context.Context, h Handle) Outcome

func (f gatewayFunc) Authorize(ctx context.Context, h Handle) Outcome { return f(ctx, h) }

var checkoutNow = time.Date(2025, 3, 1, 18, 30, 0, 0, time.UTC)

func sampleCart() domain.Cart {
	return domain.Cart{Items: []domain.CartLineItem{{
		ProductID: "p1",
		Variant:   domain.NewVariantKey("M", "red"),
		Quantity:  2,
		UnitPrice: decimal.NewFromInt(100),
		Snapshot:  domain.ProductSnapshot{Name: "Paneer Tikka"},
	}}}
}

func sampleAddresses() []domain.Address {
	return []domain.Address{
		{ID: "a1", Label: "Work", Phone: "9876543210", Line1: "1 Residency Rd"},
		{ID: "a2", Label: "Home", Phone: "9876543210", Line1: "12 MG Road", IsDefault: true},
	}
}

type flowFixture struct {
	flow      *Flow
	cart      *stubCart
	orders    *stubOrders
	processor *stubProcessor
}

func newFlowFixture(t *testing.T, gateway Gateway) flowFixture {
	t.Helper()
	fx := flowFixture{
		cart:      &stubCart{cart: sampleCart()},
		orders:    &stubOrders{},
		processor: &stubProcessor{},
	}
	ids := 0
	flow, err := New(Deps{
		Cart:       fx.cart,
		Addresses:  stubAddresses{list: sampleAddresses()},
		Orders:     fx.orders,
		Processor:  fx.processor,
		Gateway:    gateway,
		Identity:   identity.Identity{Token: "tok", UserID: "u1"},
		Fees:       Fees{Delivery: decimal.NewFromInt(39), Currency: "INR"},
		ShopID:     "shop-1",
		Restaurant: domain.RestaurantInfo{Name: "Spice Route"},
		Clock:      func() time.Time { return checkoutNow },
		NewID: func() string {
			ids++
			return "order-" + string(rune('0'+ids))
		},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	fx.flow = flow
	return fx
}

func (fx flowFixture) toPayment(t *testing.T, method domain.PaymentMethod) {
	t.Helper()
	if _, err := fx.flow.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if _, err := fx.flow.Continue(); err != nil {
		t.Fatalf("Continue returned error: %v", err)
	}
	if _, err := fx.flow.SelectPaymentMethod(method); err != nil {
		t.Fatalf("SelectPaymentMethod returned error: %v", err)
	}
}

func TestComputeTotals(t *testing.T) {
	totals := ComputeTotals(sampleCart().Items, Fees{Delivery: decimal.NewFromInt(39), Currency: "inr"})
	if !totals.ItemTotal.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected itemTotal 200, got %s", totals.ItemTotal)
	}
	if !totals.GrandTotal.Equal(decimal.NewFromInt(239)) {
		t.Fatalf("expected grandTotal 239, got %s", totals.GrandTotal)
	}
	if totals.Currency != "INR" {
		t.Fatalf("expected INR, got %s", totals.Currency)
	}

	withTax := ComputeTotals(sampleCart().Items, Fees{
		Delivery: decimal.NewFromInt(39),
		Platform: decimal.NewFromInt(5),
		TaxRate:  decimal.RequireFromString("0.025"),
	})
	if !withTax.Tax.Equal(decimal.NewFromInt(5)) || !withTax.GrandTotal.Equal(decimal.NewFromInt(249)) {
		t.Fatalf("unexpected totals %+v", withTax)
	}
}

func TestStartPreselectsDefaultAndNeverAutoAdvances(t *testing.T) {
	fx := newFlowFixture(t, nil)
	state, err := fx.flow.Start(context.Background())
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if state.Step != StepAddress || state.SelectedAddress == nil || state.SelectedAddress.ID != "a2" {
		t.Fatalf("unexpected state %+v", state)
	}
	state, err = fx.flow.SelectAddress("a1")
	if err != nil {
		t.Fatalf("SelectAddress returned error: %v", err)
	}
	if state.Step != StepAddress || state.SelectedAddress.ID != "a1" {
		t.Fatalf("expected to stay in address with a1, got %+v", state)
	}
	if _, err := fx.flow.SelectAddress("missing"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestChangeAddressClearsSelection(t *testing.T) {
	fx := newFlowFixture(t, nil)
	fx.toPayment(t, domain.PaymentCOD)

	state, err := fx.flow.ChangeAddress()
	if err != nil {
		t.Fatalf("ChangeAddress returned error: %v", err)
	}
	if state.Step != StepAddress || state.SelectedAddress != nil {
		t.Fatalf("expected address step without selection, got %+v", state)
	}
	if _, err := fx.flow.Continue(); !errors.Is(err, domain.ErrInvalidCheckoutState) {
		t.Fatalf("expected ErrInvalidCheckoutState, got %v", err)
	}
}

func TestPlaceOrderRequiresPaymentStep(t *testing.T) {
	fx := newFlowFixture(t, nil)
	if _, err := fx.flow.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if _, err := fx.flow.PlaceOrder(context.Background()); !errors.Is(err, domain.ErrInvalidCheckoutState) {
		t.Fatalf("expected ErrInvalidCheckoutState, got %v", err)
	}
}

func TestPlaceOrderRejectsEmptyCart(t *testing.T) {
	fx := newFlowFixture(t, nil)
	fx.toPayment(t, domain.PaymentCOD)
	fx.cart.cart = domain.Cart{}

	_, err := fx.flow.PlaceOrder(context.Background())
	if !errors.Is(err, domain.ErrInvalidCheckoutState) {
		t.Fatalf("expected ErrInvalidCheckoutState, got %v", err)
	}
	state := fx.flow.State()
	if state.Step != StepPayment || state.Pending || state.LastError == "" {
		t.Fatalf("unexpected state %+v", state)
	}
	if fx.orders.count() != 0 {
		t.Fatal("expected no order persisted")
	}
}

func TestCODOrderPlacement(t *testing.T) {
	fx := newFlowFixture(t, nil)
	fx.toPayment(t, domain.PaymentCOD)

	receipt, err := fx.flow.PlaceOrder(context.Background())
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if fx.orders.count() != 1 {
		t.Fatalf("expected one order, got %d", fx.orders.count())
	}
	order := fx.orders.orders[0]
	if order.PaymentStatus != domain.PaymentStatusPending || order.OrderStatus != domain.OrderStatusPlaced {
		t.Fatalf("unexpected statuses %s/%s", order.PaymentStatus, order.OrderStatus)
	}
	if !order.Totals.GrandTotal.Equal(decimal.NewFromInt(239)) {
		t.Fatalf("expected grandTotal 239, got %s", order.Totals.GrandTotal)
	}
	if order.DeliveryAddress.ID != "a2" || order.ShopID != "shop-1" || order.Restaurant.Name != "Spice Route" {
		t.Fatalf("unexpected order %+v", order)
	}
	if fx.cart.clears != 1 {
		t.Fatalf("expected cart cleared once, got %d", fx.cart.clears)
	}
	state := fx.flow.State()
	if state.Step != StepSuccess || state.Receipt == nil || state.Receipt.Order.OrderID != receipt.Order.OrderID {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestCartChangedAfterStartIsSurfacedBeforeCharging(t *testing.T) {
	var charged []decimal.Decimal
	fx := newFlowFixture(t, gatewayFunc(func(context.Context, Handle) Outcome {
		return Outcome{Kind: OutcomeCancelled, Reason: "dismissed"}
	}))
	fx.processor.createFunc = func(_ context.Context, req PaymentRequest) (Handle, error) {
		charged = append(charged, req.Amount)
		return Handle{Provider: ProviderAPI, OrderID: "pay_" + req.OrderID, Amount: req.Amount, Currency: req.Currency}, nil
	}
	fx.toPayment(t, domain.PaymentOnline)

	fx.cart.mu.Lock()
	fx.cart.cart.Items[0].Quantity = 3
	fx.cart.mu.Unlock()

	_, err := fx.flow.PlaceOrder(context.Background())
	if !errors.Is(err, ErrCartChanged) || !errors.Is(err, domain.ErrInvalidCheckoutState) {
		t.Fatalf("expected ErrCartChanged, got %v", err)
	}
	if len(charged) != 0 || fx.orders.count() != 0 || fx.cart.clears != 0 {
		t.Fatalf("expected no side effects, charged=%v orders=%d clears=%d", charged, fx.orders.count(), fx.cart.clears)
	}
	state := fx.flow.State()
	if state.Step != StepPayment || state.Pending || state.LastError == "" {
		t.Fatalf("unexpected state %+v", state)
	}
	if state.CartSnapshot.Items[0].Quantity != 3 || !state.Totals.GrandTotal.Equal(decimal.NewFromInt(339)) {
		t.Fatalf("expected refreshed snapshot with grandTotal 339, got %+v", state.Totals)
	}

	// The refreshed total is what the next attempt charges.
	_, err = fx.flow.PlaceOrder(context.Background())
	if !errors.Is(err, domain.ErrPaymentCancelled) {
		t.Fatalf("expected ErrPaymentCancelled, got %v", err)
	}
	if len(charged) != 1 || !charged[0].Equal(decimal.NewFromInt(339)) {
		t.Fatalf("expected a single 339 charge request, got %v", charged)
	}
}

func TestOnlineVerificationFailureKeepsPaymentStep(t *testing.T) {
	gateway := gatewayFunc(func(_ context.Context, h Handle) Outcome {
		return Outcome{Kind: OutcomeSuccess, PaymentID: "pay_x", Signature: "sig"}
	})
	fx := newFlowFixture(t, gateway)
	var verified Verification
	fx.processor.verifyFunc = func(_ context.Context, v Verification) (bool, error) {
		verified = v
		return false, nil
	}
	fx.toPayment(t, domain.PaymentOnline)

	_, err := fx.flow.PlaceOrder(context.Background())
	if !errors.Is(err, domain.ErrPaymentVerificationFailed) {
		t.Fatalf("expected ErrPaymentVerificationFailed, got %v", err)
	}
	if verified.PaymentID != "pay_x" || verified.Signature != "sig" || verified.OrderID != "pay_order-1" {
		t.Fatalf("unexpected verification %+v", verified)
	}
	if fx.orders.count() != 0 || fx.cart.clears != 0 {
		t.Fatalf("expected no order and no clear, got %d orders %d clears", fx.orders.count(), fx.cart.clears)
	}
	state := fx.flow.State()
	if state.Step != StepPayment || state.Pending {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestOnlineVerifyUnreachableIsVerificationFailure(t *testing.T) {
	fx := newFlowFixture(t, gatewayFunc(func(context.Context, Handle) Outcome {
		return Outcome{Kind: OutcomeSuccess, PaymentID: "pay_x"}
	}))
	fx.processor.verifyFunc = func(context.Context, Verification) (bool, error) { return false, domain.ErrNetwork }
	fx.toPayment(t, domain.PaymentOnline)

	_, err := fx.flow.PlaceOrder(context.Background())
	if !errors.Is(err, domain.ErrPaymentVerificationFailed) || !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected verification failure wrapping network error, got %v", err)
	}
	if fx.orders.count() != 0 {
		t.Fatal("expected no order persisted")
	}
}

func TestOnlineCancellationHasNoSideEffects(t *testing.T) {
	fx := newFlowFixture(t, gatewayFunc(func(context.Context, Handle) Outcome {
		return Outcome{Kind: OutcomeCancelled, Reason: "modal closed"}
	}))
	verifyCalled := false
	fx.processor.verifyFunc = func(context.Context, Verification) (bool, error) {
		verifyCalled = true
		return true, nil
	}
	fx.toPayment(t, domain.PaymentOnline)

	_, err := fx.flow.PlaceOrder(context.Background())
	if !errors.Is(err, domain.ErrPaymentCancelled) {
		t.Fatalf("expected ErrPaymentCancelled, got %v", err)
	}
	if verifyCalled || fx.orders.count() != 0 || fx.cart.clears != 0 {
		t.Fatal("expected cancellation without side effects")
	}
	state := fx.flow.State()
	if state.Step != StepPayment || state.Pending || state.PaymentMethod != domain.PaymentOnline {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestOnlineAuthorizationFailure(t *testing.T) {
	fx := newFlowFixture(t, gatewayFunc(func(context.Context, Handle) Outcome {
		return Outcome{Kind: OutcomeFailed, Reason: "card declined"}
	}))
	fx.toPayment(t, domain.PaymentOnline)

	_, err := fx.flow.PlaceOrder(context.Background())
	if !errors.Is(err, domain.ErrPaymentAuthorizationFailed) {
		t.Fatalf("expected ErrPaymentAuthorizationFailed, got %v", err)
	}
	if errors.Is(err, domain.ErrPaymentCancelled) {
		t.Fatal("authorization failure must be distinct from cancellation")
	}
}

func TestOnlinePaidOrderSurvivesPersistFailure(t *testing.T) {
	fx := newFlowFixture(t, gatewayFunc(func(context.Context, Handle) Outcome {
		return Outcome{Kind: OutcomeSuccess, PaymentID: "pay_ok", Signature: "sig"}
	}))
	fx.orders.err = domain.ErrNetwork
	var logged []string
	fx.flow.logger = func(_ context.Context, event string, _ map[string]any) { logged = append(logged, event) }
	fx.toPayment(t, domain.PaymentOnline)

	receipt, err := fx.flow.PlaceOrder(context.Background())
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if receipt.PersistError == "" || receipt.Order.PaymentStatus != domain.PaymentStatusPaid || receipt.Order.PaymentID != "pay_ok" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if fx.cart.clears != 1 {
		t.Fatalf("expected cart cleared once, got %d", fx.cart.clears)
	}
	if fx.flow.State().Step != StepSuccess {
		t.Fatal("expected success step")
	}
	found := false
	for _, event := range logged {
		if event == "checkout.order_persist_failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected persist failure logged, got %v", logged)
	}
}

func TestSingleInFlightOrder(t *testing.T) {
	gateway := NewBrowserGateway(time.Minute, nil)
	fx := newFlowFixture(t, gateway)
	fx.toPayment(t, domain.PaymentOnline)
	ctx := context.Background()

	attempt, err := fx.flow.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}

	var handle Handle
	deadline := time.Now().Add(2 * time.Second)
	for {
		if h, ok := gateway.Pending(); ok {
			handle = h
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("payment prompt never appeared")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if prompt := fx.flow.State().PaymentPrompt; prompt == nil || prompt.OrderID != handle.OrderID {
		t.Fatalf("expected prompt in state, got %+v", prompt)
	}

	if _, err := fx.flow.Begin(ctx); !errors.Is(err, domain.ErrOrderInFlight) {
		t.Fatalf("expected ErrOrderInFlight, got %v", err)
	}
	if _, err := fx.flow.PlaceOrder(ctx); !errors.Is(err, domain.ErrOrderInFlight) {
		t.Fatalf("expected ErrOrderInFlight, got %v", err)
	}
	if err := fx.flow.Reset(); !errors.Is(err, domain.ErrOrderInFlight) {
		t.Fatalf("expected Reset to be refused, got %v", err)
	}

	if err := gateway.Resolve(handle.OrderID, Outcome{Kind: OutcomeSuccess, PaymentID: "pay_1", Signature: "sig"}); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := attempt.Wait(waitCtx); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if fx.orders.count() != 1 {
		t.Fatalf("expected exactly one order, got %d", fx.orders.count())
	}
	if err := gateway.Resolve(handle.OrderID, Outcome{Kind: OutcomeSuccess}); !errors.Is(err, ErrNoPendingPayment) {
		t.Fatalf("expected ErrNoPendingPayment after completion, got %v", err)
	}
}

func TestBrowserGatewayTimeoutCancels(t *testing.T) {
	gateway := NewBrowserGateway(10*time.Millisecond, nil)
	out := gateway.Authorize(context.Background(), Handle{OrderID: "pay_1"})
	if out.Kind != OutcomeCancelled {
		t.Fatalf("expected cancelled outcome, got %+v", out)
	}
	if _, ok := gateway.Pending(); ok {
		t.Fatal("expected no pending handle after timeout")
	}
}

func TestBrowserGatewayPromptCallback(t *testing.T) {
	prompted := make(chan Handle, 1)
	gateway := NewBrowserGateway(time.Minute, func(h Handle) { prompted <- h })

	done := make(chan Outcome, 1)
	go func() { done <- gateway.Authorize(context.Background(), Handle{OrderID: "pay_9"}) }()

	h := <-prompted
	if err := gateway.Resolve("other", Outcome{Kind: OutcomeSuccess}); !errors.Is(err, ErrNoPendingPayment) {
		t.Fatalf("expected mismatch rejected, got %v", err)
	}
	if err := gateway.Resolve(h.OrderID, Outcome{Kind: OutcomeFailed, Reason: "declined"}); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if out := <-done; out.Kind != OutcomeFailed || out.Reason != "declined" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestParseOutcomeKind(t *testing.T) {
	cases := map[string]OutcomeKind{"Succeeded": OutcomeSuccess, "canceled": OutcomeCancelled, "failed": OutcomeFailed}
	for in, want := range cases {
		if got, ok := ParseOutcomeKind(in); !ok || got != want {
			t.Fatalf("ParseOutcomeKind(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := ParseOutcomeKind("maybe"); ok {
		t.Fatal("expected unknown status rejected")
	}
}

func TestGuestCannotStart(t *testing.T) {
	flow, err := New(Deps{Cart: &stubCart{}, Addresses: stubAddresses{}, Orders: &stubOrders{}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, err := flow.Start(context.Background()); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
