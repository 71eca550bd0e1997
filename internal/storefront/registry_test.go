package storefront

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/apiclient"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/cart"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/checkout"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/localstore"
)

type memoryAPI struct {
	mu       sync.Mutex
	items    []domain.CartLineItem
	addCalls int
}

func (m *memoryAPI) GetCart(context.Context, string) ([]domain.CartLineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CartLineItem(nil), m.items...), nil
}

func (m *memoryAPI) AddToCart(_ context.Context, _ string, req apiclient.AddToCartRequest) ([]domain.CartLineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls++
	key := domain.NewVariantKey(req.Size, req.Color)
	for i := range m.items {
		if m.items[i].Matches(req.ProductID, key) {
			m.items[i].Quantity += req.Quantity
			return append([]domain.CartLineItem(nil), m.items...), nil
		}
	}
	m.items = append(m.items, domain.CartLineItem{ProductID: req.ProductID, Variant: key, Quantity: req.Quantity, UnitPrice: req.Price})
	return append([]domain.CartLineItem(nil), m.items...), nil
}

func (m *memoryAPI) UpdateCartItem(context.Context, string, string, domain.VariantKey, int) error {
	return nil
}

func (m *memoryAPI) RemoveCartItem(context.Context, string, string, domain.VariantKey) error {
	return nil
}

func (m *memoryAPI) ClearCart(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
	return nil
}

func (m *memoryAPI) ListAddresses(context.Context, string) ([]domain.Address, error) {
	return []domain.Address{{ID: "a1", Label: "Home", IsDefault: true}}, nil
}

func (m *memoryAPI) CreateAddress(_ context.Context, _ string, fields domain.AddressFields) (domain.Address, error) {
	return domain.Address{ID: "a2", Label: fields.Label}, nil
}

func (m *memoryAPI) UpdateAddress(_ context.Context, _ string, id string, fields domain.AddressFields) (domain.Address, error) {
	return domain.Address{ID: id, Label: fields.Label}, nil
}

func (m *memoryAPI) DeleteAddress(context.Context, string, string) error { return nil }

func (m *memoryAPI) SetDefaultAddress(context.Context, string, string) error { return nil }

func (m *memoryAPI) CreateOrder(context.Context, string, domain.Order) error { return nil }

func (m *memoryAPI) CreatePaymentOrder(_ context.Context, _ string, amount decimal.Decimal, currency, key string) (apiclient.PaymentOrder, error) {
	return apiclient.PaymentOrder{OrderID: "pay_" + key, Amount: amount, Currency: currency}, nil
}

func (m *memoryAPI) VerifyPayment(context.Context, string, apiclient.PaymentVerification) (bool, error) {
	return true, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(t *testing.T, api *memoryAPI, clock *testClock) *Registry {
	t.Helper()
	reg, err := NewRegistry(Deps{
		API:         api,
		LocalStore:  localstore.NewMemory(),
		CartCache:   localstore.NewMemory(),
		Fees:        checkoutFees(),
		IdleTimeout: time.Hour,
		Clock:       clock.Now,
	})
	require.NoError(t, err)
	return reg
}

func TestRegistryReusesSessionForSameToken(t *testing.T) {
	clock := &testClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	reg := newTestRegistry(t, &memoryAPI{}, clock)
	ctx := context.Background()

	first, err := reg.Session(ctx, "dev-1", "")
	require.NoError(t, err)
	second, err := reg.Session(ctx, "dev-1", "")
	require.NoError(t, err)
	require.Same(t, first, second)
	require.False(t, first.Authenticated(clock.Now()))

	_, err = reg.Session(ctx, " ", "")
	require.Error(t, err)
}

func TestRegistryLoginMergesGuestCartOnce(t *testing.T) {
	clock := &testClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	api := &memoryAPI{items: []domain.CartLineItem{{ProductID: "A", Variant: domain.NewVariantKey("M", "red"), Quantity: 1, UnitPrice: decimal.NewFromInt(10)}}}
	reg := newTestRegistry(t, api, clock)
	ctx := context.Background()

	guest, err := reg.Session(ctx, "dev-1", "")
	require.NoError(t, err)
	variant := domain.Variant{Size: "M", Color: "red", Price: decimal.NewFromInt(10), Quantity: 5}
	_, err = guest.Cart.AddItem(ctx, domain.Product{ID: "A", Name: "A"}, variant, 2)
	require.NoError(t, err)
	_, err = guest.Cart.AddItem(ctx, domain.Product{ID: "B", Name: "B"}, variant, 1)
	require.NoError(t, err)

	var events []cart.Event
	guest.Notifier.Subscribe(func(e cart.Event) { events = append(events, e) })

	user, err := reg.Session(ctx, "dev-1", "Bearer opaque-token")
	require.NoError(t, err)
	require.NotSame(t, guest, user)
	require.Same(t, guest.Notifier, user.Notifier)
	require.True(t, user.Authenticated(clock.Now()))

	remote, err := user.Cart.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, remote.Items[remote.Find("A", variant.Key())].Quantity)
	require.Equal(t, 1, remote.Items[remote.Find("B", variant.Key())].Quantity)
	require.Len(t, events, 1)
	require.Equal(t, cart.ReasonSync, events[0].Reason)

	_, err = reg.Session(ctx, "dev-1", "opaque-token")
	require.NoError(t, err)
	require.Equal(t, 2, api.addCalls)

	loggedOut, err := reg.Session(ctx, "dev-1", "")
	require.NoError(t, err)
	local, err := loggedOut.Cart.Get(ctx)
	require.NoError(t, err)
	require.True(t, local.IsEmpty())
}

func TestRegistrySweepEvictsIdleSessions(t *testing.T) {
	clock := &testClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	reg := newTestRegistry(t, &memoryAPI{}, clock)
	ctx := context.Background()

	_, err := reg.Session(ctx, "dev-old", "")
	require.NoError(t, err)
	clock.Advance(50 * time.Minute)
	_, err = reg.Session(ctx, "dev-new", "")
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)

	require.Equal(t, 1, reg.Sweep(ctx))
	_, ok := reg.lookup("dev-old")
	require.False(t, ok)
	_, ok = reg.lookup("dev-new")
	require.True(t, ok)
	require.Equal(t, 1, reg.size())
}

func TestAwaitPromptReturnsGatewayHandle(t *testing.T) {
	clock := &testClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	api := &memoryAPI{items: []domain.CartLineItem{{ProductID: "A", Variant: domain.NewVariantKey("M", "red"), Quantity: 1, UnitPrice: decimal.NewFromInt(100)}}}
	reg := newTestRegistry(t, api, clock)
	ctx := context.Background()

	sess, err := reg.Session(ctx, "dev-1", "opaque-token")
	require.NoError(t, err)
	_, err = sess.Checkout.Start(ctx)
	require.NoError(t, err)
	_, err = sess.Checkout.Continue()
	require.NoError(t, err)
	_, err = sess.Checkout.SelectPaymentMethod(domain.PaymentOnline)
	require.NoError(t, err)

	attempt, err := sess.Checkout.Begin(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	handle, ok := sess.AwaitPrompt(waitCtx, attempt.Done())
	require.True(t, ok)
	require.NotEmpty(t, handle.OrderID)
	require.True(t, handle.Amount.Equal(decimal.NewFromInt(139)))

	require.NoError(t, sess.Gateway.Resolve(handle.OrderID, checkoutSuccess()))
	_, err = attempt.Wait(waitCtx)
	require.NoError(t, err)
}

func startOnlineAttempt(t *testing.T, sess *Session) (*checkout.Attempt, checkout.Handle) {
	t.Helper()
	ctx := context.Background()
	_, err := sess.Checkout.Start(ctx)
	require.NoError(t, err)
	_, err = sess.Checkout.Continue()
	require.NoError(t, err)
	_, err = sess.Checkout.SelectPaymentMethod(domain.PaymentOnline)
	require.NoError(t, err)
	attempt, err := sess.Checkout.Begin(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	handle, ok := sess.AwaitPrompt(waitCtx, attempt.Done())
	require.True(t, ok)
	return attempt, handle
}

func TestRegistryDefersTokenChangeWhileOrderInFlight(t *testing.T) {
	clock := &testClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	api := &memoryAPI{items: []domain.CartLineItem{{ProductID: "A", Variant: domain.NewVariantKey("M", "red"), Quantity: 1, UnitPrice: decimal.NewFromInt(100)}}}
	reg := newTestRegistry(t, api, clock)
	ctx := context.Background()

	sess, err := reg.Session(ctx, "dev-1", "token-1")
	require.NoError(t, err)
	attempt, handle := startOnlineAttempt(t, sess)

	same, err := reg.Session(ctx, "dev-1", "token-2")
	require.ErrorIs(t, err, ErrIdentityChangeDeferred)
	require.ErrorIs(t, err, domain.ErrOrderInFlight)
	require.Same(t, sess, same)
	require.True(t, same.Checkout.State().Pending)

	_, err = same.Checkout.Begin(ctx)
	require.ErrorIs(t, err, domain.ErrOrderInFlight)

	require.NoError(t, same.Gateway.Resolve(handle.OrderID, checkoutSuccess()))
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	receipt, err := attempt.Wait(waitCtx)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, receipt.Order.PaymentStatus)

	rebuilt, err := reg.Session(ctx, "dev-1", "token-2")
	require.NoError(t, err)
	require.NotSame(t, sess, rebuilt)
	require.Equal(t, "token-2", rebuilt.Identity.Token)
}
