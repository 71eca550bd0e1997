// Package storefront owns the per-browser object graph: one cart store, checkout flow and address
// book per device, rebuilt whenever the device signs in or out.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/address"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/apiclient"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/cart"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/checkout"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/localstore"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/identity"
)

const defaultIdleTimeout = 2 * time.Hour

var (
	errAPIRequired        = errors.New("storefront: api is required")
	errLocalStoreRequired = errors.New("storefront: local store is required")
	errDeviceIDRequired   = errors.New("storefront: device id is required")

	// ErrIdentityChangeDeferred is returned with the current session when a token change
	// arrives while that session has an order placement in flight.
	ErrIdentityChangeDeferred = fmt.Errorf("storefront: identity change deferred: %w", domain.ErrOrderInFlight)
)

// API is everything the per-session components need from the REST client.
type API interface {
	cart.API
	address.API
	checkout.OrderAPI
	checkout.PaymentAPI
}

var _ API = (*apiclient.Client)(nil)

// Deps wires a Registry.
type Deps struct {
	API        API
	LocalStore localstore.Store
	// CartCache keeps per-user cart copies for offline reads. Optional.
	CartCache localstore.Store
	// Processor overrides the REST payment endpoints, e.g. with Stripe. Optional.
	Processor      checkout.Processor
	Fees           checkout.Fees
	ShopID         string
	Restaurant     domain.RestaurantInfo
	PaymentTimeout time.Duration
	IdleTimeout    time.Duration
	Clock          func() time.Time
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

// Session is the live object graph of one browser.
type Session struct {
	DeviceID  string
	Identity  identity.Identity
	Cart      *cart.Store
	Notifier  *cart.Notifier
	Addresses *address.Book
	Checkout  *checkout.Flow
	Gateway   *checkout.BrowserGateway

	prompts  *promptWaiters
	lastSeen time.Time
}

// Authenticated reports whether the session has a usable token at now.
func (s *Session) Authenticated(now time.Time) bool {
	return s.Identity.Authenticated(now)
}

// Registry maps device ids to their live sessions.
type Registry struct {
	api            API
	local          localstore.Store
	cache          localstore.Store
	processor      checkout.Processor
	fees           checkout.Fees
	shopID         string
	restaurant     domain.RestaurantInfo
	paymentTimeout time.Duration
	idleTimeout    time.Duration
	now            func() time.Time
	logger         func(ctx context.Context, event string, fields map[string]any)
	loads          *singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry constructs a Registry.
func NewRegistry(deps Deps) (*Registry, error) {
	if deps.API == nil {
		return nil, errAPIRequired
	}
	if deps.LocalStore == nil {
		return nil, errLocalStoreRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	processor := deps.Processor
	if processor == nil {
		apiProcessor, err := checkout.NewAPIProcessor(deps.API)
		if err != nil {
			return nil, err
		}
		processor = apiProcessor
	}
	idle := deps.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	return &Registry{
		api:            deps.API,
		local:          deps.LocalStore,
		cache:          deps.CartCache,
		processor:      processor,
		fees:           deps.Fees,
		shopID:         deps.ShopID,
		restaurant:     deps.Restaurant,
		paymentTimeout: deps.PaymentTimeout,
		idleTimeout:    idle,
		now:            func() time.Time { return clock().UTC() },
		logger:         logger,
		loads:          &singleflight.Group{},
		sessions:       make(map[string]*Session),
	}, nil
}

// Session returns the live session for deviceID, rebuilding it when token changed. A rebuild
// into an authenticated identity merges the device cart into the user's cart once. While the
// current session has an order placement in flight it is kept and returned together with
// ErrIdentityChangeDeferred.
func (r *Registry) Session(ctx context.Context, deviceID, token string) (*Session, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, errDeviceIDRequired
	}
	id := identity.Inspect(token)
	now := r.now()

	r.mu.Lock()
	existing, ok := r.sessions[deviceID]
	if ok && existing.Identity.Token == id.Token {
		existing.lastSeen = now
		r.mu.Unlock()
		return existing, nil
	}
	var notifier *cart.Notifier
	if ok {
		if _, busy := existing.Checkout.InFlight(); busy {
			existing.lastSeen = now
			r.mu.Unlock()
			r.logger(ctx, "storefront.session_rebuild_deferred", map[string]any{"deviceID": deviceID, "userID": existing.Identity.UserID})
			return existing, ErrIdentityChangeDeferred
		}
		notifier = existing.Notifier
	}
	sess, err := r.build(deviceID, id, notifier)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	sess.lastSeen = now
	r.sessions[deviceID] = sess
	r.mu.Unlock()

	fields := map[string]any{"deviceID": deviceID, "userID": id.UserID, "authenticated": sess.Authenticated(now)}
	if ok {
		r.logger(ctx, "storefront.session_rebuilt", fields)
	} else {
		r.logger(ctx, "storefront.session_created", fields)
	}

	if sess.Authenticated(now) {
		if err := sess.Cart.SyncLocalToRemote(ctx); err != nil {
			r.logger(ctx, "storefront.cart_sync_incomplete", map[string]any{"deviceID": deviceID, "userID": id.UserID, "error": err.Error()})
		}
	}
	return sess, nil
}

// Sweep evicts sessions idle for longer than the idle timeout. Sessions with an order in flight
// are kept. It returns the number evicted.
func (r *Registry) Sweep(ctx context.Context) int {
	cutoff := r.now().Add(-r.idleTimeout)
	r.mu.Lock()
	evicted := 0
	for deviceID, sess := range r.sessions {
		if sess.lastSeen.After(cutoff) {
			continue
		}
		if sess.Checkout != nil && sess.Checkout.State().Pending {
			continue
		}
		delete(r.sessions, deviceID)
		evicted++
	}
	active := len(r.sessions)
	r.mu.Unlock()
	if evicted > 0 {
		r.logger(ctx, "storefront.sessions_evicted", map[string]any{"count": evicted, "active": active})
	}
	return evicted
}

// Run sweeps idle sessions every interval until ctx ends.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.idleTimeout / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

func (r *Registry) build(deviceID string, id identity.Identity, notifier *cart.Notifier) (*Session, error) {
	if notifier == nil {
		notifier = cart.NewNotifier()
	}
	clock := func() time.Time { return r.now() }

	deps := cart.Deps{
		Local:    cart.NewLocalCart(r.local, localstore.GuestCartKey(deviceID), clock),
		Cache:    r.cache,
		Notifier: notifier,
		Clock:    clock,
		Logger:   r.logger,
	}
	if id.Token != "" {
		deps.Remote = cart.NewRemoteCart(r.api, id, r.loads, clock)
	}
	store, err := cart.New(deps)
	if err != nil {
		return nil, err
	}

	book, err := address.New(address.Deps{API: r.api, Identity: id, Clock: clock, Logger: r.logger})
	if err != nil {
		return nil, err
	}

	prompts := &promptWaiters{}
	gateway := checkout.NewBrowserGateway(r.paymentTimeout, prompts.publish)
	flow, err := checkout.New(checkout.Deps{
		Cart:       store,
		Addresses:  book,
		Orders:     r.api,
		Processor:  r.processor,
		Gateway:    gateway,
		Identity:   id,
		Fees:       r.fees,
		ShopID:     r.shopID,
		Restaurant: r.restaurant,
		Clock:      clock,
		Logger:     r.logger,
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		DeviceID:  deviceID,
		Identity:  id,
		Cart:      store,
		Notifier:  notifier,
		Addresses: book,
		Checkout:  flow,
		Gateway:   gateway,
		prompts:   prompts,
	}, nil
}
