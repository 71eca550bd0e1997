package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/localstore"
)

var (
	errLocalRequired = errors.New("cart: local backend is required")
	errClockRequired = errors.New("cart: clock is required")
)

// Backend is one storage source for the cart. Add merges additively on identity and
// never changes the price of an existing line.
type Backend interface {
	Load(ctx context.Context) (domain.Cart, error)
	Add(ctx context.Context, line domain.CartLineItem) (domain.Cart, error)
	SetQuantity(ctx context.Context, productID string, key domain.VariantKey, quantity int) (domain.Cart, error)
	Remove(ctx context.Context, productID string, key domain.VariantKey) (domain.Cart, error)
	Clear(ctx context.Context) error
}

// Deps wires the backends of a Store.
type Deps struct {
	// Local is the device cart used while no valid token is present.
	Local Backend
	// Remote is the user's server cart; nil for guests.
	Remote *RemoteCart
	// Cache keeps the last known remote cart per user for offline reads.
	Cache    localstore.Store
	Notifier *Notifier
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

// Store is the single source of truth for what is in a browser session's cart.
// One mutex serialises read-modify-write sequences; across sessions the server is last-write-wins.
type Store struct {
	mu       sync.Mutex
	local    Backend
	remote   *RemoteCart
	cache    localstore.Store
	notifier *Notifier
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
	synced   bool
}

// New constructs a Store.
func New(deps Deps) (*Store, error) {
	if deps.Local == nil {
		return nil, errLocalRequired
	}
	if deps.Clock == nil {
		return nil, errClockRequired
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NewNotifier()
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Store{
		local:    deps.Local,
		remote:   deps.Remote,
		cache:    deps.Cache,
		notifier: notifier,
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
	}, nil
}

// Notifier exposes the cart-changed broadcaster.
func (s *Store) Notifier() *Notifier { return s.notifier }

// Authenticated reports whether the remote cart is authoritative right now.
func (s *Store) Authenticated() bool {
	return s.remote != nil && s.remote.identity.Authenticated(s.now())
}

func (s *Store) backend() Backend {
	if s.Authenticated() {
		return s.remote
	}
	return s.local
}

// Get returns the authoritative cart. When the remote fetch fails it returns the cached copy
// for the user (or an empty cart) together with an error wrapping domain.ErrNetwork.
func (s *Store) Get(ctx context.Context) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, err := s.backend().Load(ctx)
	if err == nil {
		s.remember(ctx, cart)
		return cart, nil
	}
	if !s.Authenticated() {
		return emptyCart(), err
	}
	s.logger(ctx, "cart.load_failed", map[string]any{"userID": s.remote.identity.UserID, "error": err.Error()})
	fallback := s.cached(ctx)
	if errors.Is(err, domain.ErrNetwork) {
		return fallback, err
	}
	return fallback, fmt.Errorf("%w: %w", domain.ErrNetwork, err)
}

// AddItem adds quantity of the variant. A line with the same identity keeps the price captured
// on its first add and only its quantity grows.
func (s *Store) AddItem(ctx context.Context, product domain.Product, variant domain.Variant, quantity int) (domain.Cart, error) {
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return domain.Cart{}, domain.FieldErrors{"productId": "is required"}
	}
	if quantity < 1 {
		return domain.Cart{}, domain.FieldErrors{"quantity": "must be at least 1"}
	}
	if variant.Quantity <= 0 {
		return domain.Cart{}, fmt.Errorf("%w: %s %s", domain.ErrOutOfStock, productID, variant.Key())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	backend := s.backend()
	current, err := backend.Load(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	key := variant.Key()
	line := domain.CartLineItem{
		ProductID: productID,
		Variant:   key,
		Quantity:  quantity,
		UnitPrice: variant.Price,
		Snapshot:  domain.ProductSnapshot{Name: strings.TrimSpace(product.Name), Image: strings.TrimSpace(product.Image)},
		AddedAt:   s.now(),
	}
	if idx := current.Find(productID, key); idx >= 0 {
		existing := current.Items[idx]
		line.UnitPrice = existing.UnitPrice
		line.Snapshot = existing.Snapshot
		line.AddedAt = existing.AddedAt
	}

	updated, err := backend.Add(ctx, line)
	if err != nil {
		return domain.Cart{}, err
	}
	return s.changed(ctx, updated, ReasonAdd), nil
}

// UpdateQuantity applies delta to a line. A result of zero or less removes the line.
// An absent line is a no-op for delta <= 0 and a validation error otherwise.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, key domain.VariantKey, delta int) (domain.Cart, error) {
	productID = strings.TrimSpace(productID)
	key = domain.NewVariantKey(key.Size, key.Color)

	s.mu.Lock()
	defer s.mu.Unlock()

	backend := s.backend()
	current, err := backend.Load(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	idx := current.Find(productID, key)
	if idx < 0 {
		if delta <= 0 {
			return current, nil
		}
		return domain.Cart{}, domain.FieldErrors{"productId": "is not in the cart"}
	}
	if delta == 0 {
		return current, nil
	}

	next := current.Items[idx].Quantity + delta
	var updated domain.Cart
	if next <= 0 {
		updated, err = backend.Remove(ctx, productID, key)
	} else {
		updated, err = backend.SetQuantity(ctx, productID, key, next)
	}
	if err != nil {
		return domain.Cart{}, err
	}
	return s.changed(ctx, updated, ReasonUpdate), nil
}

// RemoveItem deletes a line. Removing an absent line succeeds and leaves the cart unchanged.
func (s *Store) RemoveItem(ctx context.Context, productID string, key domain.VariantKey) (domain.Cart, error) {
	productID = strings.TrimSpace(productID)
	key = domain.NewVariantKey(key.Size, key.Color)

	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := s.backend().Remove(ctx, productID, key)
	if err != nil {
		return domain.Cart{}, err
	}
	return s.changed(ctx, updated, ReasonRemove), nil
}

// Clear empties the authoritative backend and, for users, the cached copy.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend().Clear(ctx); err != nil {
		return err
	}
	if s.Authenticated() && s.cache != nil {
		if err := s.cache.Delete(ctx, s.cacheKey()); err != nil {
			s.logger(ctx, "cart.cache_delete_failed", map[string]any{"error": err.Error()})
		}
	}
	cart := emptyCart()
	cart.UpdatedAt = s.now()
	s.notifier.Publish(Event{Cart: cart, Reason: ReasonClear})
	return nil
}

// SyncLocalToRemote merges the device cart into the user's server cart once per store.
// Every local line is attempted; failed lines are logged and joined into the returned error.
// Each merged line leaves the device cart right away, so a retry never adds it twice. Lines
// already merged are not rolled back, and the device cart is cleared afterwards. The merge
// counts as done only once the device cart is empty; a failed load or clear is retried on the
// next call.
func (s *Store) SyncLocalToRemote(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.synced {
		return nil
	}
	if !s.Authenticated() {
		return domain.ErrUnauthenticated
	}

	local, err := s.local.Load(ctx)
	if err != nil {
		s.logger(ctx, "cart.sync_load_failed", map[string]any{"error": err.Error()})
		return fmt.Errorf("cart: load local cart: %w", err)
	}
	if local.IsEmpty() {
		s.synced = true
		return nil
	}

	var errs []error
	merged := 0
	var latest domain.Cart
	for _, line := range local.Items {
		updated, err := s.remote.Add(ctx, line)
		if err != nil {
			s.logger(ctx, "cart.sync_line_failed", map[string]any{
				"userID":    s.remote.identity.UserID,
				"productID": line.ProductID,
				"variant":   line.Variant.String(),
				"error":     err.Error(),
			})
			errs = append(errs, fmt.Errorf("cart: sync %s %s: %w", line.ProductID, line.Variant, err))
			continue
		}
		latest = updated
		merged++
		if _, err := s.local.Remove(ctx, line.ProductID, line.Variant); err != nil {
			s.logger(ctx, "cart.sync_drop_local_line_failed", map[string]any{"productID": line.ProductID, "error": err.Error()})
		}
	}

	if err := s.local.Clear(ctx); err != nil {
		s.logger(ctx, "cart.sync_clear_local_failed", map[string]any{"error": err.Error()})
		errs = append(errs, fmt.Errorf("cart: clear local cart: %w", err))
	} else {
		s.synced = true
	}
	s.logger(ctx, "cart.synced", map[string]any{
		"userID": s.remote.identity.UserID,
		"lines":  len(local.Items),
		"merged": merged,
	})
	if merged > 0 {
		s.changed(ctx, latest, ReasonSync)
	}
	return errors.Join(errs...)
}

func (s *Store) changed(ctx context.Context, cart domain.Cart, reason Reason) domain.Cart {
	if cart.Items == nil {
		cart.Items = []domain.CartLineItem{}
	}
	s.remember(ctx, cart)
	s.notifier.Publish(Event{Cart: cart, Reason: reason})
	return cart
}

// remember refreshes the per-user offline copy after a successful remote read or write.
func (s *Store) remember(ctx context.Context, cart domain.Cart) {
	if !s.Authenticated() || s.cache == nil {
		return
	}
	data, err := json.Marshal(cart)
	if err == nil {
		err = s.cache.Put(ctx, s.cacheKey(), data)
	}
	if err != nil {
		s.logger(ctx, "cart.cache_write_failed", map[string]any{"error": err.Error()})
	}
}

func (s *Store) cached(ctx context.Context) domain.Cart {
	if s.cache == nil {
		return emptyCart()
	}
	data, err := s.cache.Get(ctx, s.cacheKey())
	if err != nil {
		if !errors.Is(err, localstore.ErrNotFound) {
			s.logger(ctx, "cart.cache_read_failed", map[string]any{"error": err.Error()})
		}
		return emptyCart()
	}
	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		s.logger(ctx, "cart.cache_decode_failed", map[string]any{"error": err.Error()})
		return emptyCart()
	}
	if cart.Items == nil {
		cart.Items = []domain.CartLineItem{}
	}
	return cart
}

func (s *Store) cacheKey() string {
	return localstore.UserCartKey(s.remote.identity.UserID)
}

func emptyCart() domain.Cart {
	return domain.Cart{Items: []domain.CartLineItem{}}
}
