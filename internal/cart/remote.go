package cart

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/apiclient"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/identity"
)

// API is the subset of the REST client the remote cart uses.
type API interface {
	GetCart(ctx context.Context, token string) ([]domain.CartLineItem, error)
	AddToCart(ctx context.Context, token string, req apiclient.AddToCartRequest) ([]domain.CartLineItem, error)
	UpdateCartItem(ctx context.Context, token, productID string, key domain.VariantKey, quantity int) error
	RemoveCartItem(ctx context.Context, token, productID string, key domain.VariantKey) error
	ClearCart(ctx context.Context, token string) error
}

// RemoteCart is the server-side cart of an authenticated user. The server arbitrates concurrent writes.
type RemoteCart struct {
	api      API
	identity identity.Identity
	group    *singleflight.Group
	now      func() time.Time
}

// NewRemoteCart binds the API to a user identity. Concurrent loads for the same user
// share one request when they share group.
func NewRemoteCart(api API, id identity.Identity, group *singleflight.Group, clock func() time.Time) *RemoteCart {
	if group == nil {
		group = &singleflight.Group{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &RemoteCart{api: api, identity: id, group: group, now: func() time.Time { return clock().UTC() }}
}

// Identity returns the user the cart belongs to.
func (r *RemoteCart) Identity() identity.Identity { return r.identity }

func (r *RemoteCart) Load(ctx context.Context) (domain.Cart, error) {
	v, err, _ := r.group.Do(r.identity.UserID, func() (any, error) {
		return r.api.GetCart(ctx, r.identity.Token)
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return r.wrap(v.([]domain.CartLineItem)), nil
}

// Add posts line with its frozen price. The server sums quantities for an existing identity.
func (r *RemoteCart) Add(ctx context.Context, line domain.CartLineItem) (domain.Cart, error) {
	items, err := r.api.AddToCart(ctx, r.identity.Token, apiclient.AddToCartRequest{
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
		Size:      line.Variant.Size,
		Color:     line.Variant.Color,
		Price:     line.UnitPrice,
	})
	if err != nil {
		return domain.Cart{}, err
	}
	if items == nil {
		return r.Load(ctx)
	}
	return r.wrap(items), nil
}

func (r *RemoteCart) SetQuantity(ctx context.Context, productID string, key domain.VariantKey, quantity int) (domain.Cart, error) {
	if quantity <= 0 {
		return r.Remove(ctx, productID, key)
	}
	if err := r.api.UpdateCartItem(ctx, r.identity.Token, productID, key, quantity); err != nil {
		return domain.Cart{}, err
	}
	return r.Load(ctx)
}

func (r *RemoteCart) Remove(ctx context.Context, productID string, key domain.VariantKey) (domain.Cart, error) {
	if err := r.api.RemoveCartItem(ctx, r.identity.Token, productID, key); err != nil {
		return domain.Cart{}, err
	}
	return r.Load(ctx)
}

func (r *RemoteCart) Clear(ctx context.Context) error {
	return r.api.ClearCart(ctx, r.identity.Token)
}

func (r *RemoteCart) wrap(items []domain.CartLineItem) domain.Cart {
	cart := domain.Cart{Items: make([]domain.CartLineItem, len(items)), UpdatedAt: r.now()}
	copy(cart.Items, items)
	return cart
}
