package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/localstore"
)

// LocalCart keeps an anonymous cart in a device-local store under a single key.
type LocalCart struct {
	store localstore.Store
	key   string
	now   func() time.Time
}

// NewLocalCart binds a LocalCart to key in store.
func NewLocalCart(store localstore.Store, key string, clock func() time.Time) *LocalCart {
	if clock == nil {
		clock = time.Now
	}
	return &LocalCart{store: store, key: strings.TrimSpace(key), now: func() time.Time { return clock().UTC() }}
}

func (l *LocalCart) Load(ctx context.Context) (domain.Cart, error) {
	data, err := l.store.Get(ctx, l.key)
	if errors.Is(err, localstore.ErrNotFound) {
		return domain.Cart{Items: []domain.CartLineItem{}}, nil
	}
	if err != nil {
		return domain.Cart{}, err
	}
	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return domain.Cart{}, fmt.Errorf("cart: decode local cart: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []domain.CartLineItem{}
	}
	return cart, nil
}

// Add merges line into the cart. An existing identity keeps its price and gains quantity.
func (l *LocalCart) Add(ctx context.Context, line domain.CartLineItem) (domain.Cart, error) {
	cart, err := l.Load(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	if idx := cart.Find(line.ProductID, line.Variant); idx >= 0 {
		cart.Items[idx].Quantity += line.Quantity
	} else {
		cart.Items = append(cart.Items, line)
	}
	return l.save(ctx, cart)
}

func (l *LocalCart) SetQuantity(ctx context.Context, productID string, key domain.VariantKey, quantity int) (domain.Cart, error) {
	if quantity <= 0 {
		return l.Remove(ctx, productID, key)
	}
	cart, err := l.Load(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	idx := cart.Find(productID, key)
	if idx < 0 {
		return cart, nil
	}
	cart.Items[idx].Quantity = quantity
	return l.save(ctx, cart)
}

func (l *LocalCart) Remove(ctx context.Context, productID string, key domain.VariantKey) (domain.Cart, error) {
	cart, err := l.Load(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	idx := cart.Find(productID, key)
	if idx < 0 {
		return cart, nil
	}
	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	return l.save(ctx, cart)
}

func (l *LocalCart) Clear(ctx context.Context) error {
	return l.store.Delete(ctx, l.key)
}

func (l *LocalCart) save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	cart.UpdatedAt = l.now()
	data, err := json.Marshal(cart)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("cart: encode local cart: %w", err)
	}
	if err := l.store.Put(ctx, l.key, data); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}
