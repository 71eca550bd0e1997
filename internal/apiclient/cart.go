package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
)

// AddToCartRequest is the body of POST /cart/add.
type AddToCartRequest struct {
	ProductID string
	Quantity  int
	Size      string
	Color     string
	Price     decimal.Decimal
}

type addToCartPayload struct {
	ProductID string      `json:"productId"`
	Quantity  int         `json:"quantity"`
	Size      string      `json:"size"`
	Color     string      `json:"color"`
	Price     json.Number `json:"price"`
}

type variantPayload struct {
	Quantity *int   `json:"quantity,omitempty"`
	Size     string `json:"size"`
	Color    string `json:"color"`
}

// GetCart fetches the user's server-side cart.
func (c *Client) GetCart(ctx context.Context, token string) ([]domain.CartLineItem, error) {
	var raw any
	if err := c.do(ctx, token, call{method: http.MethodGet, segments: []string{"cart"}}, &raw); err != nil {
		return nil, err
	}
	return normalizeCartItems(raw), nil
}

// AddToCart posts a line to the cart. The server sums quantities for an existing identity.
// The returned cart is nil when the server answers without a body.
func (c *Client) AddToCart(ctx context.Context, token string, req AddToCartRequest) ([]domain.CartLineItem, error) {
	body := addToCartPayload{
		ProductID: strings.TrimSpace(req.ProductID),
		Quantity:  req.Quantity,
		Size:      req.Size,
		Color:     req.Color,
		Price:     json.Number(req.Price.String()),
	}
	var raw any
	if err := c.do(ctx, token, call{method: http.MethodPost, segments: []string{"cart", "add"}, body: body}, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return normalizeCartItems(raw), nil
}

// UpdateCartItem sets the absolute quantity of a line.
func (c *Client) UpdateCartItem(ctx context.Context, token, productID string, key domain.VariantKey, quantity int) error {
	body := variantPayload{Quantity: &quantity, Size: key.Size, Color: key.Color}
	return c.do(ctx, token, call{
		method:   http.MethodPut,
		segments: []string{"cart", "update", strings.TrimSpace(productID)},
		body:     body,
	}, nil)
}

// RemoveCartItem deletes a line. A 404, or a product id no route can address, is treated as
// already removed.
func (c *Client) RemoveCartItem(ctx context.Context, token, productID string, key domain.VariantKey) error {
	err := c.do(ctx, token, call{
		method:   http.MethodDelete,
		segments: []string{"cart", "remove", strings.TrimSpace(productID)},
		body:     variantPayload{Size: key.Size, Color: key.Color},
	}, nil)
	if IsNotFound(err) || errors.Is(err, ErrInvalidPathSegment) {
		return nil
	}
	return err
}

// ClearCart empties the user's server-side cart.
func (c *Client) ClearCart(ctx context.Context, token string) error {
	return c.do(ctx, token, call{method: http.MethodDelete, segments: []string{"cart", "clear"}}, nil)
}

