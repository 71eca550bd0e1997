package apiclient

import (
	"context"
	"net/http"
	"strings"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
)

type addressPayload struct {
	Label   string `json:"label"`
	Phone   string `json:"phone"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	Country string `json:"country,omitempty"`
}

func toAddressPayload(fields domain.AddressFields) addressPayload {
	return addressPayload{
		Label:   strings.TrimSpace(fields.Label),
		Phone:   strings.TrimSpace(fields.Phone),
		Line1:   strings.TrimSpace(fields.Line1),
		Line2:   strings.TrimSpace(fields.Line2),
		Country: strings.TrimSpace(fields.Country),
	}
}

// ListAddresses returns the user's saved addresses.
func (c *Client) ListAddresses(ctx context.Context, token string) ([]domain.Address, error) {
	var raw any
	if err := c.do(ctx, token, call{method: http.MethodGet, segments: []string{"users", "addresses"}}, &raw); err != nil {
		return nil, err
	}
	return normalizeAddresses(raw), nil
}

// CreateAddress saves a new address and returns the server's copy.
func (c *Client) CreateAddress(ctx context.Context, token string, fields domain.AddressFields) (domain.Address, error) {
	var raw any
	err := c.do(ctx, token, call{
		method:   http.MethodPost,
		segments: []string{"users", "addresses"},
		body:     toAddressPayload(fields),
	}, &raw)
	if err != nil {
		return domain.Address{}, err
	}
	return normalizeAddress(unwrapObject(raw, "address")), nil
}

// UpdateAddress replaces the fields of an existing address.
func (c *Client) UpdateAddress(ctx context.Context, token, id string, fields domain.AddressFields) (domain.Address, error) {
	id = strings.TrimSpace(id)
	var raw any
	err := c.do(ctx, token, call{
		method:   http.MethodPut,
		segments: []string{"users", "addresses", id},
		body:     toAddressPayload(fields),
	}, &raw)
	if err != nil {
		return domain.Address{}, err
	}
	addr := normalizeAddress(unwrapObject(raw, "address"))
	if addr.ID == "" {
		addr.ID = id
	}
	return addr, nil
}

// DeleteAddress removes an address.
func (c *Client) DeleteAddress(ctx context.Context, token, id string) error {
	return c.do(ctx, token, call{method: http.MethodDelete, segments: []string{"users", "addresses", strings.TrimSpace(id)}}, nil)
}

// SetDefaultAddress marks id as the default. The server unsets any previous default.
func (c *Client) SetDefaultAddress(ctx context.Context, token, id string) error {
	return c.do(ctx, token, call{
		method:   http.MethodPut,
		segments: []string{"users", "addresses", strings.TrimSpace(id), "set-default"},
	}, nil)
}
