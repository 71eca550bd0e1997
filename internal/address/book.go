// Package address manages the signed-in user's delivery addresses. Every mutation is a direct call
// to the API; callers render the server's answer, never a locally patched list.
package address

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/identity"
)

var (
	errAPIRequired   = errors.New("address: api is required")
	errIDRequired    = fmt.Errorf("%w: address id is required", domain.ErrValidation)
	errClockRequired = errors.New("address: clock is required")
)

// API is the subset of the REST client used by the book.
type API interface {
	ListAddresses(ctx context.Context, token string) ([]domain.Address, error)
	CreateAddress(ctx context.Context, token string, fields domain.AddressFields) (domain.Address, error)
	UpdateAddress(ctx context.Context, token, id string, fields domain.AddressFields) (domain.Address, error)
	DeleteAddress(ctx context.Context, token, id string) error
	SetDefaultAddress(ctx context.Context, token, id string) error
}

// Deps wires a Book.
type Deps struct {
	API      API
	Identity identity.Identity
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Book is the address book of one identity.
type Book struct {
	api      API
	identity identity.Identity
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// New constructs a Book.
func New(deps Deps) (*Book, error) {
	if deps.API == nil {
		return nil, errAPIRequired
	}
	if deps.Clock == nil {
		return nil, errClockRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Book{
		api:      deps.API,
		identity: deps.Identity,
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
	}, nil
}

func (b *Book) token() (string, error) {
	if !b.identity.Authenticated(b.now()) {
		return "", domain.ErrUnauthenticated
	}
	return b.identity.Token, nil
}

// List returns the saved addresses. On failure it returns an empty list with the error.
func (b *Book) List(ctx context.Context) ([]domain.Address, error) {
	token, err := b.token()
	if err != nil {
		return []domain.Address{}, err
	}
	list, err := b.api.ListAddresses(ctx, token)
	if err != nil {
		b.logger(ctx, "address.list_failed", map[string]any{"userID": b.identity.UserID, "error": err.Error()})
		return []domain.Address{}, err
	}
	if list == nil {
		list = []domain.Address{}
	}
	return list, nil
}

// Create validates fields and stores a new address.
func (b *Book) Create(ctx context.Context, fields domain.AddressFields) (domain.Address, error) {
	if errs := Validate(fields); len(errs) > 0 {
		return domain.Address{}, errs
	}
	token, err := b.token()
	if err != nil {
		return domain.Address{}, err
	}
	created, err := b.api.CreateAddress(ctx, token, Normalize(fields))
	if err != nil {
		b.logger(ctx, "address.create_failed", map[string]any{"userID": b.identity.UserID, "error": err.Error()})
		return domain.Address{}, err
	}
	return created, nil
}

// Update validates fields and replaces the address with id.
func (b *Book) Update(ctx context.Context, id string, fields domain.AddressFields) (domain.Address, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Address{}, errIDRequired
	}
	if errs := Validate(fields); len(errs) > 0 {
		return domain.Address{}, errs
	}
	token, err := b.token()
	if err != nil {
		return domain.Address{}, err
	}
	updated, err := b.api.UpdateAddress(ctx, token, id, Normalize(fields))
	if err != nil {
		b.logger(ctx, "address.update_failed", map[string]any{"userID": b.identity.UserID, "addressID": id, "error": err.Error()})
		return domain.Address{}, err
	}
	return updated, nil
}

// Delete removes the address with id.
func (b *Book) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errIDRequired
	}
	token, err := b.token()
	if err != nil {
		return err
	}
	if err := b.api.DeleteAddress(ctx, token, id); err != nil {
		b.logger(ctx, "address.delete_failed", map[string]any{"userID": b.identity.UserID, "addressID": id, "error": err.Error()})
		return err
	}
	return nil
}

// SetDefault marks id as the default address and returns the re-fetched list. The server unsets
// any previous default; the list is never patched locally. When the call fails the list is still
// re-fetched so callers can show the server's current state, and is nil if that fails as well.
func (b *Book) SetDefault(ctx context.Context, id string) ([]domain.Address, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errIDRequired
	}
	token, err := b.token()
	if err != nil {
		return []domain.Address{}, err
	}
	setErr := b.api.SetDefaultAddress(ctx, token, id)
	if setErr != nil {
		b.logger(ctx, "address.set_default_failed", map[string]any{"userID": b.identity.UserID, "addressID": id, "error": setErr.Error()})
	}
	list, listErr := b.List(ctx)
	if setErr != nil {
		if listErr != nil {
			list = nil
		}
		return list, fmt.Errorf("address: set default %s: %w", id, setErr)
	}
	return list, listErr
}

// Default returns the default address of list, falling back to the first one.
func Default(list []domain.Address) (domain.Address, bool) {
	for _, addr := range list {
		if addr.IsDefault {
			return addr, true
		}
	}
	if len(list) > 0 {
		return list[0], true
	}
	return domain.Address{}, false
}

// Find returns the address with id.
func Find(list []domain.Address, id string) (domain.Address, bool) {
	id = strings.TrimSpace(id)
	for _, addr := range list {
		if addr.ID == id {
			return addr, true
		}
	}
	return domain.Address{}, false
}
