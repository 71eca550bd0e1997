package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation indicates field-level input problems that never reach the network.
	ErrValidation = errors.New("validation failed")
	// ErrOutOfStock indicates the selected variant has no catalog quantity left.
	ErrOutOfStock = errors.New("out of stock")
	// ErrNetwork indicates a failed call to the external API.
	ErrNetwork = errors.New("network error")
	// ErrUnauthenticated indicates the operation needs a valid bearer token.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrPaymentAuthorizationFailed indicates the gateway reported a failed authorization.
	ErrPaymentAuthorizationFailed = errors.New("payment authorization failed")
	// ErrPaymentCancelled indicates the user closed the gateway without paying.
	ErrPaymentCancelled = errors.New("payment cancelled")
	// ErrPaymentVerificationFailed indicates server-side signature verification rejected the payment.
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
	// ErrOrderPersistenceFailed indicates the order record could not be stored.
	ErrOrderPersistenceFailed = errors.New("order persistence failed")
	// ErrInvalidCheckoutState indicates a transition was requested from the wrong step or without prerequisites.
	ErrInvalidCheckoutState = errors.New("invalid checkout state")
	// ErrOrderInFlight indicates a previous place-order attempt has not reached a terminal outcome.
	ErrOrderInFlight = errors.New("order placement already in progress")
)

// FieldErrors maps form field names to a human readable problem. Empty means valid.
type FieldErrors map[string]string

// Error implements the error interface so field errors can travel as a wrapped ErrValidation.
func (f FieldErrors) Error() string {
	if len(f) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, f[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

// Unwrap lets errors.Is(err, ErrValidation) match field errors.
func (f FieldErrors) Unwrap() error { return ErrValidation }

// AsFieldErrors extracts field errors from err when present.
func AsFieldErrors(err error) (FieldErrors, bool) {
	var fields FieldErrors
	if errors.As(err, &fields) {
		return fields, true
	}
	return nil, false
}
