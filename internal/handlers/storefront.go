package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/checkout"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/httpx"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/session"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/storefront"
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

// StorefrontDeps wires StorefrontHandlers.
type StorefrontDeps struct {
	Cookies  *session.Manager
	Registry *storefront.Registry
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
	// Heartbeat is the interval of SSE keep-alive comments.
	Heartbeat time.Duration
}

// StorefrontHandlers serves the browser-facing session, cart, address and checkout endpoints.
type StorefrontHandlers struct {
	cookies   *session.Manager
	registry  *storefront.Registry
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
	heartbeat time.Duration
}

// NewStorefrontHandlers constructs StorefrontHandlers.
func NewStorefrontHandlers(deps StorefrontDeps) (*StorefrontHandlers, error) {
	if deps.Cookies == nil {
		return nil, errors.New("handlers: session manager is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("handlers: registry is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	heartbeat := deps.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &StorefrontHandlers{
		cookies:   deps.Cookies,
		registry:  deps.Registry,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
		heartbeat: heartbeat,
	}, nil
}

// Middleware returns the session middleware bound to the handlers' cookie manager and registry.
func (h *StorefrontHandlers) Middleware() func(http.Handler) http.Handler {
	return SessionMiddleware(h.cookies, h.registry)
}

func (h *StorefrontHandlers) requireBrowser(w http.ResponseWriter, r *http.Request) (*browser, bool) {
	b, ok := browserFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("session_missing", "browser session is not available", http.StatusInternalServerError))
		return nil, false
	}
	return b, true
}

func (h *StorefrontHandlers) requireUser(w http.ResponseWriter, r *http.Request) (*storefront.Session, bool) {
	b, ok := h.requireBrowser(w, r)
	if !ok {
		return nil, false
	}
	if !b.live.Authenticated(h.now()) {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "sign in to continue", http.StatusUnauthorized))
		return nil, false
	}
	return b.live, true
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeBody reads a JSON object into dst, writing the error response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return false
	}
	return true
}

func writeFieldErrors(ctx context.Context, w http.ResponseWriter, fields map[string]string) {
	httpx.WriteError(ctx, w, fieldError(fields))
}

func fieldError(fields map[string]string) httpx.Error {
	return httpx.NewError("validation_failed", "some fields need attention", http.StatusUnprocessableEntity).
		With("fields", fields)
}

// writeDomainError maps the storefront error taxonomy onto HTTP responses.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	httpx.WriteError(ctx, w, domainError(err))
}

func domainError(err error) httpx.Error {
	if fields, ok := domain.AsFieldErrors(err); ok {
		return fieldError(fields)
	}
	switch {
	case errors.Is(err, domain.ErrValidation):
		return httpx.NewError("validation_failed", err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrOutOfStock):
		return httpx.NewError("out_of_stock", "this option is out of stock", http.StatusConflict)
	case errors.Is(err, domain.ErrUnauthenticated):
		return httpx.NewError("unauthenticated", "sign in to continue", http.StatusUnauthorized)
	case errors.Is(err, domain.ErrOrderInFlight):
		return httpx.NewError("order_in_flight", "your order is already being placed", http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidCheckoutState):
		return httpx.NewError("invalid_checkout_state", err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrPaymentCancelled):
		return httpx.NewError("payment_cancelled", "payment was cancelled", http.StatusConflict)
	case errors.Is(err, domain.ErrPaymentVerificationFailed):
		return httpx.NewError("payment_verification_failed", "payment could not be verified; you have not been charged for an order", http.StatusPaymentRequired)
	case errors.Is(err, domain.ErrPaymentAuthorizationFailed):
		return httpx.NewError("payment_authorization_failed", "payment was not authorized", http.StatusPaymentRequired)
	case errors.Is(err, checkout.ErrNoPendingPayment):
		return httpx.NewError("no_pending_payment", "no payment is awaiting confirmation", http.StatusConflict)
	case errors.Is(err, domain.ErrNetwork):
		return httpx.NewError("upstream_unavailable", "the service is temporarily unreachable, please retry", http.StatusBadGateway)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return httpx.NewError("request_timeout", "the request took too long", http.StatusGatewayTimeout)
	default:
		return httpx.NewError("internal_error", "something went wrong", http.StatusInternalServerError)
	}
}

// noticeFor renders a non-blocking notice for reads that fell back to a safe default.
func noticeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrUnauthenticated):
		return "sign in again to see your saved data"
	case errors.Is(err, domain.ErrNetwork):
		return "showing saved data; the service is temporarily unreachable"
	default:
		return strings.TrimSpace("could not refresh: " + err.Error())
	}
}
