package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/httpx"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/identity"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/requestctx"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/session"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/storefront"
)

type contextKey string

const browserContextKey contextKey = "storefront/handlers/browser"

const maxSessionBodySize = 8 * 1024

type browser struct {
	cookie *session.Session
	live   *storefront.Session
}

func browserFromContext(ctx context.Context) (*browser, bool) {
	b, ok := ctx.Value(browserContextKey).(*browser)
	return b, ok && b != nil
}

// SessionMiddleware loads the signed session cookie, minting a device id for new browsers, and
// resolves the live storefront session for it.
func SessionMiddleware(cookies *session.Manager, registry *storefront.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			cookie := cookies.Load(r)
			if cookie.Dirty() {
				if err := cookies.Save(w, cookie); err != nil {
					httpx.WriteError(ctx, w, httpx.NewError("session_error", "failed to persist session", http.StatusInternalServerError))
					return
				}
			}
			live, err := registry.Session(ctx, cookie.DeviceID(), cookie.Token())
			if err != nil && !(errors.Is(err, storefront.ErrIdentityChangeDeferred) && live != nil) {
				httpx.WriteError(ctx, w, httpx.NewError("session_error", "failed to resolve session", http.StatusInternalServerError))
				return
			}
			ctx = requestctx.WithDeviceID(ctx, cookie.DeviceID())
			ctx = context.WithValue(ctx, browserContextKey, &browser{cookie: cookie, live: live})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type loginRequest struct {
	Token string `json:"token"`
}

type sessionPayload struct {
	DeviceID      string `json:"deviceId"`
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId,omitempty"`
	Cart          any    `json:"cart"`
	Notice        string `json:"notice,omitempty"`
}

// SessionRoutes wires /session.
func (h *StorefrontHandlers) SessionRoutes(r chi.Router) {
	r.Get("/", h.getSession)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
}

func (h *StorefrontHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	b, ok := h.requireBrowser(w, r)
	if !ok {
		return
	}
	h.writeSession(w, r, b.live, http.StatusOK)
}

func (h *StorefrontHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, ok := h.requireBrowser(w, r)
	if !ok {
		return
	}
	var req loginRequest
	if !decodeBody(w, r, maxSessionBodySize, &req) {
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(req.Token), "Bearer "))
	if token == "" {
		writeFieldErrors(ctx, w, map[string]string{"token": "is required"})
		return
	}
	if !identity.Inspect(token).Authenticated(h.now()) {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "token is expired or has no subject", http.StatusUnauthorized))
		return
	}
	live, ok := h.switchIdentity(w, r, b, token)
	if !ok {
		return
	}
	h.logger(ctx, "session.login", map[string]any{"deviceID": b.cookie.DeviceID(), "userID": live.Identity.UserID})
	h.writeSession(w, r, live, http.StatusOK)
}

func (h *StorefrontHandlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, ok := h.requireBrowser(w, r)
	if !ok {
		return
	}
	userID := b.live.Identity.UserID
	live, ok := h.switchIdentity(w, r, b, "")
	if !ok {
		return
	}
	h.logger(ctx, "session.logout", map[string]any{"deviceID": b.cookie.DeviceID(), "userID": userID})
	h.writeSession(w, r, live, http.StatusOK)
}

// switchIdentity rebuilds the live session for token and only then stores token in the cookie.
// An order placement in flight keeps the current identity and answers 409.
func (h *StorefrontHandlers) switchIdentity(w http.ResponseWriter, r *http.Request, b *browser, token string) (*storefront.Session, bool) {
	ctx := r.Context()
	live, err := h.registry.Session(ctx, b.cookie.DeviceID(), token)
	if errors.Is(err, storefront.ErrIdentityChangeDeferred) {
		writeDomainError(ctx, w, err)
		return nil, false
	}
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_error", "failed to resolve session", http.StatusInternalServerError))
		return nil, false
	}
	b.cookie.SetToken(token)
	if err := h.cookies.Save(w, b.cookie); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_error", "failed to persist session", http.StatusInternalServerError))
		return nil, false
	}
	b.live = live
	return live, true
}

func (h *StorefrontHandlers) writeSession(w http.ResponseWriter, r *http.Request, live *storefront.Session, status int) {
	current, err := live.Cart.Get(r.Context())
	payload := sessionPayload{
		DeviceID:      live.DeviceID,
		Authenticated: live.Authenticated(h.now()),
		UserID:        live.Identity.UserID,
		Cart:          buildCartPayload(current),
	}
	if err != nil {
		payload.Notice = noticeFor(err)
	}
	httpx.WriteJSON(w, status, payload)
}
