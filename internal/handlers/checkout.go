package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/checkout"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/httpx"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/storefront"
)

const maxCheckoutBodySize = 8 * 1024

type checkoutResponse struct {
	State checkout.State `json:"checkout"`
	Cart  cartPayload    `json:"cart"`
}

func buildCheckoutResponse(state checkout.State) checkoutResponse {
	return checkoutResponse{State: state, Cart: buildCartPayload(state.CartSnapshot)}
}

type selectAddressRequest struct {
	AddressID string `json:"addressId"`
}

type paymentMethodRequest struct {
	Method string `json:"method"`
}

type paymentCallbackRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
}

// CheckoutRoutes wires /checkout.
func (h *StorefrontHandlers) CheckoutRoutes(r chi.Router) {
	r.Get("/", h.checkoutState)
	r.Post("/start", h.startCheckout)
	r.Post("/address", h.selectAddress)
	r.Post("/continue", h.continueCheckout)
	r.Post("/change-address", h.changeAddress)
	r.Post("/payment-method", h.selectPaymentMethod)
	r.Post("/place", h.placeOrder)
	r.Post("/payment/callback", h.paymentCallback)
	r.Post("/reset", h.resetCheckout)
}

func (h *StorefrontHandlers) checkoutState(w http.ResponseWriter, r *http.Request) {
	live, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, buildCheckoutResponse(live.Checkout.State()))
}

func (h *StorefrontHandlers) startCheckout(w http.ResponseWriter, r *http.Request) {
	live, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	state, err := live.Checkout.Start(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCheckoutResponse(state))
}

func (h *StorefrontHandlers) selectAddress(w http.ResponseWriter, r *http.Request) {
	live, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req selectAddressRequest
	if !decodeBody(w, r, maxCheckoutBodySize, &req) {
		return
	}
	state, err := live.Checkout.SelectAddress(req.AddressID)
	h.writeTransition(w, r, state, err)
}

func (h *StorefrontHandlers) continueCheckout(w http.ResponseWriter, r *http.Request) {
	live, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	state, err := live.Checkout.Continue()
	h.writeTransition(w, r, state, err)
}

func (h *StorefrontHandlers) changeAddress(w http.ResponseWriter, r *http.Request) {
	live, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	state, err := live.Checkout.ChangeAddress()
	h.writeTransition(w, r, state, err)
}

func (h *StorefrontHandlers) selectPaymentMethod(w http.ResponseWriter, r *http.Request) {
	live, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req paymentMethodRequest
	if !decodeBody(w, r, maxCheckoutBodySize, &req) {
		return
	}
	state, err := live.Checkout.SelectPaymentMethod(domain.PaymentMethod(req.Method))
	h.writeTransition(w, r, state, err)
}

// placeOrder starts the placement. Cash on delivery answers with the final outcome; online
// payment answers 202 with the gateway handle as soon as the browser has to act.
func (h *StorefrontHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	live, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	attempt, err := live.Checkout.Begin(ctx)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	if live.Checkout.State().PaymentMethod == domain.PaymentOnline {
		if _, prompted := live.AwaitPrompt(ctx, attempt.Done()); prompted {
			httpx.WriteJSON(w, http.StatusAccepted, buildCheckoutResponse(live.Checkout.State()))
			return
		}
	}
	h.writeAttempt(w, r, live, attempt)
}

// paymentCallback receives the gateway SDK's result from the browser and, once the placement
// finishes, answers with its outcome.
func (h *StorefrontHandlers) paymentCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	live, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req paymentCallbackRequest
	if !decodeBody(w, r, maxCheckoutBodySize, &req) {
		return
	}
	kind, known := checkout.ParseOutcomeKind(req.Status)
	if !known {
		writeFieldErrors(ctx, w, map[string]string{"status": "must be success, cancelled or failed"})
		return
	}
	if kind == checkout.OutcomeSuccess {
		missing := map[string]string{}
		if strings.TrimSpace(req.PaymentID) == "" {
			missing["paymentId"] = "is required"
		}
		if strings.TrimSpace(req.Signature) == "" && isAPIHandle(live) {
			missing["signature"] = "is required"
		}
		if len(missing) > 0 {
			writeFieldErrors(ctx, w, missing)
			return
		}
	}
	attempt, inFlight := live.Checkout.InFlight()
	if !inFlight {
		writeDomainError(ctx, w, checkout.ErrNoPendingPayment)
		return
	}
	err := live.Gateway.Resolve(req.OrderID, checkout.Outcome{
		Kind:      kind,
		PaymentID: strings.TrimSpace(req.PaymentID),
		Signature: strings.TrimSpace(req.Signature),
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	h.writeAttempt(w, r, live, attempt)
}

// isAPIHandle reports whether the waiting payment goes through the REST gateway, whose
// verification needs the signature.
func isAPIHandle(live *storefront.Session) bool {
	h, ok := live.Gateway.Pending()
	return ok && h.Provider == checkout.ProviderAPI
}

func (h *StorefrontHandlers) resetCheckout(w http.ResponseWriter, r *http.Request) {
	live, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := live.Checkout.Reset(); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCheckoutResponse(live.Checkout.State()))
}

func (h *StorefrontHandlers) writeAttempt(w http.ResponseWriter, r *http.Request, live *storefront.Session, attempt *checkout.Attempt) {
	ctx := r.Context()
	if _, err := attempt.Wait(ctx); err != nil {
		apiErr := domainError(err)
		if errors.Is(err, checkout.ErrCartChanged) {
			current := buildCheckoutResponse(live.Checkout.State())
			apiErr = apiErr.With("checkout", current.State).With("cart", current.Cart)
		}
		httpx.WriteError(ctx, w, apiErr)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCheckoutResponse(live.Checkout.State()))
}

func (h *StorefrontHandlers) writeTransition(w http.ResponseWriter, r *http.Request, state checkout.State, err error) {
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCheckoutResponse(state))
}
