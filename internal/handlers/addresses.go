package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/address"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/httpx"
)

const maxAddressBodySize = 8 * 1024

type addressListResponse struct {
	Addresses []domain.Address `json:"addresses"`
	Default   *domain.Address  `json:"default,omitempty"`
	Notice    string           `json:"notice,omitempty"`
}

func buildAddressList(list []domain.Address, err error) addressListResponse {
	resp := addressListResponse{Addresses: list, Notice: noticeFor(err)}
	if resp.Addresses == nil {
		resp.Addresses = []domain.Address{}
	}
	if addr, ok := address.Default(resp.Addresses); ok {
		resp.Default = &addr
	}
	return resp
}

// AddressRoutes wires /addresses. Everything except validate checks for a signed-in user itself.
func (h *StorefrontHandlers) AddressRoutes(r chi.Router) {
	r.Post("/validate", h.validateAddress)
	r.Get("/", h.listAddresses)
	r.Post("/", h.createAddress)
	r.Put("/{addressID}", h.updateAddress)
	r.Delete("/{addressID}", h.deleteAddress)
	r.Put("/{addressID}/default", h.setDefaultAddress)
}

// validateAddress runs the shared add/edit validation without touching the network.
func (h *StorefrontHandlers) validateAddress(w http.ResponseWriter, r *http.Request) {
	var fields domain.AddressFields
	if !decodeBody(w, r, maxAddressBodySize, &fields) {
		return
	}
	errs := address.Validate(fields)
	if len(errs) > 0 {
		writeFieldErrors(r.Context(), w, errs)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"valid": true, "fields": address.Normalize(fields)})
}

func (h *StorefrontHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	live, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	list, err := live.Addresses.List(r.Context())
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, buildAddressList(list, err))
}

func (h *StorefrontHandlers) createAddress(w http.ResponseWriter, r *http.Request) {
	live, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var fields domain.AddressFields
	if !decodeBody(w, r, maxAddressBodySize, &fields) {
		return
	}
	created, err := live.Addresses.Create(r.Context(), fields)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"address": created})
}

func (h *StorefrontHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	live, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var fields domain.AddressFields
	if !decodeBody(w, r, maxAddressBodySize, &fields) {
		return
	}
	updated, err := live.Addresses.Update(r.Context(), chi.URLParam(r, "addressID"), fields)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"address": updated})
}

func (h *StorefrontHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
	live, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := live.Addresses.Delete(r.Context(), chi.URLParam(r, "addressID")); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StorefrontHandlers) setDefaultAddress(w http.ResponseWriter, r *http.Request) {
	live, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	list, err := live.Addresses.SetDefault(r.Context(), chi.URLParam(r, "addressID"))
	setNoStore(w)
	if err != nil {
		// A failed change still re-fetches, so the browser can redraw the server's current default.
		apiErr := domainError(err)
		if list != nil {
			current := buildAddressList(list, nil)
			apiErr = apiErr.With("addresses", current.Addresses).With("default", current.Default)
		}
		httpx.WriteError(r.Context(), w, apiErr)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildAddressList(list, nil))
}
