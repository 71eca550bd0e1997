package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/cart"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/httpx"
)

const maxCartBodySize = 16 * 1024

type cartItemPayload struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Image     string          `json:"image,omitempty"`
	Size      string          `json:"size"`
	Color     string          `json:"color"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type cartPayload struct {
	Items     []cartItemPayload `json:"items"`
	ItemCount int               `json:"itemCount"`
	ItemTotal decimal.Decimal   `json:"itemTotal"`
	UpdatedAt *time.Time        `json:"updatedAt,omitempty"`
}

type cartResponse struct {
	Cart   cartPayload `json:"cart"`
	Notice string      `json:"notice,omitempty"`
}

func buildCartPayload(c domain.Cart) cartPayload {
	items := make([]cartItemPayload, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, cartItemPayload{
			ProductID: item.ProductID,
			Name:      item.Snapshot.Name,
			Image:     item.Snapshot.Image,
			Size:      item.Variant.Size,
			Color:     item.Variant.Color,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal(),
		})
	}
	payload := cartPayload{Items: items, ItemCount: c.ItemCount(), ItemTotal: c.ItemTotal()}
	if !c.UpdatedAt.IsZero() {
		updated := c.UpdatedAt.UTC()
		payload.UpdatedAt = &updated
	}
	return payload
}

type addItemRequest struct {
	Product struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Image string `json:"image"`
	} `json:"product"`
	Variant struct {
		Size     string          `json:"size"`
		Color    string          `json:"color"`
		Price    decimal.Decimal `json:"price"`
		Quantity int             `json:"quantity"`
	} `json:"variant"`
	Quantity int `json:"quantity"`
}

type lineRequest struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Delta     int    `json:"delta,omitempty"`
}

// CartRoutes wires /cart.
func (h *StorefrontHandlers) CartRoutes(r chi.Router) {
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Get("/summary", h.cartSummary)
	r.Post("/items", h.addItem)
	r.Patch("/items", h.updateItem)
	r.Delete("/items", h.removeItem)
}

// StreamRoutes wires long-lived endpoints that must not be cut by the request timeout.
func (h *StorefrontHandlers) StreamRoutes(r chi.Router) {
	r.Get("/cart/events", h.cartEvents)
}

func setNoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
}

func (h *StorefrontHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	b, ok := h.requireBrowser(w, r)
	if !ok {
		return
	}
	current, err := b.live.Cart.Get(r.Context())
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartPayload(current), Notice: noticeFor(err)})
}

func (h *StorefrontHandlers) cartSummary(w http.ResponseWriter, r *http.Request) {
	b, ok := h.requireBrowser(w, r)
	if !ok {
		return
	}
	current, err := b.live.Cart.Get(r.Context())
	payload := map[string]any{
		"itemCount": current.ItemCount(),
		"itemTotal": current.ItemTotal(),
	}
	if notice := noticeFor(err); notice != "" {
		payload["notice"] = notice
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *StorefrontHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	b, ok := h.requireBrowser(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	product := domain.Product{ID: req.Product.ID, Name: req.Product.Name, Image: req.Product.Image}
	variant := domain.Variant{Size: req.Variant.Size, Color: req.Variant.Color, Price: req.Variant.Price, Quantity: req.Variant.Quantity}
	if variant.Price.IsNegative() {
		writeFieldErrors(r.Context(), w, map[string]string{"variant.price": "must not be negative"})
		return
	}
	updated, err := b.live.Cart.AddItem(r.Context(), product, variant, req.Quantity)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartPayload(updated)})
}

func (h *StorefrontHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	b, ok := h.requireBrowser(w, r)
	if !ok {
		return
	}
	var req lineRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		writeFieldErrors(r.Context(), w, map[string]string{"productId": "is required"})
		return
	}
	updated, err := b.live.Cart.UpdateQuantity(r.Context(), req.ProductID, domain.NewVariantKey(req.Size, req.Color), req.Delta)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartPayload(updated)})
}

func (h *StorefrontHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	b, ok := h.requireBrowser(w, r)
	if !ok {
		return
	}
	var req lineRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		writeFieldErrors(r.Context(), w, map[string]string{"productId": "is required"})
		return
	}
	updated, err := b.live.Cart.RemoveItem(r.Context(), req.ProductID, domain.NewVariantKey(req.Size, req.Color))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartPayload(updated)})
}

func (h *StorefrontHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	b, ok := h.requireBrowser(w, r)
	if !ok {
		return
	}
	if err := b.live.Cart.Clear(r.Context()); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartPayload(domain.Cart{})})
}

// cartEvents streams cart changes as server-sent events. Only the latest pending change is kept
// per client so a slow reader never blocks cart mutations.
func (h *StorefrontHandlers) cartEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, ok := h.requireBrowser(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("streaming_unsupported", "streaming is not supported", http.StatusInternalServerError))
		return
	}

	events := make(chan cart.Event, 1)
	unsubscribe := b.live.Notifier.Subscribe(func(e cart.Event) {
		for {
			select {
			case events <- e:
				return
			default:
			}
			select {
			case <-events:
			default:
			}
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	initial, _ := b.live.Cart.Get(ctx)
	if err := writeEvent(w, "cart", "snapshot", buildCartPayload(initial)); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			if err := writeEvent(w, "cart", string(e.Reason), buildCartPayload(e.Cart)); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event, reason string, payload cartPayload) error {
	data, err := json.Marshal(map[string]any{"reason": reason, "cart": payload})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
