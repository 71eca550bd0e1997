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

type orderItemPayload struct {
	ProductID string      `json:"productId"`
	Name      string      `json:"name"`
	Image     string      `json:"image,omitempty"`
	Size      string      `json:"size"`
	Color     string      `json:"color"`
	Quantity  int         `json:"quantity"`
	Price     json.Number `json:"price"`
}

type orderAddressPayload struct {
	ID      string `json:"id,omitempty"`
	Label   string `json:"label"`
	Phone   string `json:"phone"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	Country string `json:"country,omitempty"`
}

type restaurantPayload struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type orderPayload struct {
	OrderID         string              `json:"orderId"`
	ShopID          string              `json:"shopId"`
	Items           []orderItemPayload  `json:"items"`
	TotalAmount     json.Number         `json:"totalAmount"`
	Currency        string              `json:"currency,omitempty"`
	PaymentMethod   string              `json:"paymentMethod"`
	PaymentStatus   string              `json:"paymentStatus"`
	PaymentID       string              `json:"paymentId,omitempty"`
	OrderStatus     string              `json:"orderStatus"`
	DeliveryAddress orderAddressPayload `json:"deliveryAddress"`
	RestaurantInfo  restaurantPayload   `json:"restaurantInfo"`
}

func toOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Snapshot.Name,
			Image:     item.Snapshot.Image,
			Size:      item.Variant.Size,
			Color:     item.Variant.Color,
			Quantity:  item.Quantity,
			Price:     json.Number(item.UnitPrice.String()),
		})
	}
	return orderPayload{
		OrderID:       order.OrderID,
		ShopID:        order.ShopID,
		Items:         items,
		TotalAmount:   json.Number(order.Totals.GrandTotal.String()),
		Currency:      order.Totals.Currency,
		PaymentMethod: string(order.PaymentMethod),
		PaymentStatus: order.PaymentStatus,
		PaymentID:     order.PaymentID,
		OrderStatus:   order.OrderStatus,
		DeliveryAddress: orderAddressPayload{
			ID:      order.DeliveryAddress.ID,
			Label:   order.DeliveryAddress.Label,
			Phone:   order.DeliveryAddress.Phone,
			Line1:   order.DeliveryAddress.Line1,
			Line2:   order.DeliveryAddress.Line2,
			Country: order.DeliveryAddress.Country,
		},
		RestaurantInfo: restaurantPayload{
			Name:    order.Restaurant.Name,
			Phone:   order.Restaurant.Phone,
			Address: order.Restaurant.Address,
		},
	}
}

// CreateOrder persists the order record. The order id doubles as the idempotency key.
func (c *Client) CreateOrder(ctx context.Context, token string, order domain.Order) error {
	return c.do(ctx, token, call{
		method:         http.MethodPost,
		segments:       []string{"users", "orders"},
		body:           toOrderPayload(order),
		idempotencyKey: order.OrderID,
	}, nil)
}

// PaymentOrder is the gateway handle returned by POST /payment/create-order.
type PaymentOrder struct {
	OrderID  string
	Amount   decimal.Decimal
	Currency string
}

// ErrMissingPaymentOrder indicates the create-order response carried no order id.
var ErrMissingPaymentOrder = errors.New("apiclient: payment order id missing")

type createPaymentOrderPayload struct {
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency,omitempty"`
}

// CreatePaymentOrder asks the backend to open a gateway order for amount.
func (c *Client) CreatePaymentOrder(ctx context.Context, token string, amount decimal.Decimal, currency, idempotencyKey string) (PaymentOrder, error) {
	var raw any
	err := c.do(ctx, token, call{
		method:         http.MethodPost,
		segments:       []string{"payment", "create-order"},
		body:           createPaymentOrderPayload{Amount: json.Number(amount.String()), Currency: currency},
		idempotencyKey: idempotencyKey,
	}, &raw)
	if err != nil {
		return PaymentOrder{}, err
	}
	obj := unwrapObject(raw, "order")
	if obj == nil {
		return PaymentOrder{}, ErrMissingPaymentOrder
	}
	order := PaymentOrder{
		OrderID:  stringField(obj, "orderId", "order_id", "id"),
		Amount:   decimalField(obj, "amount"),
		Currency: strings.ToUpper(stringField(obj, "currency")),
	}
	if order.OrderID == "" {
		return PaymentOrder{}, ErrMissingPaymentOrder
	}
	if order.Amount.IsZero() {
		order.Amount = amount
	}
	if order.Currency == "" {
		order.Currency = currency
	}
	return order, nil
}

// PaymentVerification carries the gateway's completion proof.
type PaymentVerification struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

// VerifyPayment asks the backend to check the gateway signature. Only a true result marks a payment paid.
func (c *Client) VerifyPayment(ctx context.Context, token string, v PaymentVerification) (bool, error) {
	var raw any
	err := c.do(ctx, token, call{
		method:   http.MethodPost,
		segments: []string{"payment", "verify-payment"},
		body:     v,
	}, &raw)
	if err != nil {
		return false, err
	}
	obj, _ := raw.(map[string]any)
	if _, ok := firstPresent(obj, "success", "verified"); !ok {
		obj = unwrapObject(raw)
	}
	return boolField(obj, "success", "verified"), nil
}
