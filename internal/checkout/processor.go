package checkout

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/apiclient"
)

// PaymentRequest asks a processor for a payment order covering Amount.
type PaymentRequest struct {
	Token          string
	OrderID        string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
}

// Verification is what the gateway handed back on success, plus what was expected to be paid.
type Verification struct {
	Token     string
	OrderID   string
	PaymentID string
	Signature string
	Amount    decimal.Decimal
	Currency  string
}

// Processor creates payment orders and verifies completed payments server side.
// Verify is the only authority for marking an online payment as paid.
type Processor interface {
	CreatePayment(ctx context.Context, req PaymentRequest) (Handle, error)
	Verify(ctx context.Context, v Verification) (bool, error)
}

// PaymentAPI is the subset of the REST client used by APIProcessor.
type PaymentAPI interface {
	CreatePaymentOrder(ctx context.Context, token string, amount decimal.Decimal, currency, idempotencyKey string) (apiclient.PaymentOrder, error)
	VerifyPayment(ctx context.Context, token string, v apiclient.PaymentVerification) (bool, error)
}

// ProviderAPI names the REST payment endpoints.
const ProviderAPI = "api"

// APIProcessor talks to the backend's /payment endpoints, which front the gateway.
type APIProcessor struct {
	api PaymentAPI
}

// NewAPIProcessor wraps api.
func NewAPIProcessor(api PaymentAPI) (*APIProcessor, error) {
	if api == nil {
		return nil, errors.New("checkout: payment api is required")
	}
	return &APIProcessor{api: api}, nil
}

// CreatePayment implements Processor.
func (p *APIProcessor) CreatePayment(ctx context.Context, req PaymentRequest) (Handle, error) {
	order, err := p.api.CreatePaymentOrder(ctx, req.Token, req.Amount, req.Currency, req.IdempotencyKey)
	if err != nil {
		return Handle{}, err
	}
	amount := order.Amount
	if amount.IsZero() {
		amount = req.Amount
	}
	currency := strings.TrimSpace(order.Currency)
	if currency == "" {
		currency = req.Currency
	}
	return Handle{Provider: ProviderAPI, OrderID: order.OrderID, Amount: amount, Currency: currency}, nil
}

// Verify implements Processor.
func (p *APIProcessor) Verify(ctx context.Context, v Verification) (bool, error) {
	return p.api.VerifyPayment(ctx, v.Token, apiclient.PaymentVerification{
		OrderID:   v.OrderID,
		PaymentID: v.PaymentID,
		Signature: v.Signature,
	})
}
