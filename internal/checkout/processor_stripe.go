package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"golang.org/x/text/currency"
)

// ProviderStripe names the Stripe PaymentIntents processor.
const ProviderStripe = "stripe"

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeConfig configures StripeProcessor.
type StripeConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   func(ctx context.Context, event string, fields map[string]any)
	intents  stripeIntentAPI
}

// StripeProcessor creates PaymentIntents and confirms them by reading the intent back from Stripe.
type StripeProcessor struct {
	intents stripeIntentAPI
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewStripeProcessor constructs a StripeProcessor.
func NewStripeProcessor(cfg StripeConfig) (*StripeProcessor, error) {
	intents := cfg.intents
	if intents == nil {
		key := strings.TrimSpace(cfg.APIKey)
		if key == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(key, cfg.Backends).PaymentIntents
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeProcessor{intents: intents, logger: logger}, nil
}

// CreatePayment implements Processor.
func (p *StripeProcessor) CreatePayment(ctx context.Context, req PaymentRequest) (Handle, error) {
	minor, code, err := minorUnits(req.Amount, req.Currency)
	if err != nil {
		return Handle{}, err
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minor),
		Currency: stripe.String(strings.ToLower(code)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if id := strings.TrimSpace(req.OrderID); id != "" {
		params.AddMetadata("orderId", id)
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return Handle{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"orderId":       req.OrderID,
		"amount":        minor,
		"currency":      code,
	})
	return Handle{
		Provider:     ProviderStripe,
		OrderID:      intent.ID,
		Amount:       req.Amount,
		Currency:     code,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// Verify implements Processor. The intent must have succeeded for the expected amount, and the
// payment id reported by the browser must name the intent or its latest charge.
func (p *StripeProcessor) Verify(ctx context.Context, v Verification) (bool, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := p.intents.Get(strings.TrimSpace(v.OrderID), params)
	if err != nil {
		return false, fmt.Errorf("stripe: get payment intent: %w", err)
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		p.logger(ctx, "payments.stripe.intent.unpaid", map[string]any{"paymentIntent": intent.ID, "status": string(intent.Status)})
		return false, nil
	}
	if paymentID := strings.TrimSpace(v.PaymentID); paymentID != "" && paymentID != intent.ID {
		if intent.LatestCharge == nil || intent.LatestCharge.ID != paymentID {
			return false, nil
		}
	}
	if !v.Amount.IsZero() {
		expected, _, err := minorUnits(v.Amount, v.Currency)
		if err != nil {
			return false, err
		}
		if intent.AmountReceived != expected {
			p.logger(ctx, "payments.stripe.intent.amount_mismatch", map[string]any{
				"paymentIntent": intent.ID,
				"expected":      expected,
				"received":      intent.AmountReceived,
			})
			return false, nil
		}
	}
	return true, nil
}

// minorUnits converts amount to the currency's smallest unit, e.g. paise for INR.
func minorUnits(amount decimal.Decimal, code string) (int64, string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return 0, "", fmt.Errorf("stripe: currency %q: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return amount.Shift(int32(scale)).Round(0).IntPart(), unit.String(), nil
}
