package storefront

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/checkout"
)

func checkoutFees() checkout.Fees {
	return checkout.Fees{Delivery: decimal.NewFromInt(39), Currency: "INR"}
}

func checkoutSuccess() checkout.Outcome {
	return checkout.Outcome{Kind: checkout.OutcomeSuccess, PaymentID: "pay_1", Signature: "sig"}
}

func (r *Registry) lookup(deviceID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[strings.TrimSpace(deviceID)]
	return sess, ok
}

func (r *Registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
