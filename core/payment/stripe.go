package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeProcessor creates PaymentIntents through the Stripe API.
type StripeProcessor struct {
	api *client.API
}

// NewStripeProcessor returns a processor using secretKey against the live API.
func NewStripeProcessor(secretKey string) *StripeProcessor {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProcessor{api: api}
}

// NewStripeProcessorWithBackend points the processor at a custom API backend.
func NewStripeProcessorWithBackend(secretKey string, backend stripe.Backend) *StripeProcessor {
	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &StripeProcessor{api: api}
}

func (p *StripeProcessor) CreateIntent(ctx context.Context, amountMinor int64, currency string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create payment intent: %w", err)
	}
	if pi.ClientSecret == "" {
		return "", fmt.Errorf("stripe payment intent %s has no client secret", pi.ID)
	}
	return pi.ClientSecret, nil
}
