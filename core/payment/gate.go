// Package payment issues payment handles for competition fees. A handle is
// only an intent to pay; nothing in this service treats one as proof of
// payment.
package payment

import (
	"context"
	"math"
	"strings"
	"time"

	"youbble/cache"
	"youbble/core/apperr"
	"youbble/logger"

	"github.com/google/uuid"
)

// PlaceholderPrefix marks handles generated without a payment processor.
const PlaceholderPrefix = "placeholder_"

// DefaultCurrency is used when a request does not name one.
const DefaultCurrency = "usd"

// Processor creates a payment intent with an external processor and returns
// the client secret the browser uses to complete payment.
type Processor interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string) (string, error)
}

// IntentRecorder keeps an audit trail of issued handles.
type IntentRecorder interface {
	Record(ctx context.Context, intent cache.IssuedIntent) error
}

// Intent is the result handed back to the client.
type Intent struct {
	ClientSecret string `json:"clientSecret"`
	Placeholder  bool   `json:"placeholder"`
}

// Options configure a Gate. A nil Processor puts the gate in degraded mode.
type Options struct {
	Processor        Processor
	AllowPlaceholder bool
	DefaultCurrency  string
	Recorder         IntentRecorder
}

// Gate 支付网关：有处理器时委托给处理器，否则按配置签发占位句柄
type Gate struct {
	processor        Processor
	allowPlaceholder bool
	currency         string
	recorder         IntentRecorder
	now              func() time.Time
}

// NewGate builds a gate from opts.
func NewGate(opts Options) *Gate {
	currency := strings.ToLower(strings.TrimSpace(opts.DefaultCurrency))
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Gate{
		processor:        opts.Processor,
		allowPlaceholder: opts.AllowPlaceholder,
		currency:         currency,
		recorder:         opts.Recorder,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Currency is the currency used when a request names none.
func (g *Gate) Currency() string { return g.currency }

// Configured reports whether a real processor backs the gate.
func (g *Gate) Configured() bool { return g.processor != nil }

// CreateIntent obtains a payment handle for amount (major currency units).
func (g *Gate) CreateIntent(ctx context.Context, amount float64, currency string) (Intent, error) {
	minor, err := ToMinorUnits(amount)
	if err != nil {
		return Intent{}, err
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = g.currency
	}

	var intent Intent
	switch {
	case g.processor != nil:
		secret, err := g.processor.CreateIntent(ctx, minor, currency)
		if err != nil {
			logger.Error("payment processor failed",
				logger.Float64("amount", amount),
				logger.Int64("amountMinor", minor),
				logger.String("currency", currency),
				logger.ErrorField(err))
			return Intent{}, apperr.Wrap(apperr.PaymentGateError, "payment processor rejected the request, please try again", err)
		}
		intent = Intent{ClientSecret: secret}
	case g.allowPlaceholder:
		intent = Intent{ClientSecret: PlaceholderPrefix + uuid.New().String(), Placeholder: true}
		logger.Warn("issued placeholder payment handle", logger.Int64("amountMinor", minor))
	default:
		return Intent{}, apperr.New(apperr.PaymentGateUnavailable, "payments are not configured on this server")
	}

	g.record(ctx, intent, amount, currency)
	return intent, nil
}

func (g *Gate) record(ctx context.Context, intent Intent, amount float64, currency string) {
	if g.recorder == nil {
		return
	}
	err := g.recorder.Record(ctx, cache.IssuedIntent{
		Handle:      intent.ClientSecret,
		Amount:      amount,
		Currency:    currency,
		Placeholder: intent.Placeholder,
		IssuedAt:    g.now(),
	})
	if err != nil {
		logger.Warn("failed to record issued payment intent", logger.ErrorField(err))
	}
}

// ToMinorUnits converts a positive major-unit amount to minor units, rounding
// half away from zero.
func ToMinorUnits(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, apperr.New(apperr.InvalidAmount, "amount must be a positive number")
	}
	minor := math.Round(amount * 100)
	if minor < 1 {
		return 0, apperr.New(apperr.InvalidAmount, "amount is below the smallest chargeable unit")
	}
	if minor > math.MaxInt64/2 {
		return 0, apperr.New(apperr.InvalidAmount, "amount is too large")
	}
	return int64(minor), nil
}

// IsPlaceholder reports whether handle was generated without a processor.
func IsPlaceholder(handle string) bool {
	return strings.HasPrefix(handle, PlaceholderPrefix)
}
