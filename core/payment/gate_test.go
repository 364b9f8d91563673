package payment

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"youbble/cache"
	"youbble/core/apperr"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

type fakeProcessor struct {
	secret string
	err    error

	gotMinor    int64
	gotCurrency string
}

func (f *fakeProcessor) CreateIntent(ctx context.Context, amountMinor int64, currency string) (string, error) {
	f.gotMinor, f.gotCurrency = amountMinor, currency
	return f.secret, f.err
}

type fakeRecorder struct {
	records []cache.IssuedIntent
	err     error
}

func (f *fakeRecorder) Record(ctx context.Context, intent cache.IssuedIntent) error {
	f.records = append(f.records, intent)
	return f.err
}

func TestCreateIntent_DelegatesToProcessor(t *testing.T) {
	p := &fakeProcessor{secret: "pi_1_secret_x"}
	rec := &fakeRecorder{}
	g := NewGate(Options{Processor: p, Recorder: rec})

	intent, err := g.CreateIntent(context.Background(), 35.0, "")
	require.NoError(t, err)
	require.Equal(t, "pi_1_secret_x", intent.ClientSecret)
	require.False(t, intent.Placeholder)
	require.Equal(t, int64(3500), p.gotMinor)
	require.Equal(t, "usd", p.gotCurrency)

	require.Len(t, rec.records, 1)
	require.Equal(t, "pi_1_secret_x", rec.records[0].Handle)
	require.True(t, g.Configured())
}

func TestCreateIntent_RoundsToMinorUnits(t *testing.T) {
	p := &fakeProcessor{secret: "s"}
	g := NewGate(Options{Processor: p})

	_, err := g.CreateIntent(context.Background(), 19.999, "EUR")
	require.NoError(t, err)
	require.Equal(t, int64(2000), p.gotMinor)
	require.Equal(t, "eur", p.gotCurrency)
}

func TestCreateIntent_InvalidAmount(t *testing.T) {
	g := NewGate(Options{AllowPlaceholder: true})
	for _, amount := range []float64{0, -5, math.NaN(), math.Inf(1), 0.001} {
		_, err := g.CreateIntent(context.Background(), amount, "usd")
		require.Equal(t, apperr.InvalidAmount, apperr.KindOf(err), "amount %v", amount)
	}
}

func TestCreateIntent_PlaceholderWhenUnconfigured(t *testing.T) {
	g := NewGate(Options{AllowPlaceholder: true})
	a, err := g.CreateIntent(context.Background(), 20, "usd")
	require.NoError(t, err)
	b, err := g.CreateIntent(context.Background(), 20, "usd")
	require.NoError(t, err)

	require.True(t, a.Placeholder)
	require.True(t, IsPlaceholder(a.ClientSecret))
	require.NotEqual(t, a.ClientSecret, b.ClientSecret)
	require.False(t, g.Configured())
}

func TestCreateIntent_UnavailableWithoutPlaceholder(t *testing.T) {
	g := NewGate(Options{})
	_, err := g.CreateIntent(context.Background(), 20, "usd")
	require.Equal(t, apperr.PaymentGateUnavailable, apperr.KindOf(err))
	require.True(t, apperr.KindOf(err).Retryable())
}

func TestCreateIntent_ProcessorFailure(t *testing.T) {
	g := NewGate(Options{Processor: &fakeProcessor{err: errors.New("card_declined")}, AllowPlaceholder: true})
	_, err := g.CreateIntent(context.Background(), 20, "usd")
	require.Equal(t, apperr.PaymentGateError, apperr.KindOf(err))
}

func TestCreateIntent_RecorderFailureIsNotFatal(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("redis down")}
	g := NewGate(Options{AllowPlaceholder: true, Recorder: rec})
	intent, err := g.CreateIntent(context.Background(), 20, "usd")
	require.NoError(t, err)
	require.NotEmpty(t, intent.ClientSecret)
	require.Len(t, rec.records, 1)
	require.True(t, rec.records[0].Placeholder)
}

func TestIsPlaceholder(t *testing.T) {
	require.True(t, IsPlaceholder("placeholder_123"))
	require.False(t, IsPlaceholder("pi_123_secret_456"))
	require.False(t, IsPlaceholder("demo_123"))
}

func newStripeTestBackend(url string) stripe.Backend {
	return stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(url),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
}

func TestStripeProcessor_CreateIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "3500", r.PostForm.Get("amount"))
		require.Equal(t, "usd", r.PostForm.Get("currency"))
		require.Equal(t, "true", r.PostForm.Get("automatic_payment_methods[enabled]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","amount":3500,"currency":"usd","client_secret":"pi_1_secret_abc"}`))
	}))
	defer srv.Close()

	p := NewStripeProcessorWithBackend("sk_test_123", newStripeTestBackend(srv.URL))
	secret, err := p.CreateIntent(context.Background(), 3500, "usd")
	require.NoError(t, err)
	require.Equal(t, "pi_1_secret_abc", secret)
}

func TestStripeProcessor_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid currency"}}`))
	}))
	defer srv.Close()

	g := NewGate(Options{Processor: NewStripeProcessorWithBackend("sk_test_123", newStripeTestBackend(srv.URL))})
	_, err := g.CreateIntent(context.Background(), 10, "xxx")
	require.Equal(t, apperr.PaymentGateError, apperr.KindOf(err))
}
