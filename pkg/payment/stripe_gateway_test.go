package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

func newTestStripeGateway(srvURL string) *StripeGateway {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL: stripe.String(srvURL),
	})
	sc := &client.API{}
	sc.Init("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &StripeGateway{sc: sc}
}

func TestStripeInitializeAmountInCents(t *testing.T) {
	var unitAmount, txRef string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		unitAmount = r.PostForm.Get("line_items[0][price_data][unit_amount]")
		txRef = r.PostForm.Get("payment_intent_data[metadata][tx_ref]")
		w.Write([]byte(`{"id":"cs_test_1","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`))
	}))
	defer srv.Close()

	g := newTestStripeGateway(srv.URL)
	req := initRequest()
	req.Amount = 4.07 // 4.07*100 is 406.99999... in float64

	result, err := g.Initialize(context.Background(), req)
	if err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	if unitAmount != "407" {
		t.Errorf("unit_amount = %q; want 407", unitAmount)
	}
	if txRef != "order-abc" {
		t.Errorf("metadata tx_ref = %q; want order-abc", txRef)
	}
	if result.CheckoutURL != "https://checkout.stripe.com/c/pay/cs_test_1" {
		t.Errorf("CheckoutURL = %q", result.CheckoutURL)
	}
}
