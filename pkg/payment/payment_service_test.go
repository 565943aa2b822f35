package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gebeta-delivery/internal/models"
)

func initRequest() InitializeRequest {
	return InitializeRequest{
		Amount:    485,
		Currency:  "ETB",
		TxRef:     "order-abc",
		FirstName: "Abel",
		Phone:     "+251911000000",
		ReturnURL: "https://app.test/return",
	}
}

func TestChapaInitialize(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/initialize" {
			t.Errorf("path = %s; want /transaction/initialize", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"status":"success","message":"Hosted Link","data":{"checkout_url":"https://checkout.chapa.co/pay/xyz"}}`))
	}))
	defer srv.Close()

	g := NewChapaGateway(srv.URL, "secret-123")
	result, err := g.Initialize(context.Background(), initRequest())
	if err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	if result.CheckoutURL != "https://checkout.chapa.co/pay/xyz" {
		t.Errorf("CheckoutURL = %q", result.CheckoutURL)
	}
	if result.TxRef != "order-abc" {
		t.Errorf("TxRef = %q; want order-abc", result.TxRef)
	}
	if gotAuth != "Bearer secret-123" {
		t.Errorf("Authorization = %q; want bearer secret", gotAuth)
	}
	if gotBody["amount"] != "485.00" || gotBody["tx_ref"] != "order-abc" {
		t.Errorf("request body = %v", gotBody)
	}
}

func TestChapaInitializeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"failed","message":"Invalid currency"}`))
	}))
	defer srv.Close()

	g := NewChapaGateway(srv.URL, "secret-123")
	if _, err := g.Initialize(context.Background(), initRequest()); !errors.Is(err, models.ErrPaymentInit) {
		t.Errorf("Initialize = %v; want ErrPaymentInit", err)
	}
}

func TestChapaInitializeValidation(t *testing.T) {
	g := NewChapaGateway("http://unused", "secret")

	cases := []struct {
		name   string
		mutate func(*InitializeRequest)
	}{
		{"zero amount", func(r *InitializeRequest) { r.Amount = 0 }},
		{"no currency", func(r *InitializeRequest) { r.Currency = "" }},
		{"no tx_ref", func(r *InitializeRequest) { r.TxRef = "" }},
		{"no payer", func(r *InitializeRequest) { r.FirstName = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := initRequest()
			tc.mutate(&req)
			if _, err := g.Initialize(context.Background(), req); !errors.Is(err, models.ErrPaymentInit) {
				t.Errorf("Initialize = %v; want ErrPaymentInit", err)
			}
		})
	}
}

func TestChapaVerify(t *testing.T) {
	cases := []struct {
		name       string
		statusCode int
		body       string
		want       VerifyStatus
	}{
		{"success", http.StatusOK, `{"status":"success","data":{"status":"success","amount":485}}`, VerifySuccess},
		{"pending", http.StatusOK, `{"status":"success","data":{"status":"pending","amount":485}}`, VerifyPending},
		{"failed", http.StatusOK, `{"status":"success","data":{"status":"failed","amount":0}}`, VerifyFailed},
		{"unknown tx", http.StatusNotFound, `{"status":"failed","message":"not found"}`, VerifyFailed},
		{"unknown tx plain body", http.StatusNotFound, `404 page not found`, VerifyFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/transaction/verify/order-abc" {
					t.Errorf("path = %s; want /transaction/verify/order-abc", r.URL.Path)
				}
				w.WriteHeader(tc.statusCode)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			g := NewChapaGateway(srv.URL, "secret-123")
			result, err := g.Verify(context.Background(), "order-abc")
			if err != nil {
				t.Fatalf("Verify error: %v", err)
			}
			if result.Status != tc.want {
				t.Errorf("Status = %s; want %s", result.Status, tc.want)
			}
		})
	}
}

func TestChapaVerifyUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"status":"error"}`))
	}))
	defer srv.Close()

	g := NewChapaGateway(srv.URL, "secret-123")
	if _, err := g.Verify(context.Background(), "order-abc"); !errors.Is(err, models.ErrUpstreamUnavailable) {
		t.Errorf("Verify = %v; want ErrUpstreamUnavailable", err)
	}
}
