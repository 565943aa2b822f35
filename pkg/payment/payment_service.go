package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"gebeta-delivery/internal/models"
)

// Gateway is the contract for a hosted-checkout payment provider. Initialize
// opens a checkout session for an order total; Verify re-checks a transaction
// directly with the provider. Callback bodies are never trusted without a
// Verify round trip.
type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, txRef string) (*VerifyResult, error)
}

// InitializeRequest carries the order total and minimal payer identity.
// TxRef is derived deterministically from the order id, so retried
// initializations reuse the same gateway transaction.
type InitializeRequest struct {
	Amount    float64
	Currency  string
	TxRef     string
	FirstName string
	LastName  string
	Phone     string
	ReturnURL string
}

// InitializeResult is the hosted checkout handle for the client to open.
type InitializeResult struct {
	TxRef       string `json:"tx_ref"`
	CheckoutURL string `json:"checkout_url"`
}

type VerifyStatus string

const (
	VerifySuccess VerifyStatus = "success"
	VerifyPending VerifyStatus = "pending"
	VerifyFailed  VerifyStatus = "failed"
)

// VerifyResult is the provider's authoritative view of a transaction.
type VerifyResult struct {
	TxRef  string
	Status VerifyStatus
	Amount float64
}

func (r InitializeRequest) validate() error {
	if r.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", models.ErrPaymentInit)
	}
	if r.Currency == "" || r.TxRef == "" {
		return fmt.Errorf("%w: currency and tx_ref are required", models.ErrPaymentInit)
	}
	if r.FirstName == "" || r.Phone == "" {
		return fmt.Errorf("%w: payer name and contact are required", models.ErrPaymentInit)
	}
	return nil
}

// ChapaGateway talks to the Chapa hosted-checkout API.
type ChapaGateway struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewChapaGateway(baseURL, secretKey string) *ChapaGateway {
	return &ChapaGateway{
		baseURL:    baseURL,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// chapaEnvelope is the uniform Chapa response wrapper.
type chapaEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (g *ChapaGateway) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	body := map[string]string{
		"amount":       strconv.FormatFloat(req.Amount, 'f', 2, 64),
		"currency":     req.Currency,
		"tx_ref":       req.TxRef,
		"first_name":   req.FirstName,
		"last_name":    req.LastName,
		"phone_number": req.Phone,
		"return_url":   req.ReturnURL,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("payment.Initialize: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/transaction/initialize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("payment.Initialize: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPaymentInit, err)
	}
	defer resp.Body.Close()

	var env chapaEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", models.ErrPaymentInit, err)
	}
	if resp.StatusCode != http.StatusOK || env.Status != "success" {
		return nil, fmt.Errorf("%w: gateway rejected initialization: %s", models.ErrPaymentInit, env.Message)
	}

	var data struct {
		CheckoutURL string `json:"checkout_url"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.CheckoutURL == "" {
		return nil, fmt.Errorf("%w: response missing checkout_url", models.ErrPaymentInit)
	}

	return &InitializeResult{TxRef: req.TxRef, CheckoutURL: data.CheckoutURL}, nil
}

func (g *ChapaGateway) Verify(ctx context.Context, txRef string) (*VerifyResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/transaction/verify/"+txRef, nil)
	if err != nil {
		return nil, fmt.Errorf("payment.Verify: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	// Status first: an unknown reference is a terminal answer, and its body
	// may not be JSON.
	if resp.StatusCode == http.StatusNotFound {
		return &VerifyResult{TxRef: txRef, Status: VerifyFailed}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: verify returned status %d", models.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var env chapaEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", models.ErrUpstreamUnavailable, err)
	}

	var data struct {
		Status string  `json:"status"`
		Amount float64 `json:"amount"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: decode data: %v", models.ErrUpstreamUnavailable, err)
	}

	result := &VerifyResult{TxRef: txRef, Amount: data.Amount}
	switch data.Status {
	case "success":
		result.Status = VerifySuccess
	case "pending":
		result.Status = VerifyPending
	default:
		result.Status = VerifyFailed
	}
	return result, nil
}
