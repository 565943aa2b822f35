package payment

import (
	"context"
	"fmt"
	"math"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"gebeta-delivery/internal/models"
)

// StripeGateway implements Gateway over Stripe Checkout. The order's tx_ref is
// attached to the PaymentIntent metadata so Verify can look the transaction up
// without trusting webhook bodies.
type StripeGateway struct {
	sc *client.API
}

func NewStripeGateway(apiKey string) *StripeGateway {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &StripeGateway{sc: sc}
}

func (g *StripeGateway) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{
			Context:        ctx,
			IdempotencyKey: stripe.String(req.TxRef),
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.TxRef),
		SuccessURL:        stripe.String(req.ReturnURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(int64(math.Round(req.Amount * 100))),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Order " + req.TxRef),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"tx_ref": req.TxRef},
		},
	}

	session, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPaymentInit, err)
	}

	return &InitializeResult{TxRef: req.TxRef, CheckoutURL: session.URL}, nil
}

func (g *StripeGateway) Verify(ctx context.Context, txRef string) (*VerifyResult, error) {
	params := &stripe.PaymentIntentSearchParams{
		SearchParams: stripe.SearchParams{
			Context: ctx,
			Query:   fmt.Sprintf("metadata['tx_ref']:'%s'", txRef),
		},
	}

	iter := g.sc.PaymentIntents.Search(params)
	for iter.Next() {
		pi := iter.PaymentIntent()
		result := &VerifyResult{TxRef: txRef, Amount: float64(pi.Amount) / 100}
		switch pi.Status {
		case stripe.PaymentIntentStatusSucceeded:
			result.Status = VerifySuccess
		case stripe.PaymentIntentStatusCanceled:
			result.Status = VerifyFailed
		default:
			result.Status = VerifyPending
		}
		return result, nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}

	// No intent carries this tx_ref: the checkout was never started.
	return &VerifyResult{TxRef: txRef, Status: VerifyFailed}, nil
}
