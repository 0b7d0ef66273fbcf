package processor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
)

// SessionCreator creates hosted checkout sessions. *session.Client satisfies it.
type SessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeCard collects pay-in-full card payments through Stripe Checkout.
type StripeCard struct {
	configured bool
	sessions   SessionCreator
}

// NewStripeCard creates a card provider using the given secret key.
func NewStripeCard(secretKey string) *StripeCard {
	return &StripeCard{
		configured: secretKey != "",
		sessions:   &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
	}
}

// NewStripeCardWith creates a card provider around an existing session creator.
func NewStripeCardWith(sessions SessionCreator) *StripeCard {
	return &StripeCard{configured: sessions != nil, sessions: sessions}
}

func (s *StripeCard) Name() string {
	return "Stripe"
}

func (s *StripeCard) Method() model.PaymentMethod {
	return model.PayInFull
}

// SessionParams builds the checkout session request for a submission.
func SessionParams(sub model.Submission) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(sub.SuccessURL),
		CancelURL:         stripe.String(sub.CancelURL),
		ClientReferenceID: stripe.String(sub.Token),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(sub.Currency),
					UnitAmount: stripe.Int64(sub.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(sub.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if sub.Customer.Email != "" {
		params.CustomerEmail = stripe.String(sub.Customer.Email)
	}
	for k, v := range sub.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddMetadata("token", sub.Token)
	return params
}

func (s *StripeCard) Submit(ctx context.Context, sub model.Submission) model.ProviderResponse {
	start := time.Now()
	respond := func(code model.ResponseCode, msg, redirect, ref string) model.ProviderResponse {
		if msg == "" {
			msg = responseMessage(code)
		}
		return model.ProviderResponse{
			ProcessorName: s.Name(),
			Code:          code,
			Message:       msg,
			RedirectURL:   redirect,
			Reference:     ref,
			Timestamp:     time.Now(),
			Latency:       time.Since(start),
		}
	}

	if !s.configured {
		return respond(model.Unconfigured, "", "", "")
	}

	params := SessionParams(sub)
	params.Context = ctx

	cs, err := s.sessions.New(params)
	if err != nil {
		code := stripeErrorCode(ctx, err)
		return respond(code, err.Error(), "", "")
	}
	if cs == nil || cs.URL == "" {
		return respond(model.MalformedResponse, "", "", "")
	}
	return respond(model.Approved, "", cs.URL, cs.ID)
}

func stripeErrorCode(ctx context.Context, err error) model.ResponseCode {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.Timeout
	}
	var se *stripe.Error
	if !errors.As(err, &se) {
		return model.ProcessorError
	}
	switch {
	case se.HTTPStatusCode == http.StatusTooManyRequests:
		return model.RateLimited
	case se.HTTPStatusCode >= 500:
		return model.ProcessorError
	case se.HTTPStatusCode == http.StatusUnauthorized:
		return model.Unconfigured
	case se.Type == stripe.ErrorTypeCard:
		return model.Declined
	default:
		return model.ProcessorError
	}
}
