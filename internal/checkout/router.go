// Package checkout routes a priced warranty order to a payment provider.
//
// A buy-now-pay-later request that cannot be completed for any reason falls
// back to pay-in-full for the identical amount. Pay-in-full never falls back
// to buy-now-pay-later.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/marlonbarreto-git/warranty-checkout/internal/duration"
	"github.com/marlonbarreto-git/warranty-checkout/internal/health"
	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
	"github.com/marlonbarreto-git/warranty-checkout/internal/plan"
	"github.com/marlonbarreto-git/warranty-checkout/internal/pricing"
	"github.com/marlonbarreto-git/warranty-checkout/internal/processor"
	"github.com/marlonbarreto-git/warranty-checkout/internal/store"
)

var (
	// ErrPaymentFailed is returned when no further fallback is possible.
	ErrPaymentFailed = errors.New("payment could not be taken")
	// ErrUnknownToken is returned when a callback names no stored attempt.
	ErrUnknownToken = errors.New("unknown checkout token")
	// ErrWrongMethod is returned when a completion does not match how the attempt was charged.
	ErrWrongMethod = errors.New("checkout was not charged with this method")
	// ErrAmountMismatch is returned when a provider reports a payment that differs from the quote.
	ErrAmountMismatch = errors.New("paid amount does not match the checkout")
)

// Notifier sends the customer's confirmation once an order is recorded.
type Notifier interface {
	SendConfirmation(ctx context.Context, o model.Order) error
}

// Request is a customer's plan selection as received from the quote UI.
type Request struct {
	PaymentPeriod string
	Plan          string
	VehicleType   string
	Method        model.PaymentMethod
	ClientAmount  int64
	Customer      model.Customer
}

// Deps are the router's collaborators. BNPL, Orders and Notifier may be nil.
type Deps struct {
	Card     processor.Processor
	BNPL     processor.Processor
	Monitor  *health.Monitor
	Attempts store.Attempts
	Orders   store.Orders
	Notifier Notifier
}

// Options tune the router.
type Options struct {
	BaseURL             string
	AllowAmountOverride bool
}

// Router drives checkout attempts through the routing state machine.
type Router struct {
	deps     Deps
	opts     Options
	newToken func() string
}

// New creates a Router.
func New(deps Deps, opts Options) *Router {
	if deps.Monitor == nil {
		deps.Monitor = health.NewMonitor()
	}
	if deps.Attempts == nil {
		deps.Attempts = store.NewMemoryAttempts()
	}
	return &Router{deps: deps, opts: opts, newToken: uuid.NewString}
}

// HealthMonitor returns the health monitor for external access.
func (r *Router) HealthMonitor() *health.Monitor {
	return r.deps.Monitor
}

// Processors returns the configured providers.
func (r *Router) Processors() []processor.Processor {
	out := []processor.Processor{r.deps.Card}
	if r.deps.BNPL != nil {
		out = append(out, r.deps.BNPL)
	}
	return out
}

// Quote canonicalizes and prices a request into a new attempt in the Quoted state.
func (r *Router) Quote(req Request) *model.CheckoutAttempt {
	period := duration.NormalizeGeneral(req.PaymentPeriod).Period
	class := plan.ClassifyVehicle(req.Plan, req.VehicleType)
	quote := pricing.NewQuote(period, class)
	now := time.Now().UTC()

	return &model.CheckoutAttempt{
		Token:           r.newToken(),
		RequestedMethod: req.Method,
		ChargedMethod:   req.Method,
		Months:          quote.Months,
		Coverage:        quote.Coverage,
		PlanLabel:       req.Plan,
		Classification:  class,
		Amount:          pricing.ResolveAmount(quote.Amount, req.ClientAmount, r.opts.AllowAmountOverride),
		Currency:        quote.Currency,
		Customer:        req.Customer,
		State:           model.StateQuoted,
		Attempts:        make([]model.Attempt, 0, 2),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Checkout quotes the request and routes it. The returned attempt is always
// non-nil; an error is returned only when the final pay-in-full attempt failed.
func (r *Router) Checkout(ctx context.Context, req Request) (*model.CheckoutAttempt, error) {
	a := r.Quote(req)
	slog.Info("checkout_quoted",
		"token", a.Token,
		"requested_method", a.RequestedMethod,
		"months", a.Months,
		"warranty_type", a.Classification.WarrantyType,
		"amount", a.Amount,
	)
	err := r.Route(ctx, a)
	return a, err
}

// Route runs a Quoted attempt through the state machine and persists it.
func (r *Router) Route(ctx context.Context, a *model.CheckoutAttempt) error {
	if err := r.advance(a, model.StateAttemptingPrimary, string(a.RequestedMethod)); err != nil {
		return err
	}

	if a.RequestedMethod != model.BNPL {
		resp := r.submit(ctx, r.deps.Card, a, "primary: pay in full")
		return r.finish(a, resp)
	}

	if reason, ok := r.tryBNPL(ctx, a); !ok {
		return r.fallback(ctx, a, reason)
	}
	if err := r.advance(a, model.StateSucceeded, "bnpl application started"); err != nil {
		return err
	}
	return r.save(a)
}

// tryBNPL submits the credit application. It never fails the checkout: every
// problem is turned into a fallback reason.
func (r *Router) tryBNPL(ctx context.Context, a *model.CheckoutAttempt) (model.FallbackReason, bool) {
	bnpl := r.deps.BNPL
	switch {
	case bnpl == nil:
		return model.ReasonMissingCredentials, false
	case !a.Customer.HasCreditDetails():
		return model.ReasonNoCustomerData, false
	case r.deps.Monitor.IsCircuitOpen(bnpl.Name()):
		slog.Warn("processor_skipped_circuit_open", "token", a.Token, "processor", bnpl.Name())
		return model.ReasonError, false
	}

	resp := r.submit(ctx, bnpl, a, "primary: bnpl")
	if resp.Code == model.Approved && resp.RedirectURL == "" {
		resp.Code = model.MalformedResponse
		a.Attempts[len(a.Attempts)-1].Response.Code = model.MalformedResponse
	}
	if resp.Code != model.Approved {
		return model.FallbackReasonFor(resp.Code), false
	}
	a.RedirectURL = resp.RedirectURL
	return model.ReasonNone, true
}

// fallback reroutes a BNPL attempt to pay-in-full. Amount, period and plan
// are left exactly as quoted.
func (r *Router) fallback(ctx context.Context, a *model.CheckoutAttempt, reason model.FallbackReason) error {
	if err := r.triggerFallback(a, reason); err != nil {
		return err
	}
	return r.chargeCard(ctx, a, reason)
}

func (r *Router) triggerFallback(a *model.CheckoutAttempt, reason model.FallbackReason) error {
	a.FallbackReason = reason
	a.RedirectURL = ""
	if err := r.advance(a, model.StateFallbackTriggered, string(reason)); err != nil {
		return err
	}
	slog.Warn("checkout_fallback",
		"token", a.Token,
		"reason", reason,
		"requested_method", a.RequestedMethod,
		"amount", a.Amount,
		"months", a.Months,
		"warranty_type", a.Classification.WarrantyType,
	)
	return nil
}

// chargeCard submits a fallen-back attempt to the card provider.
func (r *Router) chargeCard(ctx context.Context, a *model.CheckoutAttempt, reason model.FallbackReason) error {
	if err := r.advance(a, model.StateAttemptingSecondary, string(model.PayInFull)); err != nil {
		return err
	}
	a.ChargedMethod = model.PayInFull
	resp := r.submit(ctx, r.deps.Card, a, "fallback: "+string(reason))
	return r.finish(a, resp)
}

// finish closes a pay-in-full attempt.
func (r *Router) finish(a *model.CheckoutAttempt, resp model.ProviderResponse) error {
	if resp.Code == model.Approved && resp.RedirectURL != "" {
		a.RedirectURL = resp.RedirectURL
		if err := r.advance(a, model.StateSucceeded, "card checkout created"); err != nil {
			return err
		}
		return r.save(a)
	}

	a.Error = fmt.Sprintf("%s returned %s", resp.ProcessorName, resp.Code)
	if err := r.advance(a, model.StateFailed, string(resp.Code)); err != nil {
		return err
	}
	slog.Error("checkout_failed",
		"token", a.Token,
		"processor", resp.ProcessorName,
		"code", resp.Code,
		"requested_method", a.RequestedMethod,
		"fallback_reason", a.FallbackReason,
		"amount", a.Amount,
		"months", a.Months,
		"warranty_type", a.Classification.WarrantyType,
	)
	if err := r.save(a); err != nil {
		slog.Error("checkout_save_failed", "token", a.Token, "error", err.Error())
	}
	return fmt.Errorf("%w: %s", ErrPaymentFailed, a.Error)
}

// submit calls p and records the attempt. A panicking provider is reported
// as a processor error.
func (r *Router) submit(ctx context.Context, p processor.Processor, a *model.CheckoutAttempt, reason string) (resp model.ProviderResponse) {
	if p == nil {
		resp = model.ProviderResponse{ProcessorName: "none", Code: model.Unconfigured, Timestamp: time.Now()}
	} else {
		slog.Info("payment_attempt",
			"token", a.Token,
			"processor", p.Name(),
			"attempt", len(a.Attempts)+1,
			"reason", reason,
		)
		resp = safeSubmit(ctx, p, r.submission(a))
		r.deps.Monitor.RecordOutcome(p.Name(), resp.Code)
	}

	a.Attempts = append(a.Attempts, model.Attempt{
		ProcessorName: resp.ProcessorName,
		Method:        a.ChargedMethod,
		Response:      resp,
		RoutingReason: reason,
		AttemptNumber: len(a.Attempts) + 1,
		Timestamp:     time.Now(),
	})
	return resp
}

func safeSubmit(ctx context.Context, p processor.Processor, sub model.Submission) (resp model.ProviderResponse) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("processor_panic", "processor", p.Name(), "token", sub.Token, "panic", fmt.Sprint(rec))
			resp = model.ProviderResponse{
				ProcessorName: p.Name(),
				Code:          model.ProcessorError,
				Message:       fmt.Sprint(rec),
				Timestamp:     time.Now(),
			}
		}
	}()
	resp = p.Submit(ctx, sub)
	if resp.ProcessorName == "" {
		resp.ProcessorName = p.Name()
	}
	return resp
}

func (r *Router) submission(a *model.CheckoutAttempt) model.Submission {
	sub := model.Submission{
		Token:        a.Token,
		Amount:       a.Amount,
		Currency:     a.Currency,
		Description:  fmt.Sprintf("%s warranty, %s", a.Classification.WarrantyType, a.Coverage),
		Months:       a.Months,
		WarrantyType: a.Classification.WarrantyType,
		Customer:     a.Customer,
		Metadata: map[string]string{
			"token":            a.Token,
			"warranty_type":    string(a.Classification.WarrantyType),
			"months":           strconv.Itoa(a.Months),
			"max_claim":        strconv.FormatInt(a.Classification.MaxClaim, 10),
			"requested_method": string(a.RequestedMethod),
			"fallback_reason":  string(a.FallbackReason),
			"registration":     a.Customer.Registration,
		},
	}

	token := url.QueryEscape(a.Token)
	if a.ChargedMethod == model.BNPL {
		sub.SuccessURL = r.opts.BaseURL + "/checkout/bnpl/return?status=success&token=" + token
		sub.CancelURL = r.opts.BaseURL + "/checkout/bnpl/return?status=failure&token=" + token
	} else {
		sub.SuccessURL = r.opts.BaseURL + "/checkout/success?token=" + token
		sub.CancelURL = r.opts.BaseURL + "/checkout/cancelled?token=" + token
	}
	return sub
}

func (r *Router) advance(a *model.CheckoutAttempt, to model.State, reason string) error {
	from := a.State
	if err := a.Advance(to, reason); err != nil {
		slog.Error("checkout_illegal_transition", "token", a.Token, "from", from, "to", to)
		return err
	}
	slog.Info("checkout_transition",
		"token", a.Token,
		"from", from,
		"to", to,
		"reason", reason,
		"requested_method", a.RequestedMethod,
		"amount", a.Amount,
		"months", a.Months,
		"warranty_type", a.Classification.WarrantyType,
	)
	return nil
}

func (r *Router) save(a *model.CheckoutAttempt) error {
	if err := r.deps.Attempts.Save(a); err != nil {
		return fmt.Errorf("failed to store checkout %s: %w", a.Token, err)
	}
	return nil
}

// Get returns the stored attempt for a token.
func (r *Router) Get(token string) (*model.CheckoutAttempt, error) {
	a, err := r.deps.Attempts.Get(token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownToken
	}
	return a, err
}
