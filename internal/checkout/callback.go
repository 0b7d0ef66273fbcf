package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/marlonbarreto-git/warranty-checkout/internal/duration"
	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
	"github.com/marlonbarreto-git/warranty-checkout/internal/store"
)

// PartnerResult is what the BNPL partner's redirect callback reports.
type PartnerResult struct {
	Token         string
	Approved      bool
	PaymentPeriod string
	Reference     string
}

// ConfirmBNPL resolves the partner callback against the stored attempt.
// An approval records the order. A decline reroutes the stored attempt to
// pay-in-full; the returned attempt then carries the card redirect URL.
func (r *Router) ConfirmBNPL(ctx context.Context, res PartnerResult) (*model.CheckoutAttempt, error) {
	a, err := r.Get(res.Token)
	if err != nil {
		return nil, err
	}
	if a.RequestedMethod != model.BNPL {
		return a, ErrWrongMethod
	}
	if a.ChargedMethod != model.BNPL || a.State != model.StateSucceeded || a.Settled() {
		slog.Info("bnpl_callback_already_resolved",
			"token", a.Token,
			"state", a.State,
			"charged_method", a.ChargedMethod,
			"settled", a.Settled(),
		)
		return a, nil
	}

	if res.PaymentPeriod != "" {
		partner := duration.NormalizePartner(res.PaymentPeriod)
		if partner.Months() != a.Months {
			slog.Warn("partner_period_mismatch",
				"token", a.Token,
				"partner_value", res.PaymentPeriod,
				"partner_months", partner.Months(),
				"stored_months", a.Months,
			)
		}
	}

	if res.Approved {
		return a, r.settle(ctx, a, res.Reference)
	}

	slog.Warn("bnpl_declined_on_callback", "token", a.Token)
	a.Attempts = append(a.Attempts, model.Attempt{
		ProcessorName: bnplName(r),
		Method:        model.BNPL,
		Response: model.ProviderResponse{
			ProcessorName: bnplName(r),
			Code:          model.Declined,
			Message:       "declined on partner callback",
			Reference:     res.Reference,
			Timestamp:     time.Now(),
		},
		RoutingReason: "partner callback",
		AttemptNumber: len(a.Attempts) + 1,
		Timestamp:     time.Now(),
	})
	if err := r.triggerFallback(a, model.ReasonCreditCheckFailed); err != nil {
		return a, err
	}
	// Only one callback may reroute the attempt; the loser reports what the winner did.
	if err := r.deps.Attempts.SaveIfVersion(a, a.Version); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return a, fmt.Errorf("failed to claim checkout %s: %w", a.Token, err)
		}
		slog.Info("bnpl_callback_already_resolved", "token", a.Token, "reason", "concurrent callback")
		return r.Get(a.Token)
	}
	return a, r.chargeCard(ctx, a, model.ReasonCreditCheckFailed)
}

// CardPayment is the card provider's confirmation of a paid checkout.
type CardPayment struct {
	Token     string
	Reference string
	Amount    int64
	Currency  string
}

// CompleteCard records the order once the card provider confirms payment of
// the quoted amount.
func (r *Router) CompleteCard(ctx context.Context, p CardPayment) (*model.CheckoutAttempt, error) {
	a, err := r.Get(p.Token)
	if err != nil {
		return nil, err
	}
	if a.ChargedMethod != model.PayInFull || a.State != model.StateSucceeded {
		return a, ErrWrongMethod
	}
	if p.Amount != a.Amount || (p.Currency != "" && !strings.EqualFold(p.Currency, a.Currency)) {
		slog.Error("card_payment_mismatch",
			"token", a.Token,
			"paid_amount", p.Amount,
			"paid_currency", p.Currency,
			"amount", a.Amount,
			"currency", a.Currency,
		)
		return a, ErrAmountMismatch
	}
	return a, r.settle(ctx, a, p.Reference)
}

// settle writes the order with canonical values and sends the confirmation.
// Settling twice is a no-op.
func (r *Router) settle(ctx context.Context, a *model.CheckoutAttempt, reference string) error {
	if a.Settled() {
		return nil
	}

	order := model.OrderFrom(a, reference)
	created := true
	if r.deps.Orders != nil {
		var err error
		created, err = r.deps.Orders.Create(ctx, order)
		if err != nil {
			return fmt.Errorf("failed to record order %s: %w", a.Token, err)
		}
		if !created {
			slog.Info("order_already_recorded", "token", a.Token)
		}
	}

	// Whoever created the order sent the confirmation.
	if created && r.deps.Notifier != nil {
		if err := r.deps.Notifier.SendConfirmation(ctx, order); err != nil {
			slog.Error("confirmation_email_failed", "token", a.Token, "error", err.Error())
		}
	}

	now := time.Now().UTC()
	a.SettledAt = &now
	a.UpdatedAt = now
	slog.Info("order_settled",
		"token", a.Token,
		"requested_method", a.RequestedMethod,
		"charged_method", a.ChargedMethod,
		"fallback_reason", a.FallbackReason,
		"amount", a.Amount,
		"months", a.Months,
		"warranty_type", a.Classification.WarrantyType,
	)
	return r.save(a)
}

func bnplName(r *Router) string {
	if r.deps.BNPL == nil {
		return "none"
	}
	return r.deps.BNPL.Name()
}
