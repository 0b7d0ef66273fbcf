package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/marlonbarreto-git/warranty-checkout/internal/checkout"
	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
	"github.com/marlonbarreto-git/warranty-checkout/internal/processor"
)

const (
	eventCheckoutSessionCompleted    = "checkout.session.completed"
	eventCheckoutSessionAsyncSucceed = "checkout.session.async_payment_succeeded"
)

// BNPLReturn handles GET /checkout/bnpl/return, the partner's redirect back
// after the customer finishes the credit application.
//
// A decline reroutes to pay-in-full and sends the customer to the card page.
func (h *Handler) BNPLReturn(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.opts.BNPLSecret != "" && !processor.VerifyCallback(q, h.opts.BNPLSecret) {
		slog.Warn("bnpl_callback_bad_signature", "token", q.Get("token"))
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	if q.Get("token") == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	a, err := h.router.ConfirmBNPL(r.Context(), checkout.PartnerResult{
		Token:         q.Get("token"),
		Approved:      q.Get("status") == "success",
		PaymentPeriod: q.Get("payment_type"),
		Reference:     q.Get("reference"),
	})
	h.respondToCallback(w, r, a, err)
}

func (h *Handler) respondToCallback(w http.ResponseWriter, r *http.Request, a *model.CheckoutAttempt, err error) {
	if err != nil {
		if a != nil && errors.Is(err, checkout.ErrPaymentFailed) {
			writeJSON(w, statusFor(err), toCheckoutResponse(a))
			return
		}
		writeError(w, statusFor(err), err.Error())
		return
	}

	if a.FellBack() && !a.Settled() && a.RedirectURL != "" {
		http.Redirect(w, r, a.RedirectURL, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutResponse(a))
}

// CardComplete handles POST /checkout/card/complete, the card provider's
// payment webhook. Only signed events are accepted. A completed session is
// settled once it is paid; other events are acknowledged and ignored.
func (h *Handler) CardComplete(w http.ResponseWriter, r *http.Request) {
	if h.opts.StripeWebhookSecret == "" {
		slog.Error("card_webhook_rejected", "reason", "STRIPE_WEBHOOK_SECRET not set")
		writeError(w, http.StatusServiceUnavailable, "card webhook is not configured")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"),
		h.opts.StripeWebhookSecret, webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		slog.Warn("card_webhook_bad_signature", "error", err.Error())
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	switch string(event.Type) {
	case eventCheckoutSessionCompleted, eventCheckoutSessionAsyncSucceed:
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if event.Data == nil {
		writeError(w, http.StatusBadRequest, "event has no data")
		return
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		writeError(w, http.StatusBadRequest, "invalid checkout session: "+err.Error())
		return
	}
	token := sess.ClientReferenceID
	if token == "" {
		token = sess.Metadata["token"]
	}

	// Delayed payment methods complete the session before the money arrives;
	// async_payment_succeeded follows once it does.
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		slog.Info("card_payment_pending", "token", token, "session", sess.ID, "payment_status", sess.PaymentStatus)
		writeJSON(w, http.StatusOK, map[string]string{"status": "awaiting_payment"})
		return
	}

	a, err := h.router.CompleteCard(r.Context(), checkout.CardPayment{
		Token:     token,
		Reference: sess.ID,
		Amount:    sess.AmountTotal,
		Currency:  string(sess.Currency),
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutResponse(a))
}

// DemoCardComplete handles GET /demo/card/{token}. It stands in for the
// card provider's hosted page and webhook when running with demo providers.
func (h *Handler) DemoCardComplete(w http.ResponseWriter, r *http.Request) {
	a, err := h.router.Get(r.PathValue("token"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	a, err = h.router.CompleteCard(r.Context(), checkout.CardPayment{
		Token:     a.Token,
		Reference: "demo_" + a.Token,
		Amount:    a.Amount,
		Currency:  a.Currency,
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutResponse(a))
}

// DemoBNPLDecision handles GET /demo/bnpl/{token}?status=success|failure.
func (h *Handler) DemoBNPLDecision(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	a, err := h.router.ConfirmBNPL(r.Context(), checkout.PartnerResult{
		Token:     token,
		Approved:  r.URL.Query().Get("status") != "failure",
		Reference: "demo_" + token,
	})
	h.respondToCallback(w, r, a, err)
}
