// Package notify renders and sends order confirmation emails.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/resend/resend-go/v2"

	"github.com/marlonbarreto-git/warranty-checkout/internal/duration"
	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
	"github.com/marlonbarreto-git/warranty-checkout/internal/pricing"
)

// ErrNoRecipient is returned for orders without an email address.
var ErrNoRecipient = errors.New("order has no customer email")

// CoverageText renders a month count the same way the checkout does. Values
// outside the canonical set render as the default period.
func CoverageText(months int) string {
	p, ok := duration.FromMonths(months)
	if !ok {
		slog.Warn("coverage_months_not_canonical", "months", months)
		p = duration.DefaultMonths
	}
	return p.String()
}

// Confirmation is the rendered message.
type Confirmation struct {
	Subject string
	HTML    string
	Text    string
}

type confirmationView struct {
	Name         string
	Registration string
	WarrantyType string
	Coverage     string
	MaxClaim     string
	Amount       string
	PaidBy       string
	Reference    string
}

var htmlTemplate = template.Must(template.New("confirmation").Parse(`<p>Hi {{.Name}},</p>
<p>Your {{.WarrantyType}} warranty for {{.Registration}} is confirmed.</p>
<ul>
<li>Coverage period: {{.Coverage}}</li>
<li>Maximum claim: {{.MaxClaim}}</li>
<li>Total: {{.Amount}} ({{.PaidBy}})</li>
<li>Reference: {{.Reference}}</li>
</ul>`))

// Render builds the confirmation for an order.
func Render(o model.Order) (Confirmation, error) {
	v := confirmationView{
		Name:         o.CustomerName,
		Registration: o.Registration,
		WarrantyType: string(o.WarrantyType),
		Coverage:     CoverageText(o.Months),
		MaxClaim:     pricing.FormatGBP(o.MaxClaim),
		Amount:       pricing.FormatGBP(o.Amount),
		PaidBy:       paidBy(o.ChargedMethod),
		Reference:    o.Token,
	}

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, v); err != nil {
		return Confirmation{}, err
	}

	text := fmt.Sprintf("Hi %s,\n\nYour %s warranty for %s is confirmed.\nCoverage period: %s\nMaximum claim: %s\nTotal: %s (%s)\nReference: %s\n",
		v.Name, v.WarrantyType, v.Registration, v.Coverage, v.MaxClaim, v.Amount, v.PaidBy, v.Reference)

	return Confirmation{
		Subject: fmt.Sprintf("Your %s warranty is confirmed (%s)", v.WarrantyType, v.Coverage),
		HTML:    buf.String(),
		Text:    text,
	}, nil
}

func paidBy(m model.PaymentMethod) string {
	if m == model.BNPL {
		return "pay later"
	}
	return "paid in full"
}

// EmailSender sends one email. resend.EmailsSvc satisfies it.
type EmailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendDispatcher sends confirmations through Resend.
type ResendDispatcher struct {
	from   string
	sender EmailSender
}

// NewResendDispatcher creates a dispatcher using a Resend API key.
func NewResendDispatcher(apiKey, from string) *ResendDispatcher {
	return NewDispatcher(resend.NewClient(apiKey).Emails, from)
}

// NewDispatcher creates a dispatcher around any sender.
func NewDispatcher(sender EmailSender, from string) *ResendDispatcher {
	return &ResendDispatcher{from: from, sender: sender}
}

// SendConfirmation renders and sends the order confirmation.
func (d *ResendDispatcher) SendConfirmation(ctx context.Context, o model.Order) error {
	if o.CustomerEmail == "" {
		return ErrNoRecipient
	}
	msg, err := Render(o)
	if err != nil {
		return fmt.Errorf("failed to render confirmation: %w", err)
	}

	sent, err := d.sender.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    d.from,
		To:      []string{o.CustomerEmail},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("failed to send confirmation: %w", err)
	}

	slog.Info("confirmation_sent", "token", o.Token, "email_id", sent.Id)
	return nil
}

// LogDispatcher only logs confirmations. Used when no email key is configured.
type LogDispatcher struct{}

func (LogDispatcher) SendConfirmation(_ context.Context, o model.Order) error {
	msg, err := Render(o)
	if err != nil {
		return err
	}
	slog.Info("confirmation_not_sent", "token", o.Token, "subject", msg.Subject)
	return nil
}
