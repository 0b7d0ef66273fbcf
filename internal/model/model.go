package model

import (
	"fmt"
	"time"

	"github.com/marlonbarreto-git/warranty-checkout/internal/plan"
)

// PaymentMethod is how the customer chose to pay.
type PaymentMethod string

const (
	PayInFull PaymentMethod = "pay_in_full"
	BNPL      PaymentMethod = "bnpl"
)

// Valid returns true for a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PayInFull || m == BNPL
}

// ResponseCode represents the outcome of a provider submission.
type ResponseCode string

const (
	Approved          ResponseCode = "approved"
	Declined          ResponseCode = "declined"
	MalformedResponse ResponseCode = "malformed_response"
	Unconfigured      ResponseCode = "unconfigured"
	ProcessorError    ResponseCode = "processor_error"
	Timeout           ResponseCode = "timeout"
	RateLimited       ResponseCode = "rate_limited"
)

// IsRetriable returns true if the response code indicates a transient failure.
func (rc ResponseCode) IsRetriable() bool {
	switch rc {
	case ProcessorError, Timeout, RateLimited:
		return true
	default:
		return false
	}
}

// IsHardDecline returns true if the provider made a definitive decision against the customer.
func (rc ResponseCode) IsHardDecline() bool {
	return rc == Declined
}

// FallbackReason records why a BNPL attempt was abandoned for pay-in-full.
type FallbackReason string

const (
	ReasonNone               FallbackReason = ""
	ReasonCreditCheckFailed  FallbackReason = "credit_check_failed"
	ReasonMissingCredentials FallbackReason = "missing_credentials"
	ReasonNoCustomerData     FallbackReason = "no_customer_data"
	ReasonError              FallbackReason = "error"
)

// FallbackReasonFor maps a failed provider response code to a fallback reason.
// Malformed or empty responses count as a failed credit check.
func FallbackReasonFor(code ResponseCode) FallbackReason {
	switch code {
	case Declined, MalformedResponse:
		return ReasonCreditCheckFailed
	case Unconfigured:
		return ReasonMissingCredentials
	default:
		return ReasonError
	}
}

// State is a checkout attempt's position in the routing state machine.
type State string

const (
	StateQuoted              State = "quoted"
	StateAttemptingPrimary   State = "attempting_primary"
	StateFallbackTriggered   State = "fallback_triggered"
	StateAttemptingSecondary State = "attempting_secondary"
	StateSucceeded           State = "succeeded"
	StateFailed              State = "failed"
)

var transitions = map[State][]State{
	StateQuoted:              {StateAttemptingPrimary},
	StateAttemptingPrimary:   {StateSucceeded, StateFallbackTriggered, StateFailed},
	StateFallbackTriggered:   {StateAttemptingSecondary},
	StateAttemptingSecondary: {StateSucceeded, StateFailed},
	// A BNPL application approved by redirect can still be declined on callback.
	StateSucceeded: {StateFallbackTriggered},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true once the synchronous routing is over.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Address is a customer's postal address.
type Address struct {
	Line1    string `json:"line1"`
	Line2    string `json:"line2,omitempty"`
	City     string `json:"city"`
	County   string `json:"county,omitempty"`
	Postcode string `json:"postcode"`
}

// Customer is the contact snapshot taken at checkout.
type Customer struct {
	FirstName    string  `json:"first_name"`
	LastName     string  `json:"last_name"`
	Email        string  `json:"email"`
	Phone        string  `json:"phone"`
	Registration string  `json:"registration"`
	Address      Address `json:"address"`
}

// FullName joins first and last name.
func (c Customer) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// HasCreditDetails reports whether the snapshot is complete enough for a
// credit application.
func (c Customer) HasCreditDetails() bool {
	return c.FirstName != "" && c.LastName != "" && c.Email != "" && c.Phone != "" &&
		c.Address.Line1 != "" && c.Address.City != "" && c.Address.Postcode != ""
}

// Submission is what a provider is asked to collect.
type Submission struct {
	Token        string            `json:"token"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Description  string            `json:"description"`
	SuccessURL   string            `json:"success_url"`
	CancelURL    string            `json:"cancel_url"`
	Months       int               `json:"months"`
	WarrantyType plan.WarrantyType `json:"warranty_type"`
	Customer     Customer          `json:"customer"`
	Metadata     map[string]string `json:"metadata"`
}

// ProviderResponse represents the result of a single provider submission.
type ProviderResponse struct {
	ProcessorName string        `json:"processor_name"`
	Code          ResponseCode  `json:"code"`
	Message       string        `json:"message"`
	RedirectURL   string        `json:"redirect_url,omitempty"`
	Reference     string        `json:"reference,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	Latency       time.Duration `json:"latency"`
}

// Attempt represents a single provider submission within a checkout.
type Attempt struct {
	ProcessorName string           `json:"processor_name"`
	Method        PaymentMethod    `json:"method"`
	Response      ProviderResponse `json:"response"`
	RoutingReason string           `json:"routing_reason"`
	AttemptNumber int              `json:"attempt_number"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Transition is one entry of a checkout's state history.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// CheckoutAttempt is one effort to collect payment for a priced order.
type CheckoutAttempt struct {
	Token           string              `json:"token"`
	RequestedMethod PaymentMethod       `json:"requested_method"`
	ChargedMethod   PaymentMethod       `json:"charged_method"`
	Months          int                 `json:"months"`
	Coverage        string              `json:"coverage"`
	PlanLabel       string              `json:"plan_label"`
	Classification  plan.Classification `json:"classification"`
	Amount          int64               `json:"amount"`
	Currency        string              `json:"currency"`
	Customer        Customer            `json:"customer"`
	State           State               `json:"state"`
	History         []Transition        `json:"history"`
	FallbackReason  FallbackReason      `json:"fallback_reason,omitempty"`
	RedirectURL     string              `json:"redirect_url,omitempty"`
	Attempts        []Attempt           `json:"attempts"`
	Error           string              `json:"error,omitempty"`
	SettledAt       *time.Time          `json:"settled_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Version         int                 `json:"version"`
}

// Advance moves the attempt to a new state, recording the transition.
func (a *CheckoutAttempt) Advance(to State, reason string) error {
	if !CanTransition(a.State, to) {
		return fmt.Errorf("illegal checkout transition %s -> %s", a.State, to)
	}
	now := time.Now().UTC()
	a.History = append(a.History, Transition{From: a.State, To: to, Reason: reason, At: now})
	a.State = to
	a.UpdatedAt = now
	return nil
}

// Visited reports whether the attempt ever entered s.
func (a *CheckoutAttempt) Visited(s State) bool {
	for _, t := range a.History {
		if t.To == s {
			return true
		}
	}
	return false
}

// FellBack reports whether the checkout was rerouted to pay-in-full.
func (a *CheckoutAttempt) FellBack() bool {
	return a.FallbackReason != ReasonNone
}

// Settled reports whether the order has been recorded.
func (a *CheckoutAttempt) Settled() bool {
	return a.SettledAt != nil
}

// Order is the finalized purchase handed to the order store.
type Order struct {
	Token           string            `json:"token"`
	Registration    string            `json:"registration"`
	WarrantyType    plan.WarrantyType `json:"warranty_type"`
	Months          int               `json:"months"`
	MaxClaim        int64             `json:"max_claim"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	RequestedMethod PaymentMethod     `json:"requested_method"`
	ChargedMethod   PaymentMethod     `json:"charged_method"`
	FallbackReason  FallbackReason    `json:"fallback_reason,omitempty"`
	ProviderRef     string            `json:"provider_ref,omitempty"`
	CustomerName    string            `json:"customer_name"`
	CustomerEmail   string            `json:"customer_email"`
	CreatedAt       time.Time         `json:"created_at"`
}

// OrderFrom builds the order record from a checkout's canonical values.
func OrderFrom(a *CheckoutAttempt, providerRef string) Order {
	return Order{
		Token:           a.Token,
		Registration:    a.Customer.Registration,
		WarrantyType:    a.Classification.WarrantyType,
		Months:          a.Months,
		MaxClaim:        a.Classification.MaxClaim,
		Amount:          a.Amount,
		Currency:        a.Currency,
		RequestedMethod: a.RequestedMethod,
		ChargedMethod:   a.ChargedMethod,
		FallbackReason:  a.FallbackReason,
		ProviderRef:     providerRef,
		CustomerName:    a.Customer.FullName(),
		CustomerEmail:   a.Customer.Email,
		CreatedAt:       time.Now().UTC(),
	}
}
