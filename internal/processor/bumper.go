package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
	"github.com/marlonbarreto-git/warranty-checkout/internal/pricing"
)

// BumperConfig holds the credentials and endpoint of the BNPL partner.
type BumperConfig struct {
	BaseURL   string
	APIKey    string
	SecretKey string
	Client    *http.Client
}

// Bumper submits buy-now-pay-later credit applications.
type Bumper struct {
	cfg BumperConfig
}

// NewBumper creates a Bumper provider.
func NewBumper(cfg BumperConfig) *Bumper {
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Bumper{cfg: cfg}
}

func (b *Bumper) Name() string {
	return "Bumper"
}

func (b *Bumper) Method() model.PaymentMethod {
	return model.BNPL
}

type bumperProduct struct {
	Item     string `json:"item"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
}

type bumperResponse struct {
	Status string `json:"status"`
	Data   struct {
		RedirectURL string `json:"redirect_url"`
		Token       string `json:"token"`
	} `json:"data"`
	Message string `json:"message"`
}

// ApplicationFields returns the flat field set sent to Bumper, without the
// signature and product description.
func (b *Bumper) ApplicationFields(sub model.Submission) map[string]string {
	c := sub.Customer
	return map[string]string{
		"amount":                 pricing.ToMajor(sub.Amount).StringFixed(2),
		"api_key":                b.cfg.APIKey,
		"currency":               strings.ToUpper(sub.Currency),
		"email":                  c.Email,
		"failure_url":            sub.CancelURL,
		"first_name":             c.FirstName,
		"last_name":              c.LastName,
		"mobile":                 c.Phone,
		"order_reference":        sub.Token,
		"postcode":               c.Address.Postcode,
		"preferred_product_type": "paylater",
		"street":                 c.Address.Line1,
		"success_url":            sub.SuccessURL,
		"town":                   c.Address.City,
		"county":                 c.Address.County,
		"vehicle_reg":            c.Registration,
	}
}

func (b *Bumper) Submit(ctx context.Context, sub model.Submission) model.ProviderResponse {
	start := time.Now()
	respond := func(code model.ResponseCode, msg, redirect, ref string) model.ProviderResponse {
		if msg == "" {
			msg = responseMessage(code)
		}
		return model.ProviderResponse{
			ProcessorName: b.Name(),
			Code:          code,
			Message:       msg,
			RedirectURL:   redirect,
			Reference:     ref,
			Timestamp:     time.Now(),
			Latency:       time.Since(start),
		}
	}

	if b.cfg.APIKey == "" || b.cfg.SecretKey == "" || b.cfg.BaseURL == "" {
		return respond(model.Unconfigured, "", "", "")
	}

	fields := b.ApplicationFields(sub)
	payload := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		payload[k] = v
	}
	payload["product_description"] = []bumperProduct{{
		Item:     sub.Description,
		Quantity: "1",
		Price:    pricing.ToMajor(sub.Amount).StringFixed(2),
	}}
	payload["signature"] = Sign(fields, b.cfg.SecretKey)

	body, err := json.Marshal(payload)
	if err != nil {
		return respond(model.ProcessorError, err.Error(), "", "")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/application/", bytes.NewReader(body))
	if err != nil {
		return respond(model.ProcessorError, err.Error(), "", "")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.cfg.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return respond(model.Timeout, "", "", "")
		}
		return respond(model.ProcessorError, err.Error(), "", "")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return respond(model.RateLimited, "", "", "")
	case resp.StatusCode >= 500:
		return respond(model.ProcessorError, "status "+strconv.Itoa(resp.StatusCode), "", "")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return respond(model.Unconfigured, "credentials rejected", "", "")
	case resp.StatusCode >= 400:
		return respond(model.Declined, "status "+strconv.Itoa(resp.StatusCode), "", "")
	}

	var br bumperResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		slog.Warn("bumper_malformed_response", "token", sub.Token, "error", err.Error())
		return respond(model.MalformedResponse, "", "", "")
	}

	switch strings.ToLower(br.Status) {
	case "rejected", "declined", "failed":
		return respond(model.Declined, br.Message, "", br.Data.Token)
	}
	if br.Data.RedirectURL == "" {
		return respond(model.MalformedResponse, fmt.Sprintf("no redirect url (status %q)", br.Status), "", br.Data.Token)
	}
	return respond(model.Approved, "", br.Data.RedirectURL, br.Data.Token)
}
