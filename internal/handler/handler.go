package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marlonbarreto-git/warranty-checkout/internal/checkout"
	"github.com/marlonbarreto-git/warranty-checkout/internal/duration"
	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
	"github.com/marlonbarreto-git/warranty-checkout/internal/plan"
	"github.com/marlonbarreto-git/warranty-checkout/internal/pricing"
	"github.com/marlonbarreto-git/warranty-checkout/internal/processor"
	"github.com/marlonbarreto-git/warranty-checkout/internal/vehicle"
)

// VehicleLookup resolves a registration against the vehicle registry.
type VehicleLookup interface {
	Lookup(ctx context.Context, registration string) (vehicle.Vehicle, error)
}

// Options configure the callback endpoints.
type Options struct {
	Vehicles            VehicleLookup
	BNPLSecret          string
	StripeWebhookSecret string
	Demo                bool
}

// Handler holds HTTP handler dependencies.
type Handler struct {
	router   *checkout.Router
	opts     Options
	validate *validator.Validate
}

// New creates a new Handler.
func New(router *checkout.Router, opts Options) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{router: router, opts: opts, validate: v}
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /quotes", h.CreateQuote)
	mux.HandleFunc("POST /checkout", h.StartCheckout)
	mux.HandleFunc("GET /checkout/{token}", h.GetCheckout)
	mux.HandleFunc("GET /checkout/bnpl/return", h.BNPLReturn)
	mux.HandleFunc("POST /checkout/card/complete", h.CardComplete)
	mux.HandleFunc("GET /checkout/success", h.CheckoutStatus)
	mux.HandleFunc("GET /checkout/cancelled", h.CheckoutStatus)
	mux.HandleFunc("GET /vehicles/{registration}", h.LookupVehicle)
	mux.HandleFunc("GET /health/providers", h.GetProviderHealth)
	mux.HandleFunc("POST /simulate/degrade", h.SimulateDegrade)

	if h.opts.Demo {
		mux.HandleFunc("GET /demo/card/{token}", h.DemoCardComplete)
		mux.HandleFunc("GET /demo/bnpl/{token}", h.DemoBNPLDecision)
	}
}

type quoteRequest struct {
	PaymentPeriod string `json:"payment_period" validate:"required,max=64"`
	Plan          string `json:"plan" validate:"required,max=64"`
	VehicleType   string `json:"vehicle_type" validate:"max=64"`
	Amount        int64  `json:"amount" validate:"gte=0"`
}

type addressRequest struct {
	Line1    string `json:"line1" validate:"max=128"`
	Line2    string `json:"line2" validate:"max=128"`
	City     string `json:"city" validate:"max=64"`
	County   string `json:"county" validate:"max=64"`
	Postcode string `json:"postcode" validate:"max=16"`
}

type checkoutRequest struct {
	quoteRequest
	Method       string         `json:"payment_method" validate:"required,oneof=pay_in_full bnpl"`
	FirstName    string         `json:"first_name" validate:"required,max=64"`
	LastName     string         `json:"last_name" validate:"max=64"`
	Email        string         `json:"email" validate:"required,email"`
	Phone        string         `json:"phone" validate:"max=32"`
	Registration string         `json:"registration" validate:"required,max=16"`
	Address      addressRequest `json:"address"`
}

func (r checkoutRequest) toRouterRequest() checkout.Request {
	return checkout.Request{
		PaymentPeriod: r.PaymentPeriod,
		Plan:          r.Plan,
		VehicleType:   r.VehicleType,
		Method:        model.PaymentMethod(r.Method),
		ClientAmount:  r.Amount,
		Customer: model.Customer{
			FirstName:    r.FirstName,
			LastName:     r.LastName,
			Email:        r.Email,
			Phone:        r.Phone,
			Registration: vehicle.NormalizeRegistration(r.Registration),
			Address: model.Address{
				Line1:    r.Address.Line1,
				Line2:    r.Address.Line2,
				City:     r.Address.City,
				County:   r.Address.County,
				Postcode: r.Address.Postcode,
			},
		},
	}
}

type quoteResponse struct {
	Months         int               `json:"months"`
	Coverage       string            `json:"coverage"`
	WarrantyType   plan.WarrantyType `json:"warranty_type"`
	MaxClaim       int64             `json:"max_claim"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Display        string            `json:"display"`
	MonthlyDisplay string            `json:"monthly_display"`
}

// CreateQuote handles POST /quotes
func (h *Handler) CreateQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !h.decode(w, r, &req) {
		return
	}

	a := h.router.Quote(checkout.Request{
		PaymentPeriod: req.PaymentPeriod,
		Plan:          req.Plan,
		VehicleType:   req.VehicleType,
		ClientAmount:  req.Amount,
	})

	writeJSON(w, http.StatusOK, quoteResponse{
		Months:         a.Months,
		Coverage:       a.Coverage,
		WarrantyType:   a.Classification.WarrantyType,
		MaxClaim:       a.Classification.MaxClaim,
		Amount:         a.Amount,
		Currency:       a.Currency,
		Display:        pricing.FormatGBP(a.Amount),
		MonthlyDisplay: pricing.FormatGBP(pricing.MonthlyInstalment(a.Amount, duration.Period(a.Months))),
	})
}

type checkoutResponse struct {
	Token           string               `json:"token"`
	State           model.State          `json:"state"`
	RequestedMethod model.PaymentMethod  `json:"requested_method"`
	ChargedMethod   model.PaymentMethod  `json:"charged_method"`
	FallbackReason  model.FallbackReason `json:"fallback_reason,omitempty"`
	RedirectURL     string               `json:"redirect_url,omitempty"`
	Months          int                  `json:"months"`
	WarrantyType    plan.WarrantyType    `json:"warranty_type"`
	Amount          int64                `json:"amount"`
	Currency        string               `json:"currency"`
	Settled         bool                 `json:"settled"`
	Error           string               `json:"error,omitempty"`
}

func toCheckoutResponse(a *model.CheckoutAttempt) checkoutResponse {
	return checkoutResponse{
		Token:           a.Token,
		State:           a.State,
		RequestedMethod: a.RequestedMethod,
		ChargedMethod:   a.ChargedMethod,
		FallbackReason:  a.FallbackReason,
		RedirectURL:     a.RedirectURL,
		Months:          a.Months,
		WarrantyType:    a.Classification.WarrantyType,
		Amount:          a.Amount,
		Currency:        a.Currency,
		Settled:         a.Settled(),
		Error:           a.Error,
	}
}

// StartCheckout handles POST /checkout
func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	a, err := h.router.Checkout(r.Context(), req.toRouterRequest())
	if err != nil {
		status := statusFor(err)
		if a != nil && errors.Is(err, checkout.ErrPaymentFailed) {
			writeJSON(w, status, toCheckoutResponse(a))
			return
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toCheckoutResponse(a))
}

// GetCheckout handles GET /checkout/{token}
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	a, err := h.router.Get(token)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// CheckoutStatus handles the card provider's success and cancel pages.
func (h *Handler) CheckoutStatus(w http.ResponseWriter, r *http.Request) {
	a, err := h.router.Get(r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutResponse(a))
}

type vehicleResponse struct {
	vehicle.Vehicle
	VehicleType      string            `json:"vehicle_type"`
	WarrantyTypeHint plan.WarrantyType `json:"warranty_type_hint,omitempty"`
}

// LookupVehicle handles GET /vehicles/{registration}
func (h *Handler) LookupVehicle(w http.ResponseWriter, r *http.Request) {
	if h.opts.Vehicles == nil {
		writeError(w, http.StatusServiceUnavailable, "vehicle lookup is not configured")
		return
	}

	v, err := h.opts.Vehicles.Lookup(r.Context(), r.PathValue("registration"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	resp := vehicleResponse{Vehicle: v, VehicleType: v.Type()}
	if c := plan.Classify(v.Type()); c.WarrantyType.IsSpecialVehicle() {
		resp.WarrantyTypeHint = c.WarrantyType
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProviderHealth handles GET /health/providers
func (h *Handler) GetProviderHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": h.router.HealthMonitor().GetAllHealth(),
	})
}

// degradeRequest is the request body for POST /simulate/degrade
type degradeRequest struct {
	ProcessorName string `json:"processor_name" validate:"required"`
	Degraded      bool   `json:"degraded"`
}

// SimulateDegrade handles POST /simulate/degrade
func (h *Handler) SimulateDegrade(w http.ResponseWriter, r *http.Request) {
	var req degradeRequest
	if !h.decode(w, r, &req) {
		return
	}

	for _, p := range h.router.Processors() {
		if p.Name() != req.ProcessorName {
			continue
		}
		mp, ok := processor.Unwrap(p).(*processor.MockProcessor)
		if !ok {
			writeError(w, http.StatusConflict, "processor is not simulated: "+req.ProcessorName)
			return
		}
		mp.SetDegraded(req.Degraded)
		slog.Info("processor_degradation_toggled",
			"processor", req.ProcessorName,
			"degraded", req.Degraded,
		)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"processor": req.ProcessorName,
			"degraded":  req.Degraded,
			"message":   "degradation mode updated",
		})
		return
	}

	writeError(w, http.StatusNotFound, "processor not found: "+req.ProcessorName)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}
