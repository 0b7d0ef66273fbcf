package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/marlonbarreto-git/warranty-checkout/internal/checkout"
	"github.com/marlonbarreto-git/warranty-checkout/internal/duration"
	"github.com/marlonbarreto-git/warranty-checkout/internal/health"
	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
	"github.com/marlonbarreto-git/warranty-checkout/internal/plan"
	"github.com/marlonbarreto-git/warranty-checkout/internal/pricing"
	"github.com/marlonbarreto-git/warranty-checkout/internal/processor"
	"github.com/marlonbarreto-git/warranty-checkout/internal/store"
	"github.com/marlonbarreto-git/warranty-checkout/internal/vehicle"
)

const (
	testBNPLSecret   = "shh"
	testStripeSecret = "whsec_test"
)

func always(name string, method model.PaymentMethod, approve bool) *processor.MockProcessor {
	dist := processor.OutcomeDistribution{ApprovalRate: 1}
	if !approve {
		dist = processor.OutcomeDistribution{DeclineRate: 1}
	}
	return processor.NewMockProcessor(processor.MockConfig{
		ProcessorName:   name,
		Method:          method,
		RedirectBase:    "https://pay.example/" + name,
		DefaultOutcomes: dist,
	})
}

type fakeVehicles struct {
	v   vehicle.Vehicle
	err error
}

func (f fakeVehicles) Lookup(ctx context.Context, registration string) (vehicle.Vehicle, error) {
	return f.v, f.err
}

type testServer struct {
	mux    *http.ServeMux
	router *checkout.Router
	orders *store.MemoryOrders
}

func setupTestServer(cardApproves, bnplApproves bool, opts Options) *testServer {
	orders := store.NewMemoryOrders()
	router := checkout.New(checkout.Deps{
		Card:     processor.WithRetry(always("DemoCard", model.PayInFull, cardApproves), processor.DefaultRetryPolicy()),
		BNPL:     always("DemoBNPL", model.BNPL, bnplApproves),
		Monitor:  health.NewMonitorWithConfig(50, 10*time.Minute),
		Attempts: store.NewMemoryAttempts(),
		Orders:   orders,
	}, checkout.Options{BaseURL: "https://shop.example"})

	mux := http.NewServeMux()
	New(router, opts).RegisterRoutes(mux)
	return &testServer{mux: mux, router: router, orders: orders}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	return w
}

func checkoutBody(method string) string {
	return `{"payment_period":"two_yearly","plan":"Basic Plan","payment_method":"` + method + `",
		"first_name":"Ada","last_name":"Lovelace","email":"ada@example.com","phone":"07700900000",
		"registration":"ab12 cde","address":{"line1":"1 High St","city":"Leeds","postcode":"LS1 1AA"}}`
}

func decodeCheckout(t *testing.T, w *httptest.ResponseRecorder) checkoutResponse {
	t.Helper()
	var resp checkoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateQuote(t *testing.T) {
	s := setupTestServer(true, true, Options{})

	w := s.do("POST", "/quotes", `{"payment_period":"two years","plan":"Gold Plan"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp quoteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 24, resp.Months)
	assert.Equal(t, "24 months", resp.Coverage)
	assert.Equal(t, plan.Gold, resp.WarrantyType)
	assert.Equal(t, pricing.Price(plan.Gold, duration.Months24), resp.Amount)
	assert.Equal(t, "gbp", resp.Currency)
}

func TestCreateQuote_ClientAmountIgnored(t *testing.T) {
	s := setupTestServer(true, true, Options{})

	w := s.do("POST", "/quotes", `{"payment_period":"12","plan":"basic","amount":1}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp quoteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, pricing.Price(plan.Basic, duration.Months12), resp.Amount)
}

func TestCreateQuote_ValidationErrors(t *testing.T) {
	s := setupTestServer(true, true, Options{})

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing plan", `{"payment_period":"24"}`, "plan"},
		{"missing period", `{"plan":"gold"}`, "payment_period"},
		{"negative amount", `{"payment_period":"24","plan":"gold","amount":-5}`, "amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do("POST", "/quotes", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp struct {
				Fields map[string]string `json:"fields"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Contains(t, resp.Fields, tt.field)
		})
	}
}

func TestCreateQuote_InvalidJSON(t *testing.T) {
	s := setupTestServer(true, true, Options{})
	w := s.do("POST", "/quotes", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestStartCheckout_PayInFull(t *testing.T) {
	s := setupTestServer(true, true, Options{})

	w := s.do("POST", "/checkout", checkoutBody("pay_in_full"))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeCheckout(t, w)
	assert.Equal(t, model.StateSucceeded, resp.State)
	assert.Equal(t, model.PayInFull, resp.ChargedMethod)
	assert.Contains(t, resp.RedirectURL, "https://pay.example/DemoCard/")
	assert.Equal(t, 24, resp.Months)
}

func TestStartCheckout_BNPLDeclineFallsBack(t *testing.T) {
	s := setupTestServer(true, false, Options{})

	w := s.do("POST", "/checkout", checkoutBody("bnpl"))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeCheckout(t, w)
	assert.Equal(t, model.BNPL, resp.RequestedMethod)
	assert.Equal(t, model.PayInFull, resp.ChargedMethod)
	assert.Equal(t, model.ReasonCreditCheckFailed, resp.FallbackReason)
	assert.Equal(t, pricing.Price(plan.Basic, duration.Months24), resp.Amount)
	assert.Contains(t, resp.RedirectURL, "DemoCard")
}

func TestStartCheckout_TerminalFailureIs502(t *testing.T) {
	s := setupTestServer(false, true, Options{})

	w := s.do("POST", "/checkout", checkoutBody("pay_in_full"))
	require.Equal(t, http.StatusBadGateway, w.Code)

	resp := decodeCheckout(t, w)
	assert.Equal(t, model.StateFailed, resp.State)
	assert.NotEmpty(t, resp.Error)
}

func TestStartCheckout_ValidationErrors(t *testing.T) {
	s := setupTestServer(true, true, Options{})

	w := s.do("POST", "/checkout", checkoutBody("cheque"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "payment_method")

	w = s.do("POST", "/checkout", `{"payment_period":"24","plan":"gold","payment_method":"bnpl","first_name":"A","email":"nope","registration":"X1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "email")
}

func TestGetCheckout(t *testing.T) {
	s := setupTestServer(true, true, Options{})
	token := decodeCheckout(t, s.do("POST", "/checkout", checkoutBody("pay_in_full"))).Token

	w := s.do("GET", "/checkout/"+token, "")
	require.Equal(t, http.StatusOK, w.Code)

	var a model.CheckoutAttempt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	assert.Equal(t, token, a.Token)
	assert.Equal(t, "AB12CDE", a.Customer.Registration)
	assert.NotEmpty(t, a.History)

	assert.Equal(t, http.StatusNotFound, s.do("GET", "/checkout/nope", "").Code)
}

func signedReturn(params map[string]string) string {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("signature", processor.Sign(params, testBNPLSecret))
	return "/checkout/bnpl/return?" + q.Encode()
}

func TestBNPLReturn_ApprovedSettles(t *testing.T) {
	s := setupTestServer(true, true, Options{BNPLSecret: testBNPLSecret})
	token := decodeCheckout(t, s.do("POST", "/checkout", checkoutBody("bnpl"))).Token

	w := s.do("GET", signedReturn(map[string]string{
		"token":        token,
		"status":       "success",
		"payment_type": "yearly",
		"reference":    "app_1",
	}), "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeCheckout(t, w)
	assert.True(t, resp.Settled)
	assert.Equal(t, 24, resp.Months)

	order, ok := s.orders.Get(token)
	require.True(t, ok)
	assert.Equal(t, 24, order.Months)
	assert.Equal(t, model.BNPL, order.ChargedMethod)
	assert.Equal(t, "app_1", order.ProviderRef)
}

func TestBNPLReturn_DeclineRedirectsToCard(t *testing.T) {
	s := setupTestServer(true, true, Options{BNPLSecret: testBNPLSecret})
	token := decodeCheckout(t, s.do("POST", "/checkout", checkoutBody("bnpl"))).Token

	w := s.do("GET", signedReturn(map[string]string{"token": token, "status": "failure"}), "")
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "https://pay.example/DemoCard/")

	a, err := s.router.Get(token)
	require.NoError(t, err)
	assert.Equal(t, model.ReasonCreditCheckFailed, a.FallbackReason)
	assert.Equal(t, model.PayInFull, a.ChargedMethod)
}

func TestBNPLReturn_RejectsBadSignature(t *testing.T) {
	s := setupTestServer(true, true, Options{BNPLSecret: testBNPLSecret})
	token := decodeCheckout(t, s.do("POST", "/checkout", checkoutBody("bnpl"))).Token

	w := s.do("GET", "/checkout/bnpl/return?status=success&signature=deadbeef&token="+token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	_, ok := s.orders.Get(token)
	assert.False(t, ok)
}

func TestBNPLReturn_UnknownToken(t *testing.T) {
	s := setupTestServer(true, true, Options{BNPLSecret: testBNPLSecret})
	w := s.do("GET", signedReturn(map[string]string{"token": "missing", "status": "success"}), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func paidSession(token string, amount int64) map[string]interface{} {
	return map[string]interface{}{
		"id":                  "cs_test_1",
		"object":              "checkout.session",
		"client_reference_id": token,
		"metadata":            map[string]string{"token": token},
		"payment_status":      "paid",
		"amount_total":        amount,
		"currency":            "gbp",
	}
}

func signedEvent(t *testing.T, eventType string, session map[string]interface{}) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":     "evt_1",
		"object": "event",
		"type":   eventType,
		"data":   map[string]interface{}{"object": session},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testStripeSecret,
		Timestamp: time.Now(),
	})
	return payload, signed.Header
}

func (s *testServer) postWebhook(payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/checkout/card/complete", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	return w
}

func (s *testServer) payInFull(t *testing.T) checkoutResponse {
	t.Helper()
	resp := decodeCheckout(t, s.do("POST", "/checkout", checkoutBody("pay_in_full")))
	require.Equal(t, model.StateSucceeded, resp.State)
	return resp
}

func TestCardComplete_SettlesOrder(t *testing.T) {
	for _, eventType := range []string{eventCheckoutSessionCompleted, eventCheckoutSessionAsyncSucceed} {
		t.Run(eventType, func(t *testing.T) {
			s := setupTestServer(true, true, Options{StripeWebhookSecret: testStripeSecret})
			c := s.payInFull(t)

			w := s.postWebhook(signedEvent(t, eventType, paidSession(c.Token, c.Amount)))
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.True(t, decodeCheckout(t, w).Settled)

			order, ok := s.orders.Get(c.Token)
			require.True(t, ok)
			assert.Equal(t, "cs_test_1", order.ProviderRef)
			assert.Equal(t, model.PayInFull, order.ChargedMethod)
		})
	}
}

func TestCardComplete_RequiresSigningSecret(t *testing.T) {
	for _, demo := range []bool{false, true} {
		s := setupTestServer(true, true, Options{Demo: demo})
		c := s.payInFull(t)

		forged, err := json.Marshal(map[string]interface{}{
			"type": eventCheckoutSessionCompleted,
			"data": map[string]interface{}{"object": paidSession(c.Token, c.Amount)},
		})
		require.NoError(t, err)

		w := s.postWebhook(forged, "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		_, ok := s.orders.Get(c.Token)
		assert.False(t, ok, "unsigned events must not record orders")
	}
}

func TestCardComplete_RejectsBadSignature(t *testing.T) {
	s := setupTestServer(true, true, Options{StripeWebhookSecret: testStripeSecret})
	c := s.payInFull(t)

	payload, _ := signedEvent(t, eventCheckoutSessionCompleted, paidSession(c.Token, c.Amount))
	w := s.postWebhook(payload, "t=1,v1=deadbeef")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	_, ok := s.orders.Get(c.Token)
	assert.False(t, ok)
}

func TestCardComplete_UnpaidSessionWaits(t *testing.T) {
	s := setupTestServer(true, true, Options{StripeWebhookSecret: testStripeSecret})
	c := s.payInFull(t)

	sess := paidSession(c.Token, c.Amount)
	sess["payment_status"] = "unpaid"
	w := s.postWebhook(signedEvent(t, eventCheckoutSessionCompleted, sess))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "awaiting_payment")
	_, ok := s.orders.Get(c.Token)
	assert.False(t, ok)
}

func TestCardComplete_AmountMismatchIsConflict(t *testing.T) {
	s := setupTestServer(true, true, Options{StripeWebhookSecret: testStripeSecret})
	c := s.payInFull(t)

	w := s.postWebhook(signedEvent(t, eventCheckoutSessionCompleted, paidSession(c.Token, c.Amount-100)))

	assert.Equal(t, http.StatusConflict, w.Code)
	_, ok := s.orders.Get(c.Token)
	assert.False(t, ok)
}

func TestCardComplete_IgnoresOtherEvents(t *testing.T) {
	s := setupTestServer(true, true, Options{StripeWebhookSecret: testStripeSecret})

	w := s.postWebhook(signedEvent(t, "payment_intent.created", paidSession("tok", 1)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
}

func TestCardComplete_BNPLCheckoutIsConflict(t *testing.T) {
	s := setupTestServer(true, true, Options{StripeWebhookSecret: testStripeSecret})
	c := decodeCheckout(t, s.do("POST", "/checkout", checkoutBody("bnpl")))

	w := s.postWebhook(signedEvent(t, eventCheckoutSessionCompleted, paidSession(c.Token, c.Amount)))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLookupVehicle(t *testing.T) {
	tests := []struct {
		name     string
		lookup   VehicleLookup
		wantCode int
		wantHint plan.WarrantyType
	}{
		{"hybrid gets a hint", fakeVehicles{v: vehicle.Vehicle{Registration: "AB12CDE", FuelType: "HYBRID ELECTRIC"}}, http.StatusOK, plan.PHEV},
		{"petrol car has no hint", fakeVehicles{v: vehicle.Vehicle{Registration: "AB12CDE", FuelType: "PETROL"}}, http.StatusOK, ""},
		{"not found", fakeVehicles{err: vehicle.ErrNotFound}, http.StatusNotFound, ""},
		{"invalid", fakeVehicles{err: vehicle.ErrInvalidRegistration}, http.StatusBadRequest, ""},
		{"registry down", fakeVehicles{err: vehicle.ErrUnavailable}, http.StatusBadGateway, ""},
		{"not configured", nil, http.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(true, true, Options{Vehicles: tt.lookup})
			w := s.do("GET", "/vehicles/AB12CDE", "")
			require.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			var resp vehicleResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantHint, resp.WarrantyTypeHint)
		})
	}
}

func TestGetProviderHealth(t *testing.T) {
	s := setupTestServer(true, true, Options{})
	s.do("POST", "/checkout", checkoutBody("pay_in_full"))

	w := s.do("GET", "/health/providers", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string][]health.ProviderHealth
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["providers"])
}

func TestSimulateDegrade(t *testing.T) {
	s := setupTestServer(true, true, Options{})

	w := s.do("POST", "/simulate/degrade", `{"processor_name":"DemoCard","degraded":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	for _, p := range s.router.Processors() {
		if p.Name() == "DemoCard" {
			assert.True(t, processor.Unwrap(p).(*processor.MockProcessor).IsDegraded())
		}
	}

	assert.Equal(t, http.StatusNotFound, s.do("POST", "/simulate/degrade", `{"processor_name":"Nope","degraded":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do("POST", "/simulate/degrade", `{"degraded":true}`).Code)
}

func TestDemoRoutes(t *testing.T) {
	s := setupTestServer(true, true, Options{Demo: true})
	token := decodeCheckout(t, s.do("POST", "/checkout", checkoutBody("bnpl"))).Token

	w := s.do("GET", "/demo/bnpl/"+token+"?status=success", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeCheckout(t, w).Settled)

	card := decodeCheckout(t, s.do("POST", "/checkout", checkoutBody("pay_in_full"))).Token
	w = s.do("GET", "/demo/card/"+card, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeCheckout(t, w).Settled)
}

func TestDemoRoutes_OffByDefault(t *testing.T) {
	s := setupTestServer(true, true, Options{})
	assert.Equal(t, http.StatusNotFound, s.do("GET", "/demo/card/x", "").Code)
}
