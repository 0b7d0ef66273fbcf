// Package vehicle looks vehicles up in the DVLA vehicle enquiry service.
package vehicle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client-side budget for the enquiry service, which throttles per API key.
const (
	lookupsPerSecond = 10
	lookupBurst      = 10
)

var (
	// ErrNotFound is returned when the registry has no such vehicle.
	ErrNotFound = errors.New("vehicle not found")
	// ErrInvalidRegistration is returned for plates that cannot be valid.
	ErrInvalidRegistration = errors.New("invalid registration")
	// ErrUnavailable is returned when the registry cannot be queried.
	ErrUnavailable = errors.New("vehicle registry unavailable")
)

var registrationPattern = regexp.MustCompile(`^[A-Z0-9]{2,8}$`)

// Vehicle holds the registry attributes the funnel uses.
type Vehicle struct {
	Registration      string `json:"registrationNumber"`
	Make              string `json:"make"`
	Colour            string `json:"colour"`
	FuelType          string `json:"fuelType"`
	YearOfManufacture int    `json:"yearOfManufacture"`
	EngineCapacity    int    `json:"engineCapacity"`
	Wheelplan         string `json:"wheelplan"`
	TypeApproval      string `json:"typeApproval"`
	MOTStatus         string `json:"motStatus"`
}

// Type is the vehicle-type label fed to plan classification.
func (v Vehicle) Type() string {
	fuel := strings.ToUpper(v.FuelType)
	wheel := strings.ToUpper(v.Wheelplan)
	switch {
	case strings.HasPrefix(strings.ToUpper(v.TypeApproval), "L") || strings.Contains(wheel, "2 WHEEL"):
		return "Motorbike"
	case strings.Contains(fuel, "HYBRID"):
		return "Hybrid"
	case fuel == "ELECTRICITY" || fuel == "ELECTRIC":
		return "Electric"
	default:
		return "Car"
	}
}

// NormalizeRegistration upper-cases a plate and removes spaces.
func NormalizeRegistration(reg string) string {
	return strings.ToUpper(strings.Join(strings.Fields(reg), ""))
}

// Client queries the DVLA vehicle enquiry API.
type Client struct {
	url     string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a registry client.
func NewClient(url, apiKey string) *Client {
	return &Client{
		url:     url,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 12 * time.Second},
		limiter: rate.NewLimiter(lookupsPerSecond, lookupBurst),
	}
}

// Lookup returns the vehicle registered under reg.
func (c *Client) Lookup(ctx context.Context, reg string) (Vehicle, error) {
	reg = NormalizeRegistration(reg)
	if !registrationPattern.MatchString(reg) {
		return Vehicle{}, ErrInvalidRegistration
	}
	if c.apiKey == "" {
		return Vehicle{}, fmt.Errorf("%w: api key not configured", ErrUnavailable)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Vehicle{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	body, err := json.Marshal(map[string]string{"registrationNumber": reg})
	if err != nil {
		return Vehicle{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Vehicle{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Vehicle{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Vehicle{}, ErrNotFound
	case resp.StatusCode == http.StatusBadRequest:
		return Vehicle{}, ErrInvalidRegistration
	case resp.StatusCode != http.StatusOK:
		return Vehicle{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var v Vehicle
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return Vehicle{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if v.Registration == "" {
		v.Registration = reg
	}
	return v, nil
}
