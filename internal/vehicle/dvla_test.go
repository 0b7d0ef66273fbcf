package vehicle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVehicle_Type(t *testing.T) {
	tests := []struct {
		name     string
		v        Vehicle
		expected string
	}{
		{"petrol car", Vehicle{FuelType: "PETROL", Wheelplan: "2 AXLE RIGID BODY"}, "Car"},
		{"electric", Vehicle{FuelType: "ELECTRICITY"}, "Electric"},
		{"hybrid", Vehicle{FuelType: "HYBRID ELECTRIC"}, "Hybrid"},
		{"motorbike by type approval", Vehicle{FuelType: "PETROL", TypeApproval: "L3"}, "Motorbike"},
		{"motorbike by wheelplan", Vehicle{FuelType: "PETROL", Wheelplan: "2 WHEELS"}, "Motorbike"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.v.Type())
		})
	}
}

func TestNormalizeRegistration(t *testing.T) {
	assert.Equal(t, "AB12CDE", NormalizeRegistration(" ab12 cde "))
}

func TestClient_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		switch body["registrationNumber"] {
		case "AB12CDE":
			w.Write([]byte(`{"registrationNumber":"AB12CDE","make":"TOYOTA","fuelType":"HYBRID ELECTRIC","yearOfManufacture":2019}`))
		case "BAD1":
			w.WriteHeader(http.StatusBadRequest)
		case "BROKEN":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	ctx := context.Background()

	v, err := c.Lookup(ctx, "ab12 cde")
	require.NoError(t, err)
	assert.Equal(t, "TOYOTA", v.Make)
	assert.Equal(t, 2019, v.YearOfManufacture)
	assert.Equal(t, "Hybrid", v.Type())

	_, err = c.Lookup(ctx, "ZZ99ZZZ")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Lookup(ctx, "BAD1")
	assert.ErrorIs(t, err, ErrInvalidRegistration)

	_, err = c.Lookup(ctx, "BROKEN")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = c.Lookup(ctx, "!!")
	assert.ErrorIs(t, err, ErrInvalidRegistration)
}

func TestClient_LookupWithoutKey(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1", "").Lookup(context.Background(), "AB12CDE")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_LookupCancelledContext(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(srv.URL, "key").Lookup(ctx, "AB12CDE")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, called)
}
