package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/marlonbarreto-git/warranty-checkout/internal/checkout"
	"github.com/marlonbarreto-git/warranty-checkout/internal/vehicle"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeValidationError reports each failing field with the rule it broke.
func writeValidationError(w http.ResponseWriter, err error) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, "invalid input")
		return
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":  "validation failed",
		"fields": fields,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, checkout.ErrUnknownToken), errors.Is(err, vehicle.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrWrongMethod), errors.Is(err, checkout.ErrAmountMismatch):
		return http.StatusConflict
	case errors.Is(err, checkout.ErrPaymentFailed), errors.Is(err, vehicle.ErrUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, vehicle.ErrInvalidRegistration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
