package processor

import (
	"context"

	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
)

// Processor defines the interface for payment providers.
type Processor interface {
	// Name returns the provider's unique identifier.
	Name() string
	// Method returns the payment method this provider collects.
	Method() model.PaymentMethod
	// Submit asks the provider to collect the submission. Failures are
	// reported through the response code, never as a panic or error.
	Submit(ctx context.Context, sub model.Submission) model.ProviderResponse
}

// Handles checks if a processor collects the given payment method.
func Handles(p Processor, method model.PaymentMethod) bool {
	return p != nil && p.Method() == method
}

func responseMessage(code model.ResponseCode) string {
	switch code {
	case model.Approved:
		return "submission accepted"
	case model.Declined:
		return "application declined"
	case model.MalformedResponse:
		return "provider returned an unusable response"
	case model.Unconfigured:
		return "provider credentials are not configured"
	case model.ProcessorError:
		return "internal provider error"
	case model.Timeout:
		return "request timed out"
	case model.RateLimited:
		return "rate limit exceeded"
	default:
		return "unknown response"
	}
}
