package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/marlonbarreto-git/warranty-checkout/internal/config"
	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
)

// RetryPolicy bounds provider calls.
type RetryPolicy struct {
	Timeout         time.Duration
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is a 15s per-call timeout with two retries starting at 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:         config.ProviderTimeout,
		MaxRetries:      config.MaxProviderRetries,
		InitialInterval: config.RetryInitialInterval,
		MaxInterval:     config.RetryMaxInterval,
	}
}

// WorstCase is the longest a wrapped Submit can take: every try timing out
// plus the backoff between tries.
func (p RetryPolicy) WorstCase() time.Duration {
	total := time.Duration(p.MaxRetries+1) * p.Timeout
	interval := p.InitialInterval
	for i := 0; i < p.MaxRetries; i++ {
		total += min(interval, p.MaxInterval)
		interval *= 2
	}
	return total
}

type retrying struct {
	inner  Processor
	policy RetryPolicy
}

// WithRetry wraps p so each call is bounded by the policy timeout and
// transient failures are retried with capped exponential backoff. Declines
// and other definitive answers are returned after the first try.
func WithRetry(p Processor, policy RetryPolicy) Processor {
	return &retrying{inner: p, policy: policy}
}

func (r *retrying) Name() string {
	return r.inner.Name()
}

func (r *retrying) Method() model.PaymentMethod {
	return r.inner.Method()
}

func (r *retrying) Unwrap() Processor {
	return r.inner
}

// Unwrap strips retry wrappers and returns the underlying provider.
func Unwrap(p Processor) Processor {
	for {
		w, ok := p.(interface{ Unwrap() Processor })
		if !ok {
			return p
		}
		p = w.Unwrap()
	}
}

func (r *retrying) Submit(ctx context.Context, sub model.Submission) model.ProviderResponse {
	var (
		last  model.ProviderResponse
		tries int
	)

	op := func() (model.ProviderResponse, error) {
		tries++
		callCtx := ctx
		if r.policy.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
			defer cancel()
		}

		resp := r.inner.Submit(callCtx, sub)
		last = resp
		if resp.Code.IsRetriable() {
			slog.Warn("provider_transient_failure",
				"token", sub.Token,
				"processor", r.inner.Name(),
				"code", resp.Code,
				"try", tries,
			)
			return resp, fmt.Errorf("%s returned %s", r.inner.Name(), resp.Code)
		}
		return resp, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.policy.MaxRetries+1)),
	)
	if err != nil {
		if tries == 0 {
			last = model.ProviderResponse{
				ProcessorName: r.inner.Name(),
				Code:          model.Timeout,
				Message:       err.Error(),
				Timestamp:     time.Now(),
			}
		}
		return last
	}
	return resp
}
