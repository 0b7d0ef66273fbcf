package processor

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
)

// OutcomeDistribution defines the probability of each response type.
type OutcomeDistribution struct {
	ApprovalRate  float64
	DeclineRate   float64
	MalformedRate float64
	ErrorRate     float64
}

// MockConfig holds configuration for creating a mock provider.
type MockConfig struct {
	ProcessorName   string
	Method          model.PaymentMethod
	RedirectBase    string
	DefaultOutcomes OutcomeDistribution
	MinLatency      time.Duration
	MaxLatency      time.Duration
}

// MockProcessor simulates a payment provider with configurable behavior.
// It backs demo mode when no real credentials are configured.
type MockProcessor struct {
	config   MockConfig
	rng      *rand.Rand
	mu       sync.Mutex
	degraded bool
}

// NewMockProcessor creates a new mock provider from the given config.
func NewMockProcessor(cfg MockConfig) *MockProcessor {
	return &MockProcessor{
		config: cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *MockProcessor) Name() string {
	return p.config.ProcessorName
}

func (p *MockProcessor) Method() model.PaymentMethod {
	return p.config.Method
}

// SetDegraded toggles degraded mode (80% error rate) for simulation.
func (p *MockProcessor) SetDegraded(degraded bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.degraded = degraded
}

// IsDegraded returns the current degraded state.
func (p *MockProcessor) IsDegraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.degraded
}

func (p *MockProcessor) Submit(ctx context.Context, sub model.Submission) model.ProviderResponse {
	start := time.Now()

	p.mu.Lock()
	degraded := p.degraded
	p.mu.Unlock()

	latency := p.simulateLatency()
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return model.ProviderResponse{
			ProcessorName: p.config.ProcessorName,
			Code:          model.Timeout,
			Message:       "context cancelled",
			Timestamp:     time.Now(),
			Latency:       time.Since(start),
		}
	}

	code := p.determineOutcome(degraded)
	resp := model.ProviderResponse{
		ProcessorName: p.config.ProcessorName,
		Code:          code,
		Message:       responseMessage(code),
		Timestamp:     time.Now(),
		Latency:       time.Since(start),
	}
	if code == model.Approved {
		resp.RedirectURL = strings.TrimRight(p.config.RedirectBase, "/") + "/" + sub.Token
		resp.Reference = "mock_" + sub.Token
	}
	return resp
}

func (p *MockProcessor) determineOutcome(degraded bool) model.ResponseCode {
	p.mu.Lock()
	roll := p.rng.Float64()
	p.mu.Unlock()

	if degraded {
		if roll < 0.80 {
			return model.ProcessorError
		}
		return model.Approved
	}

	dist := p.config.DefaultOutcomes
	if roll < dist.ApprovalRate {
		return model.Approved
	}
	roll -= dist.ApprovalRate
	if roll < dist.DeclineRate {
		return model.Declined
	}
	roll -= dist.DeclineRate
	if roll < dist.MalformedRate {
		return model.MalformedResponse
	}
	return model.ProcessorError
}

func (p *MockProcessor) simulateLatency() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	min := p.config.MinLatency
	max := p.config.MaxLatency
	if max <= min {
		return min
	}
	return min + time.Duration(p.rng.Int63n(int64(max-min)))
}
