package processor

import (
	"time"

	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
)

// NewDemoCard creates a simulated card provider: 95% approval, 5% errors.
func NewDemoCard(baseURL string) *MockProcessor {
	return NewMockProcessor(MockConfig{
		ProcessorName: "DemoCard",
		Method:        model.PayInFull,
		RedirectBase:  baseURL + "/demo/card",
		DefaultOutcomes: OutcomeDistribution{
			ApprovalRate: 0.95,
			ErrorRate:    0.05,
		},
		MinLatency: 50 * time.Millisecond,
		MaxLatency: 200 * time.Millisecond,
	})
}

// NewDemoBNPL creates a simulated credit provider: 60% approval, 30%
// declines, 5% malformed answers, 5% errors.
func NewDemoBNPL(baseURL string) *MockProcessor {
	return NewMockProcessor(MockConfig{
		ProcessorName: "DemoBNPL",
		Method:        model.BNPL,
		RedirectBase:  baseURL + "/demo/bnpl",
		DefaultOutcomes: OutcomeDistribution{
			ApprovalRate:  0.60,
			DeclineRate:   0.30,
			MalformedRate: 0.05,
			ErrorRate:     0.05,
		},
		MinLatency: 80 * time.Millisecond,
		MaxLatency: 300 * time.Millisecond,
	})
}
