package processor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
)

func TestHandles(t *testing.T) {
	tests := []struct {
		name     string
		p        Processor
		method   model.PaymentMethod
		expected bool
	}{
		{"demo card collects pay in full", NewDemoCard("http://x"), model.PayInFull, true},
		{"demo card does not collect bnpl", NewDemoCard("http://x"), model.BNPL, false},
		{"demo bnpl collects bnpl", NewDemoBNPL("http://x"), model.BNPL, true},
		{"bumper collects bnpl", NewBumper(BumperConfig{}), model.BNPL, true},
		{"nil processor", nil, model.BNPL, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Handles(tt.p, tt.method))
		})
	}
}

func TestMockProcessor_ApprovedCarriesRedirect(t *testing.T) {
	p := NewMockProcessor(MockConfig{
		ProcessorName:   "Always",
		Method:          model.PayInFull,
		RedirectBase:    "http://demo/card/",
		DefaultOutcomes: OutcomeDistribution{ApprovalRate: 1},
	})
	resp := p.Submit(context.Background(), model.Submission{Token: "tok-9"})

	assert.Equal(t, model.Approved, resp.Code)
	assert.Equal(t, "http://demo/card/tok-9", resp.RedirectURL)
	assert.True(t, strings.HasPrefix(resp.Reference, "mock_"))
}

func TestMockProcessor_OutcomeDistribution(t *testing.T) {
	p := NewDemoBNPL("http://x")
	p.config.MinLatency, p.config.MaxLatency = 0, 0

	counts := map[model.ResponseCode]int{}
	total := 1000
	for i := 0; i < total; i++ {
		counts[p.Submit(context.Background(), model.Submission{Token: "t"}).Code]++
	}

	approvalRate := float64(counts[model.Approved]) / float64(total)
	assert.InDelta(t, 0.60, approvalRate, 0.10)
	declineRate := float64(counts[model.Declined]) / float64(total)
	assert.InDelta(t, 0.30, declineRate, 0.10)
}

func TestMockProcessor_DegradedMode(t *testing.T) {
	p := NewDemoCard("http://x")
	p.config.MinLatency, p.config.MaxLatency = 0, 0

	p.SetDegraded(true)
	assert.True(t, p.IsDegraded())

	errorCount := 0
	total := 200
	for i := 0; i < total; i++ {
		if p.Submit(context.Background(), model.Submission{}).Code == model.ProcessorError {
			errorCount++
		}
	}
	assert.InDelta(t, 0.80, float64(errorCount)/float64(total), 0.10)

	p.SetDegraded(false)
	assert.False(t, p.IsDegraded())
}
