// Package pricing holds the warranty price table and money helpers.
package pricing

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/marlonbarreto-git/warranty-checkout/internal/duration"
	"github.com/marlonbarreto-git/warranty-checkout/internal/plan"
)

// Currency is the only currency the funnel sells in.
const Currency = "gbp"

// prices are full-term prices in pence, per warranty type and period.
var prices = map[plan.WarrantyType]map[duration.Period]int64{
	plan.Basic: {
		duration.Months12: 29900,
		duration.Months24: 53900,
		duration.Months36: 76900,
		duration.Months48: 97900,
		duration.Months60: 117900,
	},
	plan.Gold: {
		duration.Months12: 39900,
		duration.Months24: 71900,
		duration.Months36: 101900,
		duration.Months48: 129900,
		duration.Months60: 155900,
	},
	plan.Platinum: {
		duration.Months12: 54900,
		duration.Months24: 98900,
		duration.Months36: 140900,
		duration.Months48: 179900,
		duration.Months60: 215900,
	},
	plan.EV: {
		duration.Months12: 44900,
		duration.Months24: 80900,
		duration.Months36: 114900,
		duration.Months48: 146900,
		duration.Months60: 175900,
	},
	plan.PHEV: {
		duration.Months12: 44900,
		duration.Months24: 80900,
		duration.Months36: 114900,
		duration.Months48: 146900,
		duration.Months60: 175900,
	},
	plan.Motorbike: {
		duration.Months12: 24900,
		duration.Months24: 44900,
		duration.Months36: 63900,
		duration.Months48: 80900,
		duration.Months60: 96900,
	},
}

// Price returns the full-term price in pence. Non-canonical periods are
// priced as DefaultMonths and unknown types as Basic.
func Price(t plan.WarrantyType, p duration.Period) int64 {
	row, ok := prices[t]
	if !ok {
		row = prices[plan.Basic]
	}
	if v, ok := row[p]; ok {
		return v
	}
	return row[duration.DefaultMonths]
}

// Quote is a priced plan selection.
type Quote struct {
	Months         int                 `json:"months"`
	Coverage       string              `json:"coverage"`
	Classification plan.Classification `json:"classification"`
	Amount         int64               `json:"amount"`
	Currency       string              `json:"currency"`
	Display        string              `json:"display"`
	MonthlyDisplay string              `json:"monthly_display"`
}

// NewQuote prices a canonical period and classification.
func NewQuote(p duration.Period, c plan.Classification) Quote {
	amount := Price(c.WarrantyType, p)
	return Quote{
		Months:         p.Months(),
		Coverage:       p.String(),
		Classification: c,
		Amount:         amount,
		Currency:       Currency,
		Display:        FormatGBP(amount),
		MonthlyDisplay: FormatGBP(MonthlyInstalment(amount, p)),
	}
}

// MonthlyInstalment splits amount across the period, rounding up to the penny.
func MonthlyInstalment(amount int64, p duration.Period) int64 {
	months := int64(p.Months())
	if months <= 0 {
		return amount
	}
	return (amount + months - 1) / months
}

// ResolveAmount picks the amount to charge. The server price is used unless
// overrides are allowed and the client supplied a positive amount.
func ResolveAmount(serverAmount, clientAmount int64, allowOverride bool) int64 {
	if clientAmount <= 0 || clientAmount == serverAmount {
		return serverAmount
	}
	if !allowOverride {
		slog.Warn("amount_override_ignored",
			"server_amount", serverAmount,
			"client_amount", clientAmount,
		)
		return serverAmount
	}
	slog.Info("amount_override_applied",
		"server_amount", serverAmount,
		"client_amount", clientAmount,
	)
	return clientAmount
}

// FormatGBP renders pence as a pound string, e.g. 53900 -> "£539.00".
func FormatGBP(minor int64) string {
	return "£" + decimal.New(minor, -2).StringFixed(2)
}

// ToMajor converts pence to a decimal pound amount.
func ToMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
