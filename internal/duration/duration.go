// Package duration maps payment-period identifiers to canonical coverage
// lengths in months.
//
// Period identifiers arrive from the quote UI, URL query strings and partner
// redirect callbacks, and those producers do not share a vocabulary. Lookups
// are therefore lenient: anything unrecognized resolves to DefaultMonths.
package duration

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"
)

// Period is a canonical warranty coverage length in months.
type Period int

const (
	Months12 Period = 12
	Months24 Period = 24
	Months36 Period = 36
	Months48 Period = 48
	Months60 Period = 60
)

// DefaultMonths is used whenever an identifier cannot be matched.
const DefaultMonths = Months12

// Canonical lists every valid period in ascending order.
var Canonical = []Period{Months12, Months24, Months36, Months48, Months60}

// Months returns the period as a plain month count.
func (p Period) Months() int {
	return int(p)
}

// Years returns the coverage length in whole years.
func (p Period) Years() int {
	return int(p) / 12
}

// String renders customer-facing coverage text, e.g. "24 months".
func (p Period) String() string {
	return fmt.Sprintf("%d months", int(p))
}

// IsCanonical reports whether p is one of the canonical periods.
func (p Period) IsCanonical() bool {
	for _, c := range Canonical {
		if p == c {
			return true
		}
	}
	return false
}

// FromMonths returns the canonical period for an exact month count.
func FromMonths(months int) (Period, bool) {
	p := Period(months)
	if !p.IsCanonical() {
		return 0, false
	}
	return p, true
}

// Table is a synonym table keyed by the squashed identifier form.
type Table struct {
	name     string
	synonyms map[string]Period
}

// Name identifies the table in diagnostics.
func (t Table) Name() string {
	return t.name
}

// Lookup resolves a squashed key without applying the default.
func (t Table) Lookup(key string) (Period, bool) {
	p, ok := t.synonyms[key]
	return p, ok
}

func baseSynonyms() map[string]Period {
	m := map[string]Period{
		"monthly":   Months12,
		"annual":    Months12,
		"annually":  Months12,
		"yearly":    Months12,
		"oneyear":   Months12,
		"oneyearly": Months12,

		"twoyearly":   Months24,
		"twoyear":     Months24,
		"twoyears":    Months24,
		"biennial":    Months24,
		"threeyearly": Months36,
		"threeyear":   Months36,
		"threeyears":  Months36,
		"fouryearly":  Months48,
		"fouryear":    Months48,
		"fouryears":   Months48,
		"fiveyearly":  Months60,
		"fiveyear":    Months60,
		"fiveyears":   Months60,
	}
	for _, p := range Canonical {
		n := int(p)
		m[fmt.Sprintf("%d", n)] = p
		m[fmt.Sprintf("%dmonth", n)] = p
		m[fmt.Sprintf("%dmonths", n)] = p
		m[fmt.Sprintf("%dmo", n)] = p
		y := p.Years()
		m[fmt.Sprintf("%dyear", y)] = p
		m[fmt.Sprintf("%dyears", y)] = p
		m[fmt.Sprintf("%dyr", y)] = p
	}
	return m
}

// General is used for identifiers produced by the quote UI and for
// pay-in-full requests. "monthly" and "yearly" both mean 12 months.
var General = Table{name: "general", synonyms: baseSynonyms()}

// LegacyPartner is used only for identifiers carried back by the
// buy-now-pay-later partner's redirect callback, which has always sent
// "yearly" for a 24 month plan.
var LegacyPartner = func() Table {
	m := baseSynonyms()
	m["yearly"] = Months24
	return Table{name: "legacy_partner", synonyms: m}
}()

// Result is the outcome of normalizing an identifier.
type Result struct {
	Period  Period
	Matched bool
}

// Months is shorthand for r.Period.Months().
func (r Result) Months() int {
	return r.Period.Months()
}

// Squash lower-cases the input and strips underscores, hyphens and whitespace.
func Squash(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range strings.ToLower(input) {
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Normalize resolves input against table. It never fails: unknown input
// resolves to DefaultMonths and a warning is logged.
func Normalize(input string, table Table) Result {
	key := Squash(input)
	if p, ok := table.Lookup(key); ok {
		return Result{Period: p, Matched: true}
	}

	slog.Warn("duration_unrecognized",
		"input", input,
		"table", table.Name(),
		"default_months", DefaultMonths.Months(),
	)
	return Result{Period: DefaultMonths, Matched: false}
}

// NormalizeGeneral is Normalize with the General table.
func NormalizeGeneral(input string) Result {
	return Normalize(input, General)
}

// NormalizePartner is Normalize with the LegacyPartner table.
func NormalizePartner(input string) Result {
	return Normalize(input, LegacyPartner)
}
