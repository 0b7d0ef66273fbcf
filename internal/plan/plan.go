// Package plan classifies free-form plan and vehicle labels into the warranty
// type codes used with the claims administrator.
package plan

import (
	"strings"
	"unicode"
)

// WarrantyType is the product category code.
type WarrantyType string

const (
	Basic     WarrantyType = "BASIC"
	Gold      WarrantyType = "GOLD"
	Platinum  WarrantyType = "PLATINUM"
	EV        WarrantyType = "EV"
	PHEV      WarrantyType = "PHEV"
	Motorbike WarrantyType = "MOTORBIKE"
)

// Types lists every warranty type.
var Types = []WarrantyType{Basic, Gold, Platinum, EV, PHEV, Motorbike}

// maxClaims holds the maximum claim amount per type in pence.
var maxClaims = map[WarrantyType]int64{
	Basic:     50000,
	Gold:      100000,
	Platinum:  200000,
	EV:        150000,
	PHEV:      150000,
	Motorbike: 75000,
}

// MaxClaim returns the fixed maximum claim amount for t in minor units.
// Unknown types get the Basic tier.
func (t WarrantyType) MaxClaim() int64 {
	if v, ok := maxClaims[t]; ok {
		return v
	}
	return maxClaims[Basic]
}

// IsSpecialVehicle reports whether t is tied to the vehicle rather than a tier.
func (t WarrantyType) IsSpecialVehicle() bool {
	return t == EV || t == PHEV || t == Motorbike
}

// Valid reports whether t is a known warranty type.
func (t WarrantyType) Valid() bool {
	_, ok := maxClaims[t]
	return ok
}

// Classification is the canonical view of a plan label.
type Classification struct {
	WarrantyType WarrantyType `json:"warranty_type"`
	MaxClaim     int64        `json:"max_claim"`
}

func classification(t WarrantyType) Classification {
	return Classification{WarrantyType: t, MaxClaim: t.MaxClaim()}
}

// Classify maps a plan label to a classification. Special vehicle keywords
// win over tier names, so "PHEV Hybrid Extended Warranty" is PHEV. Labels
// with no known keyword are Basic.
func Classify(identifier string) Classification {
	lower := strings.ToLower(identifier)
	words := tokens(lower)

	switch {
	case strings.Contains(lower, "hybrid") || strings.Contains(lower, "phev"):
		return classification(PHEV)
	case strings.Contains(lower, "electric") || words["ev"]:
		return classification(EV)
	case strings.Contains(lower, "motorbike") || strings.Contains(lower, "motorcycle"):
		return classification(Motorbike)
	case strings.Contains(lower, "platinum"):
		return classification(Platinum)
	case strings.Contains(lower, "gold"):
		return classification(Gold)
	case strings.Contains(lower, "basic"):
		return classification(Basic)
	}
	return classification(Basic)
}

// ClassifyVehicle classifies a plan label together with the vehicle type
// reported by the registry. A special vehicle type on either input wins.
func ClassifyVehicle(planIdentifier, vehicleType string) Classification {
	if c := Classify(vehicleType); vehicleType != "" && c.WarrantyType.IsSpecialVehicle() {
		return c
	}
	return Classify(planIdentifier)
}

// "ev" is matched as a whole word so labels like "level" or "seven" are not EV.
func tokens(s string) map[string]bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		out[f] = true
	}
	return out
}
