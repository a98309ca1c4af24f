package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CustomerCategory is the tariff customer class a rule applies to.
type CustomerCategory string

const (
	CategoryResidential  CustomerCategory = "residential"
	CategoryBusiness     CustomerCategory = "business"
	CategoryAgricultural CustomerCategory = "agricultural"
	CategoryAny          CustomerCategory = ""
)

// PricingKind tags the variant carried by a PricingStructure.
type PricingKind string

const (
	PricingEnergyBands      PricingKind = "energy_bands"
	PricingConsumptionBands PricingKind = "consumption_bands"
	PricingFlatRate         PricingKind = "flat_rate"
	PricingDemandCharge     PricingKind = "demand_charge"
	PricingTimeOfUse        PricingKind = "time_of_use"
	PricingRateInRand       PricingKind = "rate_in_rand"
)

// PriceBand is one consumption tier. Bands use [Min, Max) semantics; a nil
// Max marks the final, unbounded band. RandPerUnit is the tariff rate in
// rand per unit (kWh, kL) and may carry fractional cents. A zero rate is a
// legitimate free band; a nil rate is a data-quality fault in the extracted
// rule.
type PriceBand struct {
	Label       string           `json:"label,omitempty"`
	Min         float64          `json:"min"`
	Max         *float64         `json:"max,omitempty"`
	RandPerUnit *decimal.Decimal `json:"rand_per_unit,omitempty"`
}

// PricingStructure is the tagged pricing variant of a tariff rule. Exactly
// the members implied by Kind are populated.
type PricingStructure struct {
	Kind PricingKind `json:"kind"`

	// Bands applies to energy_bands, consumption_bands and time_of_use.
	Bands []PriceBand `json:"bands,omitempty"`

	// FlatRandPerUnit applies to flat_rate.
	FlatRandPerUnit *decimal.Decimal `json:"flat_rand_per_unit,omitempty"`

	// DemandRandPerKVA applies to demand_charge.
	DemandRandPerKVA *decimal.Decimal `json:"demand_rand_per_kva,omitempty"`

	// RateInRand and RebateRand apply to rate_in_rand (property rates):
	// rand charged per rand of municipal valuation per year, less rebates.
	RateInRand *decimal.Decimal `json:"rate_in_rand,omitempty"`
	RebateRand *decimal.Decimal `json:"rebate_rand,omitempty"`
}

// TariffRule is an official, dated pricing definition extracted from a
// provider's tariff document. Rules are created by ingestion, flipped to
// Verified by an admin, and soft-deactivated rather than deleted.
type TariffRule struct {
	ID            string           `json:"id"`
	Provider      string           `json:"provider"`
	Service       ServiceType      `json:"service"`
	TariffCode    string           `json:"tariff_code,omitempty"`
	Category      CustomerCategory `json:"category"`
	Pricing       PricingStructure `json:"pricing"`
	VATRate       decimal.Decimal  `json:"vat_rate"`
	VATInclusive  bool             `json:"vat_inclusive"`
	EffectiveDate time.Time        `json:"effective_date"`
	ExpiryDate    *time.Time       `json:"expiry_date,omitempty"`
	FinancialYear string           `json:"financial_year"`

	SourceExcerpt string `json:"source_excerpt,omitempty"`
	SourcePage    *int   `json:"source_page,omitempty"`
	SourceDocRef  string `json:"source_doc_ref,omitempty"`

	ExtractionConfidence float64 `json:"extraction_confidence"`
	Verified             bool    `json:"verified"`
	Active               bool    `json:"active"`
}

// InEffect reports whether the rule's validity window contains the date.
// A nil expiry date means the rule remains in effect indefinitely.
func (r *TariffRule) InEffect(on time.Time) bool {
	if on.Before(r.EffectiveDate) {
		return false
	}
	if r.ExpiryDate != nil && on.After(*r.ExpiryDate) {
		return false
	}
	return true
}

// ValidatePricing checks the pricing structure for the data-quality faults
// the verification engine must skip over: missing variants, empty band sets
// and bands without a usable rate.
func (p *PricingStructure) ValidatePricing() error {
	switch p.Kind {
	case PricingEnergyBands, PricingConsumptionBands, PricingTimeOfUse:
		if len(p.Bands) == 0 {
			return fmt.Errorf("pricing kind %q has no bands", p.Kind)
		}
		for i, b := range p.Bands {
			if b.RandPerUnit == nil {
				return fmt.Errorf("band %d is missing its rate", i)
			}
			if b.RandPerUnit.IsNegative() {
				return fmt.Errorf("band %d has a negative rate", i)
			}
		}
	case PricingFlatRate:
		if p.FlatRandPerUnit == nil {
			return fmt.Errorf("flat_rate pricing is missing its rate")
		}
	case PricingDemandCharge:
		if p.DemandRandPerKVA == nil {
			return fmt.Errorf("demand_charge pricing is missing its rate")
		}
	case PricingRateInRand:
		if p.RateInRand == nil {
			return fmt.Errorf("rate_in_rand pricing is missing its rate")
		}
	default:
		return fmt.Errorf("unknown pricing kind %q", p.Kind)
	}
	return nil
}
