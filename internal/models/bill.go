package models

import (
	"fmt"
	"time"
)

// ServiceType identifies the utility service a charge belongs to.
type ServiceType string

// Service types found on City of Johannesburg statements.
const (
	ServiceElectricity ServiceType = "electricity"
	ServiceWater       ServiceType = "water"
	ServiceSewerage    ServiceType = "sewerage"
	ServiceRefuse      ServiceType = "refuse"
	ServiceRates       ServiceType = "rates"
	ServiceSundry      ServiceType = "sundry"
	ServiceOther       ServiceType = "other"
)

// PropertyClassification is the inferred use of the billed property.
type PropertyClassification string

const (
	ClassResidential PropertyClassification = "residential"
	ClassBusiness    PropertyClassification = "business"
	ClassMixed       PropertyClassification = "mixed"
	ClassUnknown     PropertyClassification = "unknown"
)

// ParsedBill is the normalized representation of a municipal statement.
// It is produced by the statement parser (or supplied directly over the API)
// and treated as immutable by the analysis pipeline. All monetary fields are
// integer cents. Any field other than LineItems and RawText may be absent.
type ParsedBill struct {
	AccountNumber string     `json:"account_number"`
	BillDate      *time.Time `json:"bill_date,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	PeriodStart   *time.Time `json:"period_start,omitempty"`
	PeriodEnd     *time.Time `json:"period_end,omitempty"`

	TotalDueCents        int64 `json:"total_due_cents"`
	PreviousBalanceCents int64 `json:"previous_balance_cents"`
	CurrentChargesCents  int64 `json:"current_charges_cents"`
	VATCents             int64 `json:"vat_cents"`

	Property *PropertyInfo `json:"property,omitempty"`

	// LineItems preserves source-document order. Analyzers look items up by
	// service type, never by position.
	LineItems []LineItem `json:"line_items"`

	// RawText is the full extracted statement text, used by the marker
	// predicates. May be empty.
	RawText string `json:"raw_text"`
}

// PropertyInfo carries the property metadata printed on the statement.
type PropertyInfo struct {
	Address                 string  `json:"address,omitempty"`
	StandSizeSqm            float64 `json:"stand_size_sqm,omitempty"`
	UnitCount               int     `json:"unit_count,omitempty"`
	PropertyType            string  `json:"property_type,omitempty"`
	MunicipalValuationCents int64   `json:"municipal_valuation_cents,omitempty"`
}

// LineItem is one charge row on the statement. Amount is always present;
// Quantity and UnitPriceCents are nil when not derivable from the source text.
type LineItem struct {
	Service        ServiceType       `json:"service"`
	Description    string            `json:"description"`
	Quantity       *float64          `json:"quantity,omitempty"`
	UnitPriceCents *int64            `json:"unit_price_cents,omitempty"`
	AmountCents    int64             `json:"amount_cents"`
	TariffCode     string            `json:"tariff_code,omitempty"`
	IsEstimated    bool              `json:"is_estimated"`
	Metadata       *LineItemMetadata `json:"metadata,omitempty"`
}

// LineItemMetadata is a tagged variant: exactly one service-specific member
// is set, matching the line item's service type. A typed shape here keeps
// analyzers from probing an open map for fields that may not exist.
type LineItemMetadata struct {
	Electricity *ElectricityMetadata `json:"electricity,omitempty"`
	Water       *WaterMetadata       `json:"water,omitempty"`
	Sewerage    *SewerageMetadata    `json:"sewerage,omitempty"`
	Refuse      *RefuseMetadata      `json:"refuse,omitempty"`
	Rates       *RatesMetadata       `json:"rates,omitempty"`
}

// Meter reading types as printed on the statement.
const (
	ReadingActual    = "Actual"
	ReadingEstimated = "Estimated"
)

// MeterReading is a single meter's contribution to a line item.
type MeterReading struct {
	MeterNumber string  `json:"meter_number,omitempty"`
	Consumption float64 `json:"consumption"`
	ReadingType string  `json:"reading_type,omitempty"`
}

// ElectricityMetadata holds per-meter detail for an electricity charge.
type ElectricityMetadata struct {
	Meters []MeterReading `json:"meters,omitempty"`
}

// WaterMetadata holds per-meter detail for a water charge.
type WaterMetadata struct {
	Meters []MeterReading `json:"meters,omitempty"`
}

// SewerageMetadata records how the sewerage charge was determined.
type SewerageMetadata struct {
	BillingMethod string `json:"billing_method,omitempty"` // "stand_size" or "living_units"
	LivingUnits   int    `json:"living_units,omitempty"`
}

// RefuseMetadata records the billed bin count.
type RefuseMetadata struct {
	BinCount int `json:"bin_count,omitempty"`
}

// RatesMetadata records the rate-in-rand factor the statement applied.
type RatesMetadata struct {
	RateUsed      float64 `json:"rate_used,omitempty"`
	RebateApplied bool    `json:"rebate_applied"`
}

// FindLineItem returns the first line item of the given service, or nil.
func (b *ParsedBill) FindLineItem(service ServiceType) *LineItem {
	for i := range b.LineItems {
		if b.LineItems[i].Service == service {
			return &b.LineItems[i]
		}
	}
	return nil
}

// BillingDays returns the length of the billing period in days when both
// period dates are present, and reports whether it could be derived.
func (b *ParsedBill) BillingDays() (int, bool) {
	if b.PeriodStart == nil || b.PeriodEnd == nil {
		return 0, false
	}
	days := int(b.PeriodEnd.Sub(*b.PeriodStart).Hours() / 24)
	if days <= 0 {
		return 0, false
	}
	return days, true
}

// FinancialYear renders the municipal billing year (July to June) containing
// t, e.g. "2025/26" for any date from 2025-07-01 through 2026-06-30.
func FinancialYear(t time.Time) string {
	start := t.Year()
	if t.Month() < time.July {
		start--
	}
	return fmt.Sprintf("%d/%02d", start, (start+1)%100)
}
