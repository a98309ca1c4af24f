package analyzer

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/billwatch/munibill/internal/models"
	"github.com/billwatch/munibill/internal/textscan"
)

// Johannesburg rate-in-rand factors, per rand of municipal valuation per
// year. Used for indicative monthly estimates only; the engine never
// re-derives the bill's own arithmetic.
var (
	businessRateFactor    = decimal.RequireFromString("0.0238620")
	residentialRateFactor = decimal.RequireFromString("0.0095447")
	twelve                = decimal.NewFromInt(12)
)

const (
	// residentialExemptionCents is the first R300,000 of valuation exempt
	// from residential rates.
	residentialExemptionCents = 30_000_000
	// misclassificationDiffCents is the minimum monthly business-vs-
	// residential difference (R500) worth flagging.
	misclassificationDiffCents = 50_000
	// rebateMonthlySavingsCents is the fixed monthly value of the first-
	// R300,000 residential rebate (R238.62).
	rebateMonthlySavingsCents = 23_862
)

// RatesAnalyzer checks the assessment-rates charge for misclassification
// and for a missing residential rebate.
type RatesAnalyzer struct{}

func (RatesAnalyzer) Name() string { return "rates" }

func (RatesAnalyzer) Analyze(bill *models.ParsedBill, class models.PropertyClassification) []models.Insight {
	item := bill.FindLineItem(models.ServiceRates)
	if item == nil {
		return nil
	}

	valuation := municipalValuation(bill)

	switch class {
	case models.ClassBusiness:
		if valuation <= 0 {
			return nil
		}
		return businessDifferential(valuation)
	case models.ClassResidential:
		if valuation <= residentialExemptionCents {
			return nil
		}
		if textscan.HasMarker(bill.RawText, textscan.MarkerRatesRebate) {
			return nil
		}
		return []models.Insight{{
			Service:     models.ServiceRates,
			Severity:    models.SeverityActionRequired,
			Title:       "Residential rates rebate not applied",
			Finding:     "This statement shows no deduction for the first R300,000 of your property's value, which residential properties are entitled to.",
			Implication: fmt.Sprintf("You are overpaying roughly R%.2f every month.", float64(rebateMonthlySavingsCents)/100),
			Action:      "Query the missing rebate with the municipality and request a corrected account.",
			SavingsPotential: &models.ImpactRange{
				MinCents: rebateMonthlySavingsCents,
				MaxCents: rebateMonthlySavingsCents,
			},
		}}
	default:
		return nil
	}
}

// businessDifferential estimates what the same valuation would cost on the
// residential tariff and flags the gap when it exceeds the threshold.
func businessDifferential(valuationCents int64) []models.Insight {
	businessMonthly := monthlyRatesCents(valuationCents, businessRateFactor)

	exempt := valuationCents - residentialExemptionCents
	if exempt < 0 {
		exempt = 0
	}
	residentialMonthly := monthlyRatesCents(exempt, residentialRateFactor)

	diff := businessMonthly - residentialMonthly
	if diff <= misclassificationDiffCents {
		return nil
	}

	return []models.Insight{{
		Service:     models.ServiceRates,
		Severity:    models.SeverityAttention,
		Title:       "Property billed on the business rates tariff",
		Finding:     fmt.Sprintf("At the recorded valuation this property pays about R%.2f/month on the business tariff versus about R%.2f/month residential.", float64(businessMonthly)/100, float64(residentialMonthly)/100),
		Implication: "If any part of the property is residential, a reclassification or mixed-use split could reduce the charge substantially.",
		Action:      "Confirm the zoning and usage on record with the municipality; object to the category if it is wrong.",
		SavingsPotential: &models.ImpactRange{
			MinCents: diff,
			MaxCents: diff,
		},
	}}
}

// monthlyRatesCents applies an annual rate-in-rand factor to a valuation in
// cents and returns the monthly charge in cents, rounded half up.
func monthlyRatesCents(valuationCents int64, annualFactor decimal.Decimal) int64 {
	v := decimal.NewFromInt(valuationCents)
	return v.Mul(annualFactor).Div(twelve).Round(0).IntPart()
}

func municipalValuation(bill *models.ParsedBill) int64 {
	if bill.Property == nil {
		return 0
	}
	return bill.Property.MunicipalValuationCents
}
