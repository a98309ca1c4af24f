// Package analyzer holds the per-service bill analyzers. Each analyzer is a
// pure function of the parsed bill and its property classification; absence
// of a line item, metadata or text pattern is a valid "no insight" outcome,
// never an error. Analyzers are independent and may run in any order.
package analyzer

import (
	"github.com/billwatch/munibill/internal/models"
	"github.com/billwatch/munibill/internal/textscan"
)

// Analyzer inspects one aspect of a parsed bill and emits zero or more
// insights.
type Analyzer interface {
	Name() string
	Analyze(bill *models.ParsedBill, class models.PropertyClassification) []models.Insight
}

// defaultBillingDays is assumed when the statement carries no reading-period
// line and no usable period dates.
const defaultBillingDays = 30

// All returns the full analyzer set in its canonical order. The order only
// affects presentation; no analyzer reads another's output.
func All() []Analyzer {
	return []Analyzer{
		ElectricityAnalyzer{},
		WaterAnalyzer{},
		SewerageAnalyzer{},
		RatesAnalyzer{},
		RefuseAnalyzer{},
		WholeBillAnalyzer{},
	}
}

// billingDays resolves the billing period length: the reading-period line in
// the statement text wins, then the period dates, then the 30-day default.
func billingDays(bill *models.ParsedBill) int {
	if days, ok := textscan.ExtractNumber(bill.RawText, textscan.MarkerBillingDays); ok && days > 0 {
		return int(days)
	}
	if days, ok := bill.BillingDays(); ok {
		return days
	}
	return defaultBillingDays
}

// dailyAverage divides a consumption quantity over the billing period.
// Returns false when no quantity is available.
func dailyAverage(bill *models.ParsedBill, item *models.LineItem) (float64, bool) {
	if item == nil || item.Quantity == nil || *item.Quantity <= 0 {
		return 0, false
	}
	days := billingDays(bill)
	if days <= 0 {
		return 0, false
	}
	return *item.Quantity / float64(days), true
}
