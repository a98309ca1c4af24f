package analyzer

import (
	"fmt"

	"github.com/billwatch/munibill/internal/models"
)

const (
	// residentialDailyKLThreshold flags a possible leak on a single dwelling.
	residentialDailyKLThreshold = 2.0
	// perUnitDailyKLThreshold flags a possible leak on multi-unit properties.
	perUnitDailyKLThreshold = 1.5
)

// WaterAnalyzer checks the water charge for demand-levy-only billing and
// leak-level consumption.
type WaterAnalyzer struct{}

func (WaterAnalyzer) Name() string { return "water" }

func (WaterAnalyzer) Analyze(bill *models.ParsedBill, class models.PropertyClassification) []models.Insight {
	item := bill.FindLineItem(models.ServiceWater)
	if item == nil {
		return nil
	}

	// Zero consumption with a nonzero charge means the statement carries the
	// fixed demand levy only. No consumption checks apply.
	if (item.Quantity == nil || *item.Quantity == 0) && item.AmountCents != 0 {
		return []models.Insight{{
			Service:  models.ServiceWater,
			Severity: models.SeverityInfo,
			Title:    "Water charge is the demand levy only",
			Finding:  "No water consumption was billed this period; the charge is the fixed demand levy.",
			Action:   "If you used water this period, expect a catch-up charge once the meter is read.",
		}}
	}

	var insights []models.Insight

	if avg, ok := dailyAverage(bill, item); ok {
		if class == models.ClassResidential && avg > residentialDailyKLThreshold {
			insights = append(insights, models.Insight{
				Service:     models.ServiceWater,
				Severity:    models.SeverityAttention,
				Title:       "Possible water leak",
				Finding:     fmt.Sprintf("Average consumption of %.2f kL/day over a %d-day period is far above typical household usage.", avg, billingDays(bill)),
				Implication: "Consumption at this level most often indicates a leak on the property side of the meter.",
				Action:      "Close all taps, check whether the meter still turns, and log a leak inspection if it does.",
			})
		}

		if units := unitCount(bill); units > 1 {
			perUnit := avg / float64(units)
			if perUnit > perUnitDailyKLThreshold {
				insights = append(insights, models.Insight{
					Service:     models.ServiceWater,
					Severity:    models.SeverityAttention,
					Title:       "High per-unit water consumption",
					Finding:     fmt.Sprintf("Consumption works out to %.2f kL/day per unit across %d units.", perUnit, units),
					Implication: "One or more units may have a leak or an unrecorded occupancy change.",
					Action:      "Check the individual unit meters if the property is sub-metered.",
				})
			}
		}
	}

	return insights
}

func unitCount(bill *models.ParsedBill) int {
	if bill.Property == nil {
		return 0
	}
	return bill.Property.UnitCount
}
