package analyzer

import (
	"fmt"

	"github.com/billwatch/munibill/internal/models"
	"github.com/billwatch/munibill/internal/textscan"
)

// residentialDailyKWhThreshold flags unusually heavy residential consumption.
const residentialDailyKWhThreshold = 50.0

// ElectricityAnalyzer checks the electricity charge for estimated readings,
// abnormal consumption and multi-meter setups.
type ElectricityAnalyzer struct{}

func (ElectricityAnalyzer) Name() string { return "electricity" }

func (ElectricityAnalyzer) Analyze(bill *models.ParsedBill, class models.PropertyClassification) []models.Insight {
	item := bill.FindLineItem(models.ServiceElectricity)
	if item == nil {
		return nil
	}

	var insights []models.Insight

	if hasEstimatedReading(bill, item) {
		insights = append(insights, models.Insight{
			Service:     models.ServiceElectricity,
			Severity:    models.SeverityActionRequired,
			Title:       "Electricity charged on an estimated reading",
			Finding:     "The electricity consumption on this statement was estimated, not read from your meter.",
			Implication: "Estimated readings can drift far from actual usage and correct themselves with a large catch-up charge later.",
			Action:      "Submit an actual meter reading to the municipality, or request a meter audit if estimates persist.",
		})
	}

	if avg, ok := dailyAverage(bill, item); ok {
		if class == models.ClassResidential && avg > residentialDailyKWhThreshold {
			insights = append(insights, models.Insight{
				Service:     models.ServiceElectricity,
				Severity:    models.SeverityAttention,
				Title:       "High daily electricity consumption",
				Finding:     fmt.Sprintf("Average consumption of %.1f kWh/day over a %d-day period is well above typical residential usage.", avg, billingDays(bill)),
				Implication: "Sustained usage at this level usually points to a faulty appliance, geyser element or incorrect meter.",
				Action:      "Compare the billed consumption against your own meter reading and recent months.",
			})
		}
	}

	if meters := electricityMeters(item); len(meters) > 1 {
		insights = append(insights, models.Insight{
			Service:  models.ServiceElectricity,
			Severity: models.SeverityInfo,
			Title:    "Multiple electricity meters on this account",
			Finding:  fmt.Sprintf("This statement aggregates %d electricity meters.", len(meters)),
			Action:   "Check that every listed meter belongs to your property.",
		})
	}

	return insights
}

// hasEstimatedReading checks the meter metadata first and falls back to the
// statement text marker.
func hasEstimatedReading(bill *models.ParsedBill, item *models.LineItem) bool {
	if item.IsEstimated {
		return true
	}
	for _, m := range electricityMeters(item) {
		if m.ReadingType == models.ReadingEstimated {
			return true
		}
	}
	return textscan.HasMarker(bill.RawText, textscan.MarkerEstimatedReading)
}

func electricityMeters(item *models.LineItem) []models.MeterReading {
	if item.Metadata == nil || item.Metadata.Electricity == nil {
		return nil
	}
	return item.Metadata.Electricity.Meters
}
