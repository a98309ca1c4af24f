package analyzer

import (
	"fmt"

	"github.com/billwatch/munibill/internal/models"
	"github.com/billwatch/munibill/internal/textscan"
)

// SewerageAnalyzer reports which billing method the sewerage charge used.
// Purely informational; it never raises severity above info.
type SewerageAnalyzer struct{}

func (SewerageAnalyzer) Name() string { return "sewerage" }

func (SewerageAnalyzer) Analyze(bill *models.ParsedBill, _ models.PropertyClassification) []models.Insight {
	item := bill.FindLineItem(models.ServiceSewerage)
	if item == nil {
		return nil
	}

	method, units := sewerageMethod(bill, item)

	var finding string
	switch method {
	case "stand_size":
		finding = "Sewerage is billed on the size of the stand."
		if bill.Property != nil && bill.Property.StandSizeSqm > 0 {
			finding = fmt.Sprintf("Sewerage is billed on the size of the stand (%.0f sqm).", bill.Property.StandSizeSqm)
		}
	case "living_units":
		finding = "Sewerage is billed per living unit."
		if units > 0 {
			finding = fmt.Sprintf("Sewerage is billed per living unit; the statement records %d units.", units)
		}
	default:
		// Method not stated on the statement. Nothing worth reporting.
		return nil
	}

	return []models.Insight{{
		Service:  models.ServiceSewerage,
		Severity: models.SeverityInfo,
		Title:    "Sewerage billing method",
		Finding:  finding,
		Action:   "Verify the recorded stand size or unit count matches your property; either drives this charge directly.",
	}}
}

// sewerageMethod prefers the typed metadata and falls back to the statement
// text markers.
func sewerageMethod(bill *models.ParsedBill, item *models.LineItem) (string, int) {
	if item.Metadata != nil && item.Metadata.Sewerage != nil {
		md := item.Metadata.Sewerage
		if md.BillingMethod != "" {
			return md.BillingMethod, md.LivingUnits
		}
	}

	units := 0
	if bill.Property != nil {
		units = bill.Property.UnitCount
	}
	if textscan.HasMarker(bill.RawText, textscan.MarkerSewerStandSize) {
		return "stand_size", units
	}
	if textscan.HasMarker(bill.RawText, textscan.MarkerSewerLivingUnits) {
		return "living_units", units
	}
	return "", units
}
