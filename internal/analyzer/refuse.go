package analyzer

import (
	"fmt"

	"github.com/billwatch/munibill/internal/models"
	"github.com/billwatch/munibill/internal/textscan"
)

// largeBinServiceThreshold is the bin count at which a business refuse
// service is worth a cost note.
const largeBinServiceThreshold = 5

// RefuseAnalyzer checks the refuse-removal charge on business accounts.
type RefuseAnalyzer struct{}

func (RefuseAnalyzer) Name() string { return "refuse" }

func (RefuseAnalyzer) Analyze(bill *models.ParsedBill, class models.PropertyClassification) []models.Insight {
	item := bill.FindLineItem(models.ServiceRefuse)

	if item == nil {
		if class != models.ClassBusiness {
			return nil
		}
		return []models.Insight{{
			Service:  models.ServiceRefuse,
			Severity: models.SeverityInfo,
			Title:    "No refuse charge on a business account",
			Finding:  "This business account carries no refuse-removal charge.",
			Action:   "Verify a waste-removal arrangement exists; municipal refuse charges can be back-billed when discovered missing.",
		}}
	}

	if class != models.ClassBusiness {
		return nil
	}

	bins := binCount(bill, item)
	if bins < largeBinServiceThreshold {
		return nil
	}

	return []models.Insight{{
		Service:  models.ServiceRefuse,
		Severity: models.SeverityInfo,
		Title:    "Large refuse service",
		Finding:  fmt.Sprintf("This account is billed for a %d-bin refuse service at R%.2f/month.", bins, float64(item.AmountCents)/100),
		Action:   "Confirm the bin count matches what is actually collected; reducing the service level reduces the charge.",
	}}
}

// binCount prefers the typed metadata and falls back to the "<N>-bin"
// wording on the statement, defaulting to a single bin.
func binCount(bill *models.ParsedBill, item *models.LineItem) int {
	if item.Metadata != nil && item.Metadata.Refuse != nil && item.Metadata.Refuse.BinCount > 0 {
		return item.Metadata.Refuse.BinCount
	}
	if n, ok := textscan.ExtractNumber(bill.RawText, textscan.MarkerBinCount); ok && n > 0 {
		return int(n)
	}
	return 1
}
