package analyzer

import (
	"fmt"

	"github.com/billwatch/munibill/internal/models"
	"github.com/billwatch/munibill/internal/textscan"
)

// arrearsCriticalCents is the outstanding balance (R100,000) above which
// arrears become a critical finding.
const arrearsCriticalCents = 10_000_000

// WholeBillAnalyzer checks statement-level conditions that no single
// service line explains: deep arrears and interest charges.
type WholeBillAnalyzer struct{}

func (WholeBillAnalyzer) Name() string { return "whole_bill" }

func (WholeBillAnalyzer) Analyze(bill *models.ParsedBill, _ models.PropertyClassification) []models.Insight {
	var insights []models.Insight

	if bill.PreviousBalanceCents > arrearsCriticalCents {
		insights = append(insights, models.Insight{
			Service:     models.ServiceOther,
			Severity:    models.SeverityCritical,
			Title:       "Account deeply in arrears",
			Finding:     fmt.Sprintf("The previous balance of R%.2f exceeds R100,000.", float64(bill.PreviousBalanceCents)/100),
			Implication: "Accounts at this level face disconnection and legal collection, and interest compounds the debt monthly.",
			Action:      "Apply for the municipal debt-relief or arrangement programme before enforcement starts.",
		})
	}

	if textscan.HasMarker(bill.RawText, textscan.MarkerInterestOnArrears) {
		insights = append(insights, models.Insight{
			Service:     models.ServiceOther,
			Severity:    models.SeverityAttention,
			Title:       "Interest charged on arrears",
			Finding:     "This statement includes an interest-on-arrears charge.",
			Implication: "Interest compounds every month the overdue balance stands.",
			Action:      "Settle or formally arrange the overdue amount to stop further interest.",
		})
	}

	return insights
}
