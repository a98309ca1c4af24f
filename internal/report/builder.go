package report

import (
	"fmt"
	"strings"

	"github.com/billwatch/munibill/internal/models"
)

// severityOrder fixes the section order of the rendered report.
var severityOrder = []models.Severity{
	models.SeverityCritical,
	models.SeverityActionRequired,
	models.SeverityAttention,
	models.SeverityInfo,
}

var severityHeadings = map[models.Severity]string{
	models.SeverityCritical:       "CRITICAL",
	models.SeverityActionRequired: "ACTION REQUIRED",
	models.SeverityAttention:      "NEEDS ATTENTION",
	models.SeverityInfo:           "FOR INFORMATION",
}

// BuildSummary aggregates insights and verification results into the run
// summary. Only likely_wrong verifications and action_required or critical
// insights contribute to the recoverable totals.
func BuildSummary(insights []models.Insight, verifications []models.VerificationResult) models.Summary {
	s := models.Summary{
		CountsBySeverity: make(map[models.Severity]int),
		CountsByStatus:   make(map[models.VerificationStatus]int),
		TotalInsights:    len(insights),
	}

	for _, in := range insights {
		s.CountsBySeverity[in.Severity]++
		if in.SavingsPotential == nil {
			continue
		}
		if in.Severity == models.SeverityActionRequired || in.Severity == models.SeverityCritical {
			s.SavingsMinCents += in.SavingsPotential.MinCents
			s.SavingsMaxCents += in.SavingsPotential.MaxCents
		}
	}

	for _, v := range verifications {
		s.CountsByStatus[v.Status]++
		if v.Status == models.StatusVerified {
			s.TotalVerified++
		}
		if v.Status == models.StatusLikelyWrong && v.Impact != nil {
			s.SavingsMinCents += v.Impact.MinCents
			s.SavingsMaxCents += v.Impact.MaxCents
		}
	}

	return s
}

// BuildReport renders the analysis as a deterministic plain-text report:
// insights grouped by severity (critical first), then the per-charge tariff
// verification, then the summary block. The same analysis always yields the
// same text.
func BuildReport(a *models.BillAnalysis) string {
	var b strings.Builder

	b.WriteString("MUNICIPAL BILL ANALYSIS\n")
	b.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&b, "Account:         %s\n", orDash(a.AccountNumber))
	if a.BillDate != nil {
		fmt.Fprintf(&b, "Bill date:       %s\n", a.BillDate.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "Classification:  %s\n", a.Classification)
	fmt.Fprintf(&b, "Current charges: %s\n", randAmount(a.CurrentChargesCents))

	for _, sev := range severityOrder {
		var section []models.Insight
		for _, in := range a.Insights {
			if in.Severity == sev {
				section = append(section, in)
			}
		}
		if len(section) == 0 {
			continue
		}

		fmt.Fprintf(&b, "\n--- %s ---\n", severityHeadings[sev])
		for _, in := range section {
			fmt.Fprintf(&b, "\n[%s] %s\n", in.Service, in.Title)
			fmt.Fprintf(&b, "  %s\n", in.Finding)
			if in.Implication != "" {
				fmt.Fprintf(&b, "  Implication: %s\n", in.Implication)
			}
			if in.Action != "" {
				fmt.Fprintf(&b, "  Action: %s\n", in.Action)
			}
			if in.SavingsPotential != nil {
				fmt.Fprintf(&b, "  Potential saving: %s\n", randRange(*in.SavingsPotential))
			}
		}
	}

	if len(a.Verifications) > 0 {
		b.WriteString("\n--- TARIFF VERIFICATION ---\n")
		for _, v := range a.Verifications {
			fmt.Fprintf(&b, "\n[%s] %s: %s\n", v.Service, orDash(v.Description), statusLabel(v.Status))
			fmt.Fprintf(&b, "  Billed %s", randAmount(v.BilledCents))
			if v.Status != models.StatusCannotVerify {
				fmt.Fprintf(&b, ", tariff computes %s (confidence %.0f%%)", randAmount(v.ComputedCents), v.Confidence*100)
			}
			b.WriteString("\n")
			if v.Impact != nil {
				fmt.Fprintf(&b, "  Possible overcharge: %s\n", randRange(*v.Impact))
			}
			b.WriteString("  " + citationLine(v.Citation) + "\n")
		}
	}

	b.WriteString("\n--- SUMMARY ---\n")
	s := a.Summary
	fmt.Fprintf(&b, "Insights: %d", s.TotalInsights)
	for _, sev := range severityOrder {
		if n := s.CountsBySeverity[sev]; n > 0 {
			fmt.Fprintf(&b, " | %s: %d", sev, n)
		}
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Charges checked: %d verified, %d likely wrong, %d could not be verified\n",
		s.CountsByStatus[models.StatusVerified],
		s.CountsByStatus[models.StatusLikelyWrong],
		s.CountsByStatus[models.StatusCannotVerify])
	if s.SavingsMaxCents > 0 {
		fmt.Fprintf(&b, "Estimated recoverable: %s to %s per month\n",
			randAmount(s.SavingsMinCents), randAmount(s.SavingsMaxCents))
	} else {
		b.WriteString("No recoverable amounts identified\n")
	}

	return b.String()
}

func statusLabel(s models.VerificationStatus) string {
	switch s {
	case models.StatusVerified:
		return "VERIFIED"
	case models.StatusLikelyWrong:
		return "LIKELY WRONG"
	default:
		return "CANNOT VERIFY"
	}
}

func citationLine(c models.Citation) string {
	if !c.HasSource {
		return "Source: none (" + c.NoSourceReason + ")"
	}
	line := "Source: " + c.DocumentRef
	if c.Page != nil {
		line += fmt.Sprintf(", p.%d", *c.Page)
	}
	if c.Excerpt != "" {
		line += `: "` + c.Excerpt + `"`
	}
	return line
}

// randAmount renders integer cents as a rand amount, e.g. 123456 -> "R1234.56".
func randAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%sR%d.%02d", sign, cents/100, cents%100)
}

func randRange(r models.ImpactRange) string {
	if r.MinCents == r.MaxCents {
		return randAmount(r.MaxCents) + " per month"
	}
	return randAmount(r.MinCents) + " to " + randAmount(r.MaxCents) + " per month"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
