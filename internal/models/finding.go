package models

import "time"

// Severity grades an insight by how urgently the account holder should act.
type Severity string

const (
	SeverityInfo           Severity = "info"
	SeverityAttention      Severity = "attention"
	SeverityActionRequired Severity = "action_required"
	SeverityCritical       Severity = "critical"
)

// VerificationStatus is the outcome of checking a charge against tariff rules.
type VerificationStatus string

const (
	StatusVerified     VerificationStatus = "verified"
	StatusLikelyWrong  VerificationStatus = "likely_wrong"
	StatusCannotVerify VerificationStatus = "cannot_verify"
)

// Citation points a finding at the tariff source it was checked against.
// Either HasSource is true and DocumentRef/Excerpt resolve to a knowledge
// document, or HasSource is false and NoSourceReason explains the gap.
type Citation struct {
	HasSource      bool   `json:"has_source"`
	DocumentRef    string `json:"document_ref,omitempty"`
	Excerpt        string `json:"excerpt,omitempty"`
	Page           *int   `json:"page,omitempty"`
	NoSourceReason string `json:"no_source_reason,omitempty"`
}

// ImpactRange bounds an estimated financial impact in integer cents.
type ImpactRange struct {
	MinCents int64 `json:"min_cents"`
	MaxCents int64 `json:"max_cents"`
}

// Insight is an actionable observation about one aspect of a bill.
type Insight struct {
	Service          ServiceType  `json:"service"`
	Severity         Severity     `json:"severity"`
	Title            string       `json:"title"`
	Finding          string       `json:"finding"`
	Implication      string       `json:"implication,omitempty"`
	Action           string       `json:"action,omitempty"`
	SavingsPotential *ImpactRange `json:"savings_potential,omitempty"`
	Citation         *Citation    `json:"citation,omitempty"`
}

// MissingRuleRef identifies the tariff rule a verification needed but could
// not find. It carries enough structure for the external alerting subsystem
// to deduplicate and track the gap as a work item.
type MissingRuleRef struct {
	Provider      string      `json:"provider"`
	Service       ServiceType `json:"service"`
	FinancialYear string      `json:"financial_year"`
}

// VerificationResult is the tariff-check outcome for a single line item.
type VerificationResult struct {
	Service       ServiceType        `json:"service"`
	Description   string             `json:"description"`
	Status        VerificationStatus `json:"status"`
	Confidence    float64            `json:"confidence"`
	BilledCents   int64              `json:"billed_cents"`
	ComputedCents int64              `json:"computed_cents,omitempty"`
	Impact        *ImpactRange       `json:"impact,omitempty"`
	Citation      Citation           `json:"citation"`
	RuleID        string             `json:"rule_id,omitempty"`
	MissingRule   *MissingRuleRef    `json:"missing_rule,omitempty"`
}

// Finding is the persisted projection of an insight or verification result,
// attached to a case. Findings are written once per analysis run and never
// mutated; corrections happen by re-running the analysis.
type Finding struct {
	ID               string              `json:"id"`
	CaseID           string              `json:"case_id"`
	Service          ServiceType         `json:"service"`
	Severity         Severity            `json:"severity"`
	Status           *VerificationStatus `json:"status,omitempty"`
	Title            string              `json:"title"`
	Finding          string              `json:"finding"`
	Implication      string              `json:"implication,omitempty"`
	Action           string              `json:"action,omitempty"`
	SavingsPotential *ImpactRange        `json:"savings_potential,omitempty"`
	Citation         Citation            `json:"citation"`
	CreatedAt        time.Time           `json:"created_at"`
}

// Summary aggregates an analysis run. Only likely_wrong, action_required and
// critical entries contribute to the recoverable totals.
type Summary struct {
	CountsBySeverity map[Severity]int           `json:"counts_by_severity"`
	CountsByStatus   map[VerificationStatus]int `json:"counts_by_status"`
	TotalInsights    int                        `json:"total_insights"`
	TotalVerified    int                        `json:"total_verified"`
	SavingsMinCents  int64                      `json:"savings_min_cents"`
	SavingsMaxCents  int64                      `json:"savings_max_cents"`
}

// BillAnalysis is the full result of analyzing one parsed bill. It is
// computed synchronously per request and projected into Finding rows by the
// caller; it holds no references back into the bill or the tariff store.
type BillAnalysis struct {
	CaseID              string                 `json:"case_id,omitempty"`
	AccountNumber       string                 `json:"account_number"`
	BillDate            *time.Time             `json:"bill_date,omitempty"`
	Classification      PropertyClassification `json:"classification"`
	CurrentChargesCents int64                  `json:"current_charges_cents"`
	Insights            []Insight              `json:"insights"`
	Verifications       []VerificationResult   `json:"verifications"`
	Summary             Summary                `json:"summary"`
}
