package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/billwatch/munibill/internal/analyzer"
	"github.com/billwatch/munibill/internal/classify"
	"github.com/billwatch/munibill/internal/models"
	"github.com/billwatch/munibill/internal/report"
	"github.com/billwatch/munibill/internal/verify"
)

// FindingStore persists the findings projected from an analysis run.
type FindingStore interface {
	SaveAll(ctx context.Context, findings []models.Finding) error
}

// MissingTariffStore tracks tariff gaps as deduplicated work items.
type MissingTariffStore interface {
	Record(ctx context.Context, ref models.MissingRuleRef) error
}

// Alerter publishes missing-tariff events to the external alerting subsystem.
type Alerter interface {
	PublishMissingTariff(ref models.MissingRuleRef) error
}

// AnalysisService runs the full pipeline for one bill: classification,
// per-service analyzers, tariff verification, summary, and persistence of the
// resulting findings.
type AnalysisService struct {
	engine    *verify.Engine
	analyzers []analyzer.Analyzer
	findings  FindingStore
	missing   MissingTariffStore
	alerter   Alerter
	logger    *zap.Logger
	now       func() time.Time
}

// NewAnalysisService creates a new analysis service. alerter may be nil when
// event publishing is disabled.
func NewAnalysisService(
	engine *verify.Engine,
	findings FindingStore,
	missing MissingTariffStore,
	alerter Alerter,
	logger *zap.Logger,
) *AnalysisService {
	return &AnalysisService{
		engine:    engine,
		analyzers: analyzer.All(),
		findings:  findings,
		missing:   missing,
		alerter:   alerter,
		logger:    logger,
		now:       time.Now,
	}
}

// Analyze runs the pipeline and persists the findings under a fresh case ID.
// The analysis itself cannot fail for any valid bill; only persistence can
// return an error.
func (s *AnalysisService) Analyze(ctx context.Context, bill *models.ParsedBill) (*models.BillAnalysis, error) {
	classification := classify.Classify(bill)
	category := classify.CustomerCategory(classification)

	insights := make([]models.Insight, 0)
	for _, a := range s.analyzers {
		insights = append(insights, a.Analyze(bill, classification)...)
	}

	on := s.now()
	if bill.BillDate != nil {
		on = *bill.BillDate
	}
	verifications := s.engine.VerifyBill(ctx, bill, category, on)

	analysis := &models.BillAnalysis{
		CaseID:              uuid.NewString(),
		AccountNumber:       bill.AccountNumber,
		BillDate:            bill.BillDate,
		Classification:      classification,
		CurrentChargesCents: bill.CurrentChargesCents,
		Insights:            insights,
		Verifications:       verifications,
		Summary:             report.BuildSummary(insights, verifications),
	}

	s.logger.Info("Bill analyzed",
		zap.String("case_id", analysis.CaseID),
		zap.String("account", analysis.AccountNumber),
		zap.String("classification", string(classification)),
		zap.Int("insights", len(insights)),
		zap.Int("verifications", len(verifications)))

	if err := s.findings.SaveAll(ctx, s.projectFindings(analysis)); err != nil {
		return nil, fmt.Errorf("failed to persist findings for case %s: %w", analysis.CaseID, err)
	}

	s.recordMissingTariffs(ctx, verifications)

	return analysis, nil
}

// projectFindings flattens the analysis into persisted Finding rows: one per
// insight and one per verification outcome.
func (s *AnalysisService) projectFindings(a *models.BillAnalysis) []models.Finding {
	createdAt := s.now()
	findings := make([]models.Finding, 0, len(a.Insights)+len(a.Verifications))

	for _, in := range a.Insights {
		f := models.Finding{
			ID:          uuid.NewString(),
			CaseID:      a.CaseID,
			Service:     in.Service,
			Severity:    in.Severity,
			Title:       in.Title,
			Finding:     in.Finding,
			Implication: in.Implication,
			Action:      in.Action,
			CreatedAt:   createdAt,
		}
		if in.SavingsPotential != nil {
			sp := *in.SavingsPotential
			f.SavingsPotential = &sp
		}
		if in.Citation != nil {
			f.Citation = *in.Citation
		}
		findings = append(findings, f)
	}

	for _, v := range a.Verifications {
		status := v.Status
		f := models.Finding{
			ID:        uuid.NewString(),
			CaseID:    a.CaseID,
			Service:   v.Service,
			Severity:  verificationSeverity(v.Status),
			Status:    &status,
			Title:     verificationTitle(v),
			Finding:   verificationFinding(v),
			Citation:  v.Citation,
			CreatedAt: createdAt,
		}
		if v.Impact != nil {
			impact := *v.Impact
			f.SavingsPotential = &impact
		}
		findings = append(findings, f)
	}

	return findings
}

// recordMissingTariffs registers work items and publishes alert events for
// every tariff gap the run surfaced. Both paths are best effort: a failure
// here never fails the analysis.
func (s *AnalysisService) recordMissingTariffs(ctx context.Context, verifications []models.VerificationResult) {
	for _, v := range verifications {
		if v.MissingRule == nil {
			continue
		}
		ref := *v.MissingRule

		if err := s.missing.Record(ctx, ref); err != nil {
			s.logger.Error("Failed to record missing tariff",
				zap.String("service", string(ref.Service)),
				zap.Error(err))
		}
		if s.alerter != nil {
			if err := s.alerter.PublishMissingTariff(ref); err != nil {
				s.logger.Error("Failed to publish missing-tariff event",
					zap.String("service", string(ref.Service)),
					zap.Error(err))
			}
		}
	}
}

func verificationSeverity(status models.VerificationStatus) models.Severity {
	switch status {
	case models.StatusLikelyWrong:
		return models.SeverityActionRequired
	case models.StatusCannotVerify:
		return models.SeverityAttention
	default:
		return models.SeverityInfo
	}
}

func verificationTitle(v models.VerificationResult) string {
	switch v.Status {
	case models.StatusVerified:
		return fmt.Sprintf("%s charge matches the tariff", titleService(v.Service))
	case models.StatusLikelyWrong:
		return fmt.Sprintf("%s charge differs from the tariff", titleService(v.Service))
	default:
		return fmt.Sprintf("%s charge could not be verified", titleService(v.Service))
	}
}

func verificationFinding(v models.VerificationResult) string {
	switch v.Status {
	case models.StatusVerified:
		return fmt.Sprintf("Billed %s is within tolerance of the computed %s.",
			randAmount(v.BilledCents), randAmount(v.ComputedCents))
	case models.StatusLikelyWrong:
		return fmt.Sprintf("Billed %s but the tariff computes %s.",
			randAmount(v.BilledCents), randAmount(v.ComputedCents))
	default:
		return v.Citation.NoSourceReason
	}
}

func titleService(s models.ServiceType) string {
	switch s {
	case models.ServiceElectricity:
		return "Electricity"
	case models.ServiceWater:
		return "Water"
	case models.ServiceSewerage:
		return "Sewerage"
	case models.ServiceRefuse:
		return "Refuse"
	case models.ServiceRates:
		return "Rates"
	default:
		return "Sundry"
	}
}

func randAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%sR%d.%02d", sign, cents/100, cents%100)
}
