package verify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/billwatch/munibill/internal/models"
)

// unverifiedRuleConfidenceFactor scales a rule's extraction confidence when
// the rule has not yet been admin-verified.
const unverifiedRuleConfidenceFactor = 0.8

// minToleranceCents keeps the comparison tolerance at no less than R1.
const minToleranceCents = 100

// RuleStore is the read-only tariff lookup the engine depends on. The store
// returns only active rules whose validity window contains onDate; the engine
// does all further narrowing itself.
type RuleStore interface {
	FindActiveRules(ctx context.Context, provider string, service models.ServiceType, financialYear string, onDate time.Time) ([]models.TariffRule, error)
}

// Engine checks billed charges against the tariff rules of a single provider.
// It never returns an error from a verification: every failure mode collapses
// into a cannot_verify result that says why.
type Engine struct {
	store    RuleStore
	provider string
	logger   *zap.Logger
}

// NewEngine creates a verification engine for the given provider.
func NewEngine(store RuleStore, provider string, logger *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		provider: provider,
		logger:   logger,
	}
}

// VerifyBill runs a tariff check over every verifiable line item on the bill.
// Sundry and uncategorized charges are skipped: there is no tariff to check
// them against. Results come back in line-item order.
func (e *Engine) VerifyBill(ctx context.Context, bill *models.ParsedBill, category models.CustomerCategory, on time.Time) []models.VerificationResult {
	results := make([]models.VerificationResult, 0, len(bill.LineItems))
	for i := range bill.LineItems {
		item := &bill.LineItems[i]
		switch item.Service {
		case models.ServiceSundry, models.ServiceOther:
			continue
		}
		results = append(results, e.VerifyLineItem(ctx, item, bill.Property, category, on))
	}
	return results
}

// VerifyLineItem checks one charge against the active tariff rules for its
// service. The outcome is one of:
//
//   - verified: a single applicable rule priced the item within tolerance
//   - likely_wrong: the rule's computed charge differs by more than tolerance
//   - cannot_verify: no applicable rule, an ambiguous match, or only rules
//     with unusable pricing data
//
// Tolerance is the larger of 1% of the billed amount and R1.
func (e *Engine) VerifyLineItem(ctx context.Context, item *models.LineItem, property *models.PropertyInfo, category models.CustomerCategory, on time.Time) models.VerificationResult {
	result := models.VerificationResult{
		Service:     item.Service,
		Description: item.Description,
		BilledCents: item.AmountCents,
	}

	financialYear := models.FinancialYear(on)

	rules, err := e.store.FindActiveRules(ctx, e.provider, item.Service, financialYear, on)
	if err != nil {
		e.logger.Error("tariff rule lookup failed",
			zap.String("service", string(item.Service)),
			zap.String("financial_year", financialYear),
			zap.Error(err))
		result.Status = models.StatusCannotVerify
		result.Citation = models.Citation{NoSourceReason: "tariff knowledge store unavailable"}
		return result
	}

	rule, reason := e.selectRule(rules, item, category, on)
	if rule == nil {
		result.Status = models.StatusCannotVerify
		if reason == "" {
			reason = fmt.Sprintf("no %s tariff on record for %s in %s",
				item.Service, e.provider, financialYear)
			result.MissingRule = &models.MissingRuleRef{
				Provider:      e.provider,
				Service:       item.Service,
				FinancialYear: financialYear,
			}
		}
		result.Citation = models.Citation{NoSourceReason: reason}
		return result
	}

	expected, err := ComputeExpectedCents(rule, item, property)
	if err != nil {
		// selectRule already filtered malformed pricing, so this is a data
		// gap on the line item itself (for example a missing quantity).
		e.logger.Warn("rule not applicable to line item",
			zap.String("rule_id", rule.ID),
			zap.String("service", string(item.Service)),
			zap.Error(err))
		result.Status = models.StatusCannotVerify
		result.Citation = models.Citation{
			NoSourceReason: fmt.Sprintf("statement does not carry the data needed to apply tariff %s", rule.ID),
		}
		return result
	}

	result.RuleID = rule.ID
	result.ComputedCents = expected
	result.Confidence = ruleConfidence(rule)
	result.Citation = ruleCitation(rule)

	diff := item.AmountCents - expected
	if diff < 0 {
		diff = -diff
	}

	tolerance := item.AmountCents / 100
	if tolerance < minToleranceCents {
		tolerance = minToleranceCents
	}

	if diff <= tolerance {
		result.Status = models.StatusVerified
		return result
	}

	result.Status = models.StatusLikelyWrong
	minImpact := diff - tolerance
	if minImpact < 0 {
		minImpact = 0
	}
	result.Impact = &models.ImpactRange{MinCents: minImpact, MaxCents: diff}
	return result
}

// selectRule narrows the candidate rules to the single one that applies to
// this line item. It returns (nil, "") when no candidate survives filtering
// (the missing-rule case) and (nil, reason) when candidates exist but cannot
// be disambiguated.
func (e *Engine) selectRule(rules []models.TariffRule, item *models.LineItem, category models.CustomerCategory, on time.Time) (*models.TariffRule, string) {
	usable := make([]*models.TariffRule, 0, len(rules))
	for i := range rules {
		r := &rules[i]
		if !r.Active || !r.InEffect(on) {
			continue
		}
		if err := r.Pricing.ValidatePricing(); err != nil {
			e.logger.Warn("skipping rule with malformed pricing",
				zap.String("rule_id", r.ID), zap.Error(err))
			continue
		}
		usable = append(usable, r)
	}

	if len(usable) == 0 {
		return nil, ""
	}
	if len(usable) == 1 {
		return usable[0], ""
	}

	// The statement's own tariff code is the strongest discriminator.
	if item.TariffCode != "" {
		var matched []*models.TariffRule
		for _, r := range usable {
			if r.TariffCode == item.TariffCode {
				matched = append(matched, r)
			}
		}
		if len(matched) == 1 {
			return matched[0], ""
		}
		if len(matched) > 1 {
			usable = matched
		}
	}

	// Fall back to an exact customer-category match.
	var matched []*models.TariffRule
	for _, r := range usable {
		if r.Category == category && category != models.CategoryAny {
			matched = append(matched, r)
		}
	}
	if len(matched) == 1 {
		return matched[0], ""
	}

	return nil, fmt.Sprintf("ambiguous tariff match: %d rules apply to this %s charge", len(usable), item.Service)
}

// ruleConfidence propagates the rule's extraction confidence, discounted when
// no admin has verified the rule against its source document.
func ruleConfidence(rule *models.TariffRule) float64 {
	c := rule.ExtractionConfidence
	if !rule.Verified {
		c *= unverifiedRuleConfidenceFactor
	}
	return c
}

// ruleCitation builds the citation for a result that was checked against a
// rule. A rule with no recorded source still yields an honest citation.
func ruleCitation(rule *models.TariffRule) models.Citation {
	if rule.SourceDocRef == "" && rule.SourceExcerpt == "" {
		return models.Citation{NoSourceReason: "tariff rule has no recorded source document"}
	}
	return models.Citation{
		HasSource:   true,
		DocumentRef: rule.SourceDocRef,
		Excerpt:     rule.SourceExcerpt,
		Page:        rule.SourcePage,
	}
}
