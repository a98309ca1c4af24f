package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/billwatch/munibill/internal/models"
	"github.com/billwatch/munibill/pkg/database"
)

// TariffRepository stores tariff rules. Pricing structures are kept as a JSON
// column: the engine only ever loads whole rules, so there is nothing to gain
// from normalizing bands into their own table.
type TariffRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewTariffRepository creates a new tariff repository.
func NewTariffRepository(db *database.DB, logger *zap.Logger) *TariffRepository {
	return &TariffRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new tariff rule.
func (r *TariffRepository) Create(ctx context.Context, rule *models.TariffRule) error {
	pricing, err := json.Marshal(rule.Pricing)
	if err != nil {
		return fmt.Errorf("failed to marshal pricing: %w", err)
	}

	query := `
		INSERT INTO tariff_rules (
			id, provider, service, tariff_code, category, pricing,
			vat_rate, vat_inclusive, effective_date, expiry_date, financial_year,
			source_excerpt, source_page, source_doc_ref,
			extraction_confidence, verified, active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Provider,
		string(rule.Service),
		rule.TariffCode,
		string(rule.Category),
		string(pricing),
		rule.VATRate.String(),
		rule.VATInclusive,
		rule.EffectiveDate,
		rule.ExpiryDate,
		rule.FinancialYear,
		rule.SourceExcerpt,
		rule.SourcePage,
		rule.SourceDocRef,
		rule.ExtractionConfidence,
		rule.Verified,
		rule.Active,
	)
	if err != nil {
		r.logger.Error("Failed to create tariff rule", zap.String("id", rule.ID), zap.Error(err))
		return fmt.Errorf("failed to create tariff rule: %w", err)
	}

	return nil
}

// GetByID retrieves a tariff rule by ID. Returns nil when no rule exists.
func (r *TariffRepository) GetByID(ctx context.Context, id string) (*models.TariffRule, error) {
	query := selectRuleColumns + ` WHERE id = ?`

	rule, err := r.scanRule(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get tariff rule", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get tariff rule: %w", err)
	}

	return rule, nil
}

// FindActiveRules returns the active rules for a provider, service and
// financial year whose validity window contains onDate. This is the read
// path the verification engine depends on.
func (r *TariffRepository) FindActiveRules(ctx context.Context, provider string, service models.ServiceType, financialYear string, onDate time.Time) ([]models.TariffRule, error) {
	query := selectRuleColumns + `
		WHERE provider = ? AND service = ? AND financial_year = ? AND active = 1
			AND effective_date <= ?
			AND (expiry_date IS NULL OR expiry_date >= ?)
		ORDER BY effective_date DESC, id
	`

	rows, err := r.db.QueryContext(ctx, query, provider, string(service), financialYear, onDate, onDate)
	if err != nil {
		r.logger.Error("Failed to find active tariff rules",
			zap.String("provider", provider),
			zap.String("service", string(service)),
			zap.String("financial_year", financialYear),
			zap.Error(err))
		return nil, fmt.Errorf("failed to find active tariff rules: %w", err)
	}
	defer rows.Close()

	var rules []models.TariffRule
	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tariff rule: %w", err)
		}
		rules = append(rules, *rule)
	}

	return rules, rows.Err()
}

// MarkVerified flips the admin-verification flag on a rule.
func (r *TariffRepository) MarkVerified(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "UPDATE tariff_rules SET verified = 1 WHERE id = ?", id)
	if err != nil {
		r.logger.Error("Failed to mark tariff rule verified", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark tariff rule verified: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("tariff rule not found: %s", id)
	}

	r.logger.Info("Tariff rule verified", zap.String("id", id))
	return nil
}

// Deactivate soft-deletes a rule. Deactivated rules stay queryable for audit
// but never match the engine's read path.
func (r *TariffRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "UPDATE tariff_rules SET active = 0 WHERE id = ?", id)
	if err != nil {
		r.logger.Error("Failed to deactivate tariff rule", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to deactivate tariff rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("tariff rule not found: %s", id)
	}

	r.logger.Info("Tariff rule deactivated", zap.String("id", id))
	return nil
}

const selectRuleColumns = `
	SELECT id, provider, service, tariff_code, category, pricing,
		vat_rate, vat_inclusive, effective_date, expiry_date, financial_year,
		source_excerpt, source_page, source_doc_ref,
		extraction_confidence, verified, active
	FROM tariff_rules
`

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *TariffRepository) scanRule(s scanner) (*models.TariffRule, error) {
	var rule models.TariffRule
	var service, category, pricing, vatRate string
	var expiryDate sql.NullTime
	var sourcePage sql.NullInt64

	err := s.Scan(
		&rule.ID,
		&rule.Provider,
		&service,
		&rule.TariffCode,
		&category,
		&pricing,
		&vatRate,
		&rule.VATInclusive,
		&rule.EffectiveDate,
		&expiryDate,
		&rule.FinancialYear,
		&rule.SourceExcerpt,
		&sourcePage,
		&rule.SourceDocRef,
		&rule.ExtractionConfidence,
		&rule.Verified,
		&rule.Active,
	)
	if err != nil {
		return nil, err
	}

	rule.Service = models.ServiceType(service)
	rule.Category = models.CustomerCategory(category)
	if err := json.Unmarshal([]byte(pricing), &rule.Pricing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pricing for rule %s: %w", rule.ID, err)
	}
	rule.VATRate, err = decimal.NewFromString(vatRate)
	if err != nil {
		return nil, fmt.Errorf("invalid vat rate for rule %s: %w", rule.ID, err)
	}
	if expiryDate.Valid {
		rule.ExpiryDate = &expiryDate.Time
	}
	if sourcePage.Valid {
		page := int(sourcePage.Int64)
		rule.SourcePage = &page
	}

	return &rule, nil
}
