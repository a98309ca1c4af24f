package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/billwatch/munibill/internal/models"
	"github.com/billwatch/munibill/pkg/database"
)

// MissingTariff is an open work item: a tariff the engine needed but the
// knowledge store did not have. One row per provider/service/year identity;
// repeat encounters bump the occurrence count instead of adding rows.
type MissingTariff struct {
	ID            int64              `json:"id"`
	Provider      string             `json:"provider"`
	Service       models.ServiceType `json:"service"`
	FinancialYear string             `json:"financial_year"`
	Occurrences   int                `json:"occurrences"`
	FirstSeenAt   time.Time          `json:"first_seen_at"`
	LastSeenAt    time.Time          `json:"last_seen_at"`
}

// MissingTariffRepository tracks missing-tariff work items.
type MissingTariffRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewMissingTariffRepository creates a new missing-tariff repository.
func NewMissingTariffRepository(db *database.DB, logger *zap.Logger) *MissingTariffRepository {
	return &MissingTariffRepository{
		db:     db,
		logger: logger,
	}
}

// Record upserts a work item for the given missing-rule identity.
func (r *MissingTariffRepository) Record(ctx context.Context, ref models.MissingRuleRef) error {
	query := `
		INSERT INTO missing_tariffs (provider, service, financial_year, occurrences, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (provider, service, financial_year)
		DO UPDATE SET occurrences = occurrences + 1, last_seen_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.ExecContext(ctx, query, ref.Provider, string(ref.Service), ref.FinancialYear)
	if err != nil {
		r.logger.Error("Failed to record missing tariff",
			zap.String("provider", ref.Provider),
			zap.String("service", string(ref.Service)),
			zap.String("financial_year", ref.FinancialYear),
			zap.Error(err))
		return fmt.Errorf("failed to record missing tariff: %w", err)
	}

	return nil
}

// ListOpen returns all open work items, most recently seen first.
func (r *MissingTariffRepository) ListOpen(ctx context.Context) ([]MissingTariff, error) {
	query := `
		SELECT id, provider, service, financial_year, occurrences, first_seen_at, last_seen_at
		FROM missing_tariffs
		ORDER BY last_seen_at DESC, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list missing tariffs", zap.Error(err))
		return nil, fmt.Errorf("failed to list missing tariffs: %w", err)
	}
	defer rows.Close()

	var items []MissingTariff
	for rows.Next() {
		var item MissingTariff
		var service string

		err := rows.Scan(
			&item.ID,
			&item.Provider,
			&service,
			&item.FinancialYear,
			&item.Occurrences,
			&item.FirstSeenAt,
			&item.LastSeenAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan missing tariff: %w", err)
		}

		item.Service = models.ServiceType(service)
		items = append(items, item)
	}

	return items, rows.Err()
}

// Resolve closes a work item once the tariff has been captured.
func (r *MissingTariffRepository) Resolve(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM missing_tariffs WHERE id = ?", id)
	if err != nil {
		r.logger.Error("Failed to resolve missing tariff", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to resolve missing tariff: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("missing tariff not found: %d", id)
	}

	return nil
}
