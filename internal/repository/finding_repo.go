package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/billwatch/munibill/internal/models"
	"github.com/billwatch/munibill/pkg/database"
)

// FindingRepository stores the findings projected from analysis runs.
// Findings are write-once: a re-run produces a new case, never an update.
type FindingRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewFindingRepository creates a new finding repository.
func NewFindingRepository(db *database.DB, logger *zap.Logger) *FindingRepository {
	return &FindingRepository{
		db:     db,
		logger: logger,
	}
}

// SaveAll persists a case's findings in one transaction.
func (r *FindingRepository) SaveAll(ctx context.Context, findings []models.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	query := `
		INSERT INTO findings (
			id, case_id, service, severity, status, title, finding,
			implication, action, savings_min_cents, savings_max_cents,
			citation, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := r.db.WithTransaction(func(tx *sql.Tx) error {
		for _, f := range findings {
			citation, err := json.Marshal(f.Citation)
			if err != nil {
				return fmt.Errorf("failed to marshal citation: %w", err)
			}

			var status *string
			if f.Status != nil {
				s := string(*f.Status)
				status = &s
			}
			var savingsMin, savingsMax *int64
			if f.SavingsPotential != nil {
				savingsMin = &f.SavingsPotential.MinCents
				savingsMax = &f.SavingsPotential.MaxCents
			}

			if _, err := tx.ExecContext(ctx, query,
				f.ID,
				f.CaseID,
				string(f.Service),
				string(f.Severity),
				status,
				f.Title,
				f.Finding,
				f.Implication,
				f.Action,
				savingsMin,
				savingsMax,
				string(citation),
				f.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to insert finding %s: %w", f.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save findings",
			zap.String("case_id", findings[0].CaseID),
			zap.Int("count", len(findings)),
			zap.Error(err))
		return err
	}

	r.logger.Info("Findings saved",
		zap.String("case_id", findings[0].CaseID),
		zap.Int("count", len(findings)))
	return nil
}

// GetByCaseID returns a case's findings in insertion order.
func (r *FindingRepository) GetByCaseID(ctx context.Context, caseID string) ([]models.Finding, error) {
	query := `
		SELECT id, case_id, service, severity, status, title, finding,
			implication, action, savings_min_cents, savings_max_cents,
			citation, created_at
		FROM findings
		WHERE case_id = ?
		ORDER BY rowid
	`

	rows, err := r.db.QueryContext(ctx, query, caseID)
	if err != nil {
		r.logger.Error("Failed to get findings", zap.String("case_id", caseID), zap.Error(err))
		return nil, fmt.Errorf("failed to get findings: %w", err)
	}
	defer rows.Close()

	var findings []models.Finding
	for rows.Next() {
		var f models.Finding
		var service, severity, citation string
		var status sql.NullString
		var savingsMin, savingsMax sql.NullInt64

		err := rows.Scan(
			&f.ID,
			&f.CaseID,
			&service,
			&severity,
			&status,
			&f.Title,
			&f.Finding,
			&f.Implication,
			&f.Action,
			&savingsMin,
			&savingsMax,
			&citation,
			&f.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}

		f.Service = models.ServiceType(service)
		f.Severity = models.Severity(severity)
		if status.Valid {
			s := models.VerificationStatus(status.String)
			f.Status = &s
		}
		if savingsMin.Valid && savingsMax.Valid {
			f.SavingsPotential = &models.ImpactRange{
				MinCents: savingsMin.Int64,
				MaxCents: savingsMax.Int64,
			}
		}
		if err := json.Unmarshal([]byte(citation), &f.Citation); err != nil {
			return nil, fmt.Errorf("failed to unmarshal citation for finding %s: %w", f.ID, err)
		}

		findings = append(findings, f)
	}

	return findings, rows.Err()
}
