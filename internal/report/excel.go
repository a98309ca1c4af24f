package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/billwatch/munibill/internal/models"
)

// WorkbookExporter writes an analysis to an Excel workbook for operators who
// review findings outside the API.
type WorkbookExporter struct {
	logger *zap.Logger
}

// NewWorkbookExporter creates a new workbook exporter.
func NewWorkbookExporter(logger *zap.Logger) *WorkbookExporter {
	return &WorkbookExporter{logger: logger}
}

// Export writes the analysis to outputPath as a two-sheet workbook:
// "Findings" with one row per insight and "Verification" with one row per
// checked charge.
func (we *WorkbookExporter) Export(analysis *models.BillAnalysis, outputPath string) error {
	we.logger.Info("Exporting analysis workbook",
		zap.String("case_id", analysis.CaseID),
		zap.String("output_path", outputPath))

	f := excelize.NewFile()
	defer f.Close()

	const findingsSheet = "Findings"
	if err := f.SetSheetName("Sheet1", findingsSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	findingHeaders := []string{"Service", "Severity", "Title", "Finding", "Implication", "Action", "Saving min (R)", "Saving max (R)"}
	for col, h := range findingHeaders {
		we.setCell(f, findingsSheet, cellRef(col, 1), h)
	}
	for i, in := range analysis.Insights {
		row := i + 2
		we.setCell(f, findingsSheet, cellRef(0, row), string(in.Service))
		we.setCell(f, findingsSheet, cellRef(1, row), string(in.Severity))
		we.setCell(f, findingsSheet, cellRef(2, row), in.Title)
		we.setCell(f, findingsSheet, cellRef(3, row), in.Finding)
		we.setCell(f, findingsSheet, cellRef(4, row), in.Implication)
		we.setCell(f, findingsSheet, cellRef(5, row), in.Action)
		if in.SavingsPotential != nil {
			we.setCell(f, findingsSheet, cellRef(6, row), centsToRand(in.SavingsPotential.MinCents))
			we.setCell(f, findingsSheet, cellRef(7, row), centsToRand(in.SavingsPotential.MaxCents))
		}
	}

	const verifySheet = "Verification"
	if _, err := f.NewSheet(verifySheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	verifyHeaders := []string{"Service", "Description", "Status", "Billed (R)", "Computed (R)", "Confidence", "Rule", "Source"}
	for col, h := range verifyHeaders {
		we.setCell(f, verifySheet, cellRef(col, 1), h)
	}
	for i, v := range analysis.Verifications {
		row := i + 2
		we.setCell(f, verifySheet, cellRef(0, row), string(v.Service))
		we.setCell(f, verifySheet, cellRef(1, row), v.Description)
		we.setCell(f, verifySheet, cellRef(2, row), string(v.Status))
		we.setCell(f, verifySheet, cellRef(3, row), centsToRand(v.BilledCents))
		if v.Status != models.StatusCannotVerify {
			we.setCell(f, verifySheet, cellRef(4, row), centsToRand(v.ComputedCents))
			we.setCell(f, verifySheet, cellRef(5, row), v.Confidence)
		}
		we.setCell(f, verifySheet, cellRef(6, row), v.RuleID)
		we.setCell(f, verifySheet, cellRef(7, row), citationLine(v.Citation))
	}

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	we.logger.Info("Analysis workbook written",
		zap.Int("insights", len(analysis.Insights)),
		zap.Int("verifications", len(analysis.Verifications)))

	return nil
}

// setCell sets a cell value, logging rather than failing on a bad reference.
func (we *WorkbookExporter) setCell(f *excelize.File, sheet, cell string, value interface{}) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		we.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

// cellRef builds an A1-style reference from a zero-based column and a
// one-based row.
func cellRef(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return fmt.Sprintf("A%d", row)
	}
	return name
}

func centsToRand(cents int64) float64 {
	return float64(cents) / 100
}
