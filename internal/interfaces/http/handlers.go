package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/billwatch/munibill/internal/models"
	"github.com/billwatch/munibill/internal/report"
	"github.com/billwatch/munibill/internal/repository"
)

// AnalysisRunner runs the analysis pipeline for one bill.
type AnalysisRunner interface {
	Analyze(ctx context.Context, bill *models.ParsedBill) (*models.BillAnalysis, error)
}

// FindingReader reads persisted findings.
type FindingReader interface {
	GetByCaseID(ctx context.Context, caseID string) ([]models.Finding, error)
}

// TariffAdmin is the tariff-rule write surface exposed to operators.
type TariffAdmin interface {
	Create(ctx context.Context, rule *models.TariffRule) error
	GetByID(ctx context.Context, id string) (*models.TariffRule, error)
	MarkVerified(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
}

// MissingTariffReader reads and closes missing-tariff work items.
type MissingTariffReader interface {
	ListOpen(ctx context.Context) ([]repository.MissingTariff, error)
	Resolve(ctx context.Context, id int64) error
}

// Handlers contains all HTTP request handlers.
type Handlers struct {
	analysis AnalysisRunner
	findings FindingReader
	tariffs  TariffAdmin
	missing  MissingTariffReader
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	analysis AnalysisRunner,
	findings FindingReader,
	tariffs TariffAdmin,
	missing MissingTariffReader,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		analysis: analysis,
		findings: findings,
		tariffs:  tariffs,
		missing:  missing,
		logger:   logger,
	}
}

// Response is the standard JSON envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// AnalysisResponse wraps an analysis, optionally with the rendered report.
type AnalysisResponse struct {
	Analysis *models.BillAnalysis `json:"analysis"`
	Report   string               `json:"report,omitempty"`
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "munibill",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// AnalyzeBill handles POST /api/v1/analyses. The body is a ParsedBill; the
// response carries the full BillAnalysis, plus the plain-text report when
// ?include_report=true.
func (h *Handlers) AnalyzeBill(c *gin.Context) {
	var bill models.ParsedBill
	if err := c.ShouldBindJSON(&bill); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid bill payload: " + err.Error(),
		})
		return
	}

	analysis, err := h.analysis.Analyze(c.Request.Context(), &bill)
	if err != nil {
		h.logger.Error("Analysis failed", zap.String("account", bill.AccountNumber), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "analysis failed",
		})
		return
	}

	resp := AnalysisResponse{Analysis: analysis}
	if c.Query("include_report") == "true" {
		resp.Report = report.BuildReport(analysis)
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: resp})
}

// GetCaseFindings handles GET /api/v1/cases/:id/findings.
func (h *Handlers) GetCaseFindings(c *gin.Context) {
	caseID := c.Param("id")

	findings, err := h.findings.GetByCaseID(c.Request.Context(), caseID)
	if err != nil {
		h.logger.Error("Failed to load findings", zap.String("case_id", caseID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to load findings",
		})
		return
	}
	if findings == nil {
		findings = []models.Finding{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: findings})
}

// CreateTariff handles POST /api/v1/tariffs. New rules always enter the
// store unverified and active; verification is a separate admin step.
func (h *Handlers) CreateTariff(c *gin.Context) {
	var rule models.TariffRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid tariff payload: " + err.Error(),
		})
		return
	}

	if err := rule.Pricing.ValidatePricing(); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid pricing: " + err.Error(),
		})
		return
	}

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.Verified = false
	rule.Active = true

	if err := h.tariffs.Create(c.Request.Context(), &rule); err != nil {
		h.logger.Error("Failed to create tariff rule", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to create tariff rule",
		})
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: rule})
}

// VerifyTariff handles POST /api/v1/tariffs/:id/verify.
func (h *Handlers) VerifyTariff(c *gin.Context) {
	id := c.Param("id")

	rule, err := h.tariffs.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to load tariff rule"})
		return
	}
	if rule == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "tariff rule not found"})
		return
	}

	if err := h.tariffs.MarkVerified(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to verify tariff rule", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to verify tariff rule"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// DeactivateTariff handles DELETE /api/v1/tariffs/:id.
func (h *Handlers) DeactivateTariff(c *gin.Context) {
	id := c.Param("id")

	rule, err := h.tariffs.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to load tariff rule"})
		return
	}
	if rule == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "tariff rule not found"})
		return
	}

	if err := h.tariffs.Deactivate(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to deactivate tariff rule", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to deactivate tariff rule"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// ListMissingTariffs handles GET /api/v1/missing-tariffs.
func (h *Handlers) ListMissingTariffs(c *gin.Context) {
	items, err := h.missing.ListOpen(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list missing tariffs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to list missing tariffs",
		})
		return
	}
	if items == nil {
		items = []repository.MissingTariff{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: items})
}

// ResolveMissingTariff handles DELETE /api/v1/missing-tariffs/:id, closing a
// work item once the tariff has been captured.
func (h *Handlers) ResolveMissingTariff(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid work item id"})
		return
	}

	if err := h.missing.Resolve(c.Request.Context(), id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, Response{Success: false, Error: "work item not found"})
			return
		}
		h.logger.Error("Failed to resolve missing tariff", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to resolve work item"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}
