package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/billwatch/munibill/internal/models"
	"github.com/billwatch/munibill/internal/repository"
)

type stubAnalysis struct {
	analysis *models.BillAnalysis
	err      error
}

func (s *stubAnalysis) Analyze(_ context.Context, bill *models.ParsedBill) (*models.BillAnalysis, error) {
	if s.err != nil {
		return nil, s.err
	}
	a := *s.analysis
	a.AccountNumber = bill.AccountNumber
	return &a, nil
}

type stubFindings struct {
	findings []models.Finding
	err      error
}

func (s *stubFindings) GetByCaseID(context.Context, string) ([]models.Finding, error) {
	return s.findings, s.err
}

type stubTariffs struct {
	rule      *models.TariffRule
	created   *models.TariffRule
	verified  []string
	destroyed []string
}

func (s *stubTariffs) Create(_ context.Context, rule *models.TariffRule) error {
	s.created = rule
	return nil
}

func (s *stubTariffs) GetByID(context.Context, string) (*models.TariffRule, error) {
	return s.rule, nil
}

func (s *stubTariffs) MarkVerified(_ context.Context, id string) error {
	s.verified = append(s.verified, id)
	return nil
}

func (s *stubTariffs) Deactivate(_ context.Context, id string) error {
	s.destroyed = append(s.destroyed, id)
	return nil
}

type stubMissing struct {
	items    []repository.MissingTariff
	resolved []int64
}

func (s *stubMissing) ListOpen(context.Context) ([]repository.MissingTariff, error) {
	return s.items, nil
}

func (s *stubMissing) Resolve(_ context.Context, id int64) error {
	for _, item := range s.items {
		if item.ID == id {
			s.resolved = append(s.resolved, id)
			return nil
		}
	}
	return fmt.Errorf("missing tariff not found: %d", id)
}

func newTestServer(analysis AnalysisRunner, findings FindingReader, tariffs TariffAdmin, missing MissingTariffReader) *Server {
	logger := zap.NewNop()
	handlers := NewHandlers(analysis, findings, tariffs, missing, logger)
	return NewServer(ServerConfig{Host: "127.0.0.1", Port: 0}, handlers, logger)
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(&stubAnalysis{}, &stubFindings{}, &stubTariffs{}, &stubMissing{})

	w := doRequest(t, srv, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "munibill")
}

func TestAnalyzeBill(t *testing.T) {
	analysis := &stubAnalysis{analysis: &models.BillAnalysis{
		CaseID:         "case-1",
		Classification: models.ClassResidential,
	}}
	srv := newTestServer(analysis, &stubFindings{}, &stubTariffs{}, &stubMissing{})

	bill := models.ParsedBill{AccountNumber: "552401234567"}
	w := doRequest(t, srv, http.MethodPost, "/api/v1/analyses", bill)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool             `json:"success"`
		Data    AnalysisResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "case-1", resp.Data.Analysis.CaseID)
	assert.Equal(t, "552401234567", resp.Data.Analysis.AccountNumber)
	assert.Empty(t, resp.Data.Report)
}

func TestAnalyzeBillWithReport(t *testing.T) {
	analysis := &stubAnalysis{analysis: &models.BillAnalysis{
		CaseID:         "case-1",
		Classification: models.ClassResidential,
	}}
	srv := newTestServer(analysis, &stubFindings{}, &stubTariffs{}, &stubMissing{})

	w := doRequest(t, srv, http.MethodPost, "/api/v1/analyses?include_report=true", models.ParsedBill{})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "MUNICIPAL BILL ANALYSIS")
}

func TestAnalyzeBillInvalidPayload(t *testing.T) {
	srv := newTestServer(&stubAnalysis{}, &stubFindings{}, &stubTariffs{}, &stubMissing{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyzeBillServiceFailure(t *testing.T) {
	srv := newTestServer(&stubAnalysis{err: errors.New("disk full")}, &stubFindings{}, &stubTariffs{}, &stubMissing{})

	w := doRequest(t, srv, http.MethodPost, "/api/v1/analyses", models.ParsedBill{})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetCaseFindings(t *testing.T) {
	findings := &stubFindings{findings: []models.Finding{{
		ID:     "f-1",
		CaseID: "case-1",
		Title:  "Electricity charged on an estimated reading",
	}}}
	srv := newTestServer(&stubAnalysis{}, findings, &stubTariffs{}, &stubMissing{})

	w := doRequest(t, srv, http.MethodGet, "/api/v1/cases/case-1/findings", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "estimated reading")
}

func TestGetCaseFindingsEmptyCase(t *testing.T) {
	srv := newTestServer(&stubAnalysis{}, &stubFindings{}, &stubTariffs{}, &stubMissing{})

	w := doRequest(t, srv, http.MethodGet, "/api/v1/cases/nope/findings", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestCreateTariff(t *testing.T) {
	tariffs := &stubTariffs{}
	srv := newTestServer(&stubAnalysis{}, &stubFindings{}, tariffs, &stubMissing{})

	rate := decimal.RequireFromString("20.00")
	rule := models.TariffRule{
		Provider: "City of Johannesburg",
		Service:  models.ServiceWater,
		Pricing: models.PricingStructure{
			Kind:            models.PricingFlatRate,
			FlatRandPerUnit: &rate,
		},
		EffectiveDate: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		FinancialYear: "2025/26",
		Verified:      true, // must be reset on create
	}

	w := doRequest(t, srv, http.MethodPost, "/api/v1/tariffs", rule)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, tariffs.created)
	assert.NotEmpty(t, tariffs.created.ID)
	assert.False(t, tariffs.created.Verified)
	assert.True(t, tariffs.created.Active)
}

func TestCreateTariffInvalidPricing(t *testing.T) {
	srv := newTestServer(&stubAnalysis{}, &stubFindings{}, &stubTariffs{}, &stubMissing{})

	rule := models.TariffRule{
		Provider: "City of Johannesburg",
		Service:  models.ServiceWater,
		Pricing:  models.PricingStructure{Kind: models.PricingFlatRate},
	}

	w := doRequest(t, srv, http.MethodPost, "/api/v1/tariffs", rule)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid pricing")
}

func TestVerifyTariff(t *testing.T) {
	tariffs := &stubTariffs{rule: &models.TariffRule{ID: "r-1"}}
	srv := newTestServer(&stubAnalysis{}, &stubFindings{}, tariffs, &stubMissing{})

	w := doRequest(t, srv, http.MethodPost, "/api/v1/tariffs/r-1/verify", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"r-1"}, tariffs.verified)
}

func TestVerifyTariffNotFound(t *testing.T) {
	srv := newTestServer(&stubAnalysis{}, &stubFindings{}, &stubTariffs{}, &stubMissing{})

	w := doRequest(t, srv, http.MethodPost, "/api/v1/tariffs/nope/verify", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeactivateTariff(t *testing.T) {
	tariffs := &stubTariffs{rule: &models.TariffRule{ID: "r-1"}}
	srv := newTestServer(&stubAnalysis{}, &stubFindings{}, tariffs, &stubMissing{})

	w := doRequest(t, srv, http.MethodDelete, "/api/v1/tariffs/r-1", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"r-1"}, tariffs.destroyed)
}

func TestListMissingTariffs(t *testing.T) {
	missing := &stubMissing{items: []repository.MissingTariff{{
		Provider:      "City of Johannesburg",
		Service:       models.ServiceElectricity,
		FinancialYear: "2025/26",
		Occurrences:   4,
	}}}
	srv := newTestServer(&stubAnalysis{}, &stubFindings{}, &stubTariffs{}, missing)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/missing-tariffs", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "electricity")
	assert.Contains(t, w.Body.String(), "2025/26")
}

func TestListMissingTariffsEmpty(t *testing.T) {
	srv := newTestServer(&stubAnalysis{}, &stubFindings{}, &stubTariffs{}, &stubMissing{})

	w := doRequest(t, srv, http.MethodGet, "/api/v1/missing-tariffs", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestResolveMissingTariff(t *testing.T) {
	missing := &stubMissing{items: []repository.MissingTariff{{ID: 7}}}
	srv := newTestServer(&stubAnalysis{}, &stubFindings{}, &stubTariffs{}, missing)

	w := doRequest(t, srv, http.MethodDelete, "/api/v1/missing-tariffs/7", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{7}, missing.resolved)
}

func TestResolveMissingTariffNotFound(t *testing.T) {
	srv := newTestServer(&stubAnalysis{}, &stubFindings{}, &stubTariffs{}, &stubMissing{})

	w := doRequest(t, srv, http.MethodDelete, "/api/v1/missing-tariffs/99", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResolveMissingTariffBadID(t *testing.T) {
	srv := newTestServer(&stubAnalysis{}, &stubFindings{}, &stubTariffs{}, &stubMissing{})

	w := doRequest(t, srv, http.MethodDelete, "/api/v1/missing-tariffs/abc", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
