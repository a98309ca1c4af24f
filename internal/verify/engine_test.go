package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/billwatch/munibill/internal/models"
)

const testProvider = "City of Johannesburg"

// fixtureStore serves rules keyed the way the SQLite store does: by provider,
// service and financial year. It lets a test exercise the wrong-year path
// without a second provider.
type fixtureStore struct {
	rules []models.TariffRule
	err   error
}

func (s *fixtureStore) FindActiveRules(_ context.Context, provider string, service models.ServiceType, financialYear string, _ time.Time) ([]models.TariffRule, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.TariffRule
	for _, r := range s.rules {
		if r.Provider == provider && r.Service == service && r.FinancialYear == financialYear {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestEngine(store RuleStore) *Engine {
	return NewEngine(store, testProvider, zap.NewNop())
}

func flatRule(id string, service models.ServiceType, randPerUnit string) models.TariffRule {
	return models.TariffRule{
		ID:       id,
		Provider: testProvider,
		Service:  service,
		Pricing: models.PricingStructure{
			Kind:            models.PricingFlatRate,
			FlatRandPerUnit: dec(randPerUnit),
		},
		EffectiveDate:        time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		FinancialYear:        "2025/26",
		SourceDocRef:         "coj-tariffs-2025-26.pdf",
		SourceExcerpt:        "Schedule of approved tariffs",
		ExtractionConfidence: 0.95,
		Verified:             true,
		Active:               true,
	}
}

var midYear = time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)

func TestVerifyLineItemVerified(t *testing.T) {
	store := &fixtureStore{rules: []models.TariffRule{flatRule("r1", models.ServiceWater, "20.00")}}
	item := models.LineItem{
		Service:     models.ServiceWater,
		Description: "Water consumption",
		Quantity:    f64(15),
		AmountCents: 30_000, // exactly 15 kL * R20.00
	}

	result := newTestEngine(store).VerifyLineItem(context.Background(), &item, nil, models.CategoryResidential, midYear)

	assert.Equal(t, models.StatusVerified, result.Status)
	assert.Equal(t, "r1", result.RuleID)
	assert.Equal(t, int64(30_000), result.ComputedCents)
	assert.InDelta(t, 0.95, result.Confidence, 1e-9)
	assert.True(t, result.Citation.HasSource)
	assert.Equal(t, "coj-tariffs-2025-26.pdf", result.Citation.DocumentRef)
	assert.Nil(t, result.Impact)
}

func TestVerifyLineItemWithinTolerance(t *testing.T) {
	store := &fixtureStore{rules: []models.TariffRule{flatRule("r1", models.ServiceWater, "20.00")}}
	engine := newTestEngine(store)

	// 1% of the billed amount, and the R1 floor on small charges.
	tests := []struct {
		name   string
		billed int64
		want   models.VerificationStatus
	}{
		{"just inside 1%", 30_295, models.StatusVerified},    // diff 295 <= tol 302
		{"just outside 1%", 30_400, models.StatusLikelyWrong}, // diff 400 > tol 304
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := models.LineItem{
				Service:     models.ServiceWater,
				Quantity:    f64(15),
				AmountCents: tt.billed,
			}
			result := engine.VerifyLineItem(context.Background(), &item, nil, models.CategoryResidential, midYear)
			assert.Equal(t, tt.want, result.Status)
		})
	}
}

func TestVerifyLineItemRandFloorOnSmallCharges(t *testing.T) {
	// 1% of a R50 charge is 50c; the tolerance floor keeps it at R1.
	store := &fixtureStore{rules: []models.TariffRule{flatRule("r1", models.ServiceWater, "10.00")}}
	item := models.LineItem{
		Service:     models.ServiceWater,
		Quantity:    f64(5),
		AmountCents: 5_090, // expected 5,000, diff 90 < 100
	}

	result := newTestEngine(store).VerifyLineItem(context.Background(), &item, nil, models.CategoryResidential, midYear)

	assert.Equal(t, models.StatusVerified, result.Status)
}

func TestVerifyLineItemLikelyWrongImpactRange(t *testing.T) {
	store := &fixtureStore{rules: []models.TariffRule{flatRule("r1", models.ServiceWater, "20.00")}}
	item := models.LineItem{
		Service:     models.ServiceWater,
		Quantity:    f64(15),
		AmountCents: 35_000, // expected 30,000
	}

	result := newTestEngine(store).VerifyLineItem(context.Background(), &item, nil, models.CategoryResidential, midYear)

	assert.Equal(t, models.StatusLikelyWrong, result.Status)
	require.NotNil(t, result.Impact)
	// diff 5,000, tolerance 350 (1% of billed)
	assert.Equal(t, int64(4_650), result.Impact.MinCents)
	assert.Equal(t, int64(5_000), result.Impact.MaxCents)
}

func TestVerifyLineItemMissingRule(t *testing.T) {
	store := &fixtureStore{}
	item := models.LineItem{Service: models.ServiceElectricity, AmountCents: 120_000}

	result := newTestEngine(store).VerifyLineItem(context.Background(), &item, nil, models.CategoryResidential, midYear)

	assert.Equal(t, models.StatusCannotVerify, result.Status)
	require.NotNil(t, result.MissingRule)
	assert.Equal(t, testProvider, result.MissingRule.Provider)
	assert.Equal(t, models.ServiceElectricity, result.MissingRule.Service)
	assert.Equal(t, "2025/26", result.MissingRule.FinancialYear)
	assert.False(t, result.Citation.HasSource)
	assert.Contains(t, result.Citation.NoSourceReason, "electricity")
	assert.Contains(t, result.Citation.NoSourceReason, "2025/26")
}

func TestVerifyLineItemWrongFinancialYear(t *testing.T) {
	// Only a 2024/25 rule exists; a bill dated in 2025/26 must not match it.
	rule := flatRule("r-old", models.ServiceWater, "20.00")
	rule.FinancialYear = "2024/25"
	rule.EffectiveDate = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	store := &fixtureStore{rules: []models.TariffRule{rule}}

	item := models.LineItem{Service: models.ServiceWater, Quantity: f64(15), AmountCents: 30_000}
	result := newTestEngine(store).VerifyLineItem(context.Background(), &item, nil, models.CategoryResidential, midYear)

	assert.Equal(t, models.StatusCannotVerify, result.Status)
	require.NotNil(t, result.MissingRule)
}

func TestVerifyLineItemCategoryDisambiguation(t *testing.T) {
	res := flatRule("r-res", models.ServiceWater, "20.00")
	res.Category = models.CategoryResidential
	bus := flatRule("r-bus", models.ServiceWater, "35.00")
	bus.Category = models.CategoryBusiness
	store := &fixtureStore{rules: []models.TariffRule{res, bus}}

	item := models.LineItem{Service: models.ServiceWater, Quantity: f64(10), AmountCents: 35_000}
	result := newTestEngine(store).VerifyLineItem(context.Background(), &item, nil, models.CategoryBusiness, midYear)

	assert.Equal(t, models.StatusVerified, result.Status)
	assert.Equal(t, "r-bus", result.RuleID)
}

func TestVerifyLineItemTariffCodeDisambiguation(t *testing.T) {
	a := flatRule("r-a", models.ServiceWater, "20.00")
	a.TariffCode = "WTR-01"
	b := flatRule("r-b", models.ServiceWater, "35.00")
	b.TariffCode = "WTR-02"
	store := &fixtureStore{rules: []models.TariffRule{a, b}}

	item := models.LineItem{
		Service:     models.ServiceWater,
		TariffCode:  "WTR-02",
		Quantity:    f64(10),
		AmountCents: 35_000,
	}
	result := newTestEngine(store).VerifyLineItem(context.Background(), &item, nil, models.CategoryAny, midYear)

	assert.Equal(t, models.StatusVerified, result.Status)
	assert.Equal(t, "r-b", result.RuleID)
}

func TestVerifyLineItemAmbiguousMatch(t *testing.T) {
	store := &fixtureStore{rules: []models.TariffRule{
		flatRule("r-a", models.ServiceWater, "20.00"),
		flatRule("r-b", models.ServiceWater, "35.00"),
	}}

	item := models.LineItem{Service: models.ServiceWater, Quantity: f64(10), AmountCents: 20_000}
	result := newTestEngine(store).VerifyLineItem(context.Background(), &item, nil, models.CategoryAny, midYear)

	assert.Equal(t, models.StatusCannotVerify, result.Status)
	assert.Nil(t, result.MissingRule)
	assert.Contains(t, result.Citation.NoSourceReason, "ambiguous")
}

func TestVerifyLineItemSkipsMalformedRule(t *testing.T) {
	broken := flatRule("r-broken", models.ServiceWater, "20.00")
	broken.Pricing.FlatRandPerUnit = nil
	good := flatRule("r-good", models.ServiceWater, "20.00")
	store := &fixtureStore{rules: []models.TariffRule{broken, good}}

	item := models.LineItem{Service: models.ServiceWater, Quantity: f64(15), AmountCents: 30_000}
	result := newTestEngine(store).VerifyLineItem(context.Background(), &item, nil, models.CategoryResidential, midYear)

	assert.Equal(t, models.StatusVerified, result.Status)
	assert.Equal(t, "r-good", result.RuleID)
}

func TestVerifyLineItemOnlyMalformedRules(t *testing.T) {
	broken := flatRule("r-broken", models.ServiceWater, "20.00")
	broken.Pricing.FlatRandPerUnit = nil
	store := &fixtureStore{rules: []models.TariffRule{broken}}

	item := models.LineItem{Service: models.ServiceWater, Quantity: f64(15), AmountCents: 30_000}
	result := newTestEngine(store).VerifyLineItem(context.Background(), &item, nil, models.CategoryResidential, midYear)

	// A rule the engine cannot price is as good as no rule at all.
	assert.Equal(t, models.StatusCannotVerify, result.Status)
	require.NotNil(t, result.MissingRule)
}

func TestVerifyLineItemMissingQuantity(t *testing.T) {
	store := &fixtureStore{rules: []models.TariffRule{flatRule("r1", models.ServiceWater, "20.00")}}
	item := models.LineItem{Service: models.ServiceWater, AmountCents: 30_000}

	result := newTestEngine(store).VerifyLineItem(context.Background(), &item, nil, models.CategoryResidential, midYear)

	assert.Equal(t, models.StatusCannotVerify, result.Status)
	assert.Nil(t, result.MissingRule)
	assert.Contains(t, result.Citation.NoSourceReason, "r1")
}

func TestVerifyLineItemUnverifiedRuleConfidence(t *testing.T) {
	rule := flatRule("r1", models.ServiceWater, "20.00")
	rule.Verified = false
	store := &fixtureStore{rules: []models.TariffRule{rule}}

	item := models.LineItem{Service: models.ServiceWater, Quantity: f64(15), AmountCents: 30_000}
	result := newTestEngine(store).VerifyLineItem(context.Background(), &item, nil, models.CategoryResidential, midYear)

	assert.InDelta(t, 0.95*0.8, result.Confidence, 1e-9)
}

func TestVerifyLineItemStoreFailure(t *testing.T) {
	store := &fixtureStore{err: errors.New("database is locked")}
	item := models.LineItem{Service: models.ServiceWater, Quantity: f64(15), AmountCents: 30_000}

	result := newTestEngine(store).VerifyLineItem(context.Background(), &item, nil, models.CategoryResidential, midYear)

	assert.Equal(t, models.StatusCannotVerify, result.Status)
	assert.Contains(t, result.Citation.NoSourceReason, "unavailable")
}

func TestVerifyLineItemIsIdempotent(t *testing.T) {
	store := &fixtureStore{rules: []models.TariffRule{flatRule("r1", models.ServiceWater, "20.00")}}
	engine := newTestEngine(store)
	item := models.LineItem{Service: models.ServiceWater, Quantity: f64(15), AmountCents: 35_000}

	first := engine.VerifyLineItem(context.Background(), &item, nil, models.CategoryResidential, midYear)
	second := engine.VerifyLineItem(context.Background(), &item, nil, models.CategoryResidential, midYear)

	assert.Equal(t, first, second)
}

func TestVerifyBillSkipsSundryCharges(t *testing.T) {
	store := &fixtureStore{rules: []models.TariffRule{flatRule("r1", models.ServiceWater, "20.00")}}
	bill := models.ParsedBill{
		LineItems: []models.LineItem{
			{Service: models.ServiceWater, Quantity: f64(15), AmountCents: 30_000},
			{Service: models.ServiceSundry, Description: "Valuation objection fee", AmountCents: 5_000},
			{Service: models.ServiceOther, AmountCents: 1_000},
		},
	}

	results := newTestEngine(store).VerifyBill(context.Background(), &bill, models.CategoryResidential, midYear)

	require.Len(t, results, 1)
	assert.Equal(t, models.ServiceWater, results[0].Service)
}

func TestVerifyBillEmptyBill(t *testing.T) {
	bill := models.ParsedBill{}
	results := newTestEngine(&fixtureStore{}).VerifyBill(context.Background(), &bill, models.CategoryAny, midYear)
	assert.Empty(t, results)
}

func TestVerifyLineItemBandedElectricity(t *testing.T) {
	rule := models.TariffRule{
		ID:       "r-elec",
		Provider: testProvider,
		Service:  models.ServiceElectricity,
		Pricing: models.PricingStructure{
			Kind:  models.PricingEnergyBands,
			Bands: domesticEnergyBands(),
		},
		VATRate:              decimal.RequireFromString("0.15"),
		EffectiveDate:        time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		FinancialYear:        "2025/26",
		SourceDocRef:         "coj-tariffs-2025-26.pdf",
		ExtractionConfidence: 1.0,
		Verified:             true,
		Active:               true,
	}
	store := &fixtureStore{rules: []models.TariffRule{rule}}

	// 420 kWh: 98,222c before VAT, 112,955c after 15%.
	item := models.LineItem{
		Service:     models.ServiceElectricity,
		Quantity:    f64(420),
		AmountCents: 112_955,
	}
	result := newTestEngine(store).VerifyLineItem(context.Background(), &item, nil, models.CategoryResidential, midYear)

	assert.Equal(t, models.StatusVerified, result.Status)
	assert.Equal(t, int64(112_955), result.ComputedCents)
}
