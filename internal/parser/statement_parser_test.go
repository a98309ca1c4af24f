package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/billwatch/munibill/internal/models"
)

const sampleStatement = `CITY OF JOHANNESBURG
Account Number: 552401234567
Statement Date: 2025/08/01
Due Date: 2025/08/25

Property: 12 Main Road, Kensington
Stand Size: 495 sqm
Market Value: R 850,000
Number of Living Units: 1

Balance Brought Forward: R 1,240.55
Reading period 2025/06/28 to 2025/07/28 = 30 days

Electricity consumption 450 kWh Tariff: ELE-02 1,178.23
Water consumption 28 kl Tariff: WTR-01 560.00
Sewer charge based on stand size 380.00
Refuse removal 1-bin service 250.00
Assessment rates 677.58

Current Charges: R 3,045.81
VAT @ 15%: R 318.47
Total Due: R 4,286.36`

func newParser(t *testing.T) *StatementParser {
	t.Helper()
	return NewStatementParser(zap.NewNop())
}

func TestParseStatementHeader(t *testing.T) {
	bill := newParser(t).Parse(sampleStatement)

	assert.Equal(t, "552401234567", bill.AccountNumber)
	require.NotNil(t, bill.BillDate)
	assert.Equal(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), *bill.BillDate)
	require.NotNil(t, bill.DueDate)
	assert.Equal(t, time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC), *bill.DueDate)
	require.NotNil(t, bill.PeriodStart)
	require.NotNil(t, bill.PeriodEnd)

	days, ok := bill.BillingDays()
	require.True(t, ok)
	assert.Equal(t, 30, days)
}

func TestParseStatementTotals(t *testing.T) {
	bill := newParser(t).Parse(sampleStatement)

	assert.Equal(t, int64(428_636), bill.TotalDueCents)
	assert.Equal(t, int64(124_055), bill.PreviousBalanceCents)
	assert.Equal(t, int64(304_581), bill.CurrentChargesCents)
	assert.Equal(t, int64(31_847), bill.VATCents)
}

func TestParseStatementProperty(t *testing.T) {
	bill := newParser(t).Parse(sampleStatement)

	require.NotNil(t, bill.Property)
	assert.Equal(t, float64(495), bill.Property.StandSizeSqm)
	assert.Equal(t, int64(85_000_000), bill.Property.MunicipalValuationCents)
	assert.Equal(t, 1, bill.Property.UnitCount)
}

func TestParseStatementLineItems(t *testing.T) {
	bill := newParser(t).Parse(sampleStatement)

	require.Len(t, bill.LineItems, 5)

	elec := bill.FindLineItem(models.ServiceElectricity)
	require.NotNil(t, elec)
	assert.Equal(t, int64(117_823), elec.AmountCents)
	require.NotNil(t, elec.Quantity)
	assert.Equal(t, float64(450), *elec.Quantity)
	assert.Equal(t, "ELE-02", elec.TariffCode)
	assert.False(t, elec.IsEstimated)

	water := bill.FindLineItem(models.ServiceWater)
	require.NotNil(t, water)
	assert.Equal(t, int64(56_000), water.AmountCents)
	require.NotNil(t, water.Quantity)
	assert.Equal(t, float64(28), *water.Quantity)

	sewer := bill.FindLineItem(models.ServiceSewerage)
	require.NotNil(t, sewer)
	assert.Equal(t, int64(38_000), sewer.AmountCents)

	refuse := bill.FindLineItem(models.ServiceRefuse)
	require.NotNil(t, refuse)

	rates := bill.FindLineItem(models.ServiceRates)
	require.NotNil(t, rates)
	assert.Equal(t, int64(67_758), rates.AmountCents)
}

func TestParseStatementEstimatedReading(t *testing.T) {
	text := "Account Number: 552401234567\nElectricity consumption 450 kWh Type: Estimated 1,178.23"

	bill := newParser(t).Parse(text)

	elec := bill.FindLineItem(models.ServiceElectricity)
	require.NotNil(t, elec)
	assert.True(t, elec.IsEstimated)
}

func TestParseStatementSewerBeforeWaterKeyword(t *testing.T) {
	// Johannesburg Water bills sewerage; the row must not classify as water.
	text := "Johannesburg Water sewer charge per living unit 960.00"

	bill := newParser(t).Parse(text)

	require.Len(t, bill.LineItems, 1)
	assert.Equal(t, models.ServiceSewerage, bill.LineItems[0].Service)
}

func TestParseStatementPartialText(t *testing.T) {
	bill := newParser(t).Parse("COPY OF STATEMENT\nno recognizable fields here")

	assert.Empty(t, bill.AccountNumber)
	assert.Nil(t, bill.BillDate)
	assert.Nil(t, bill.Property)
	assert.Empty(t, bill.LineItems)
	assert.Equal(t, "COPY OF STATEMENT\nno recognizable fields here", bill.RawText)
}

func TestParseStatementEmptyText(t *testing.T) {
	bill := newParser(t).Parse("")

	assert.NotNil(t, bill)
	assert.Empty(t, bill.LineItems)
}

func TestParseRandToCents(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"R 1,234.56", 123_456, true},
		{"1178.23", 117_823, true},
		{"-R 50.00", -5_000, true},
		{"R850,000.00", 85_000_000, true},
		{"not money", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseRandToCents(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
