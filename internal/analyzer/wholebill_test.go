package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billwatch/munibill/internal/models"
)

func TestWholeBillArrears(t *testing.T) {
	tests := []struct {
		name            string
		previousBalance int64
		flagged         bool
	}{
		{"R150,000 arrears flagged critical", 15_000_000, true},
		{"R50,000 arrears not flagged", 5_000_000, false},
		{"exactly R100,000 not flagged", 10_000_000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bill := models.ParsedBill{PreviousBalanceCents: tt.previousBalance}
			insights := WholeBillAnalyzer{}.Analyze(&bill, models.ClassResidential)

			if tt.flagged {
				require.Len(t, insights, 1)
				assert.Equal(t, models.SeverityCritical, insights[0].Severity)
				assert.Contains(t, insights[0].Title, "arrears")
			} else {
				assert.Empty(t, insights)
			}
		})
	}
}

func TestWholeBillInterestOnArrears(t *testing.T) {
	bill := models.ParsedBill{RawText: "INTEREST ON ARREARS 125.10"}

	insights := WholeBillAnalyzer{}.Analyze(&bill, models.ClassResidential)

	require.Len(t, insights, 1)
	assert.Equal(t, models.SeverityAttention, insights[0].Severity)
}

func TestWholeBillBothConditions(t *testing.T) {
	bill := models.ParsedBill{
		PreviousBalanceCents: 20_000_000,
		RawText:              "INTEREST ON ARREARS 3250.00",
	}

	insights := WholeBillAnalyzer{}.Analyze(&bill, models.ClassBusiness)

	require.Len(t, insights, 2)
	assert.Equal(t, models.SeverityCritical, insights[0].Severity)
	assert.Equal(t, models.SeverityAttention, insights[1].Severity)
}

func TestWholeBillCleanAccount(t *testing.T) {
	bill := models.ParsedBill{PreviousBalanceCents: 0, RawText: "all paid up"}
	assert.Empty(t, WholeBillAnalyzer{}.Analyze(&bill, models.ClassResidential))
}
