// Package textscan provides named text-marker predicates over raw statement
// text. Statement layouts shift between municipal billing system releases,
// so every pattern the analyzers depend on lives here under a stable marker
// ID instead of being hard-coded inline.
package textscan

import (
	"regexp"
	"strconv"
)

// MarkerID names a recognizable pattern in statement text.
type MarkerID string

// Boolean markers.
const (
	MarkerBusinessRates     MarkerID = "business_rates"
	MarkerResidentialRates  MarkerID = "residential_rates"
	MarkerRatesRebate       MarkerID = "rates_rebate"
	MarkerEstimatedReading  MarkerID = "estimated_reading"
	MarkerInterestOnArrears MarkerID = "interest_on_arrears"
	MarkerSewerStandSize    MarkerID = "sewer_stand_size"
	MarkerSewerLivingUnits  MarkerID = "sewer_living_units"
)

// Numeric markers. The first capture group must be the number.
const (
	MarkerBillingDays MarkerID = "billing_days"
	MarkerBinCount    MarkerID = "bin_count"
	MarkerRateUsed    MarkerID = "rate_used"
)

var boolMarkers = map[MarkerID]*regexp.Regexp{
	MarkerBusinessRates:     regexp.MustCompile(`(?i)rates\s*[-:]?\s*business|business\s*&?\s*commercial\s+rates?`),
	MarkerResidentialRates:  regexp.MustCompile(`(?i)rates\s*[-:]?\s*residential|residential\s+rates?`),
	MarkerRatesRebate:       regexp.MustCompile(`(?i)less\s+rates\s+on\s+first\s+R?\s*300`),
	MarkerEstimatedReading:  regexp.MustCompile(`(?i)type:\s*estimated`),
	MarkerInterestOnArrears: regexp.MustCompile(`(?i)interest\s+on\s+arrears`),
	MarkerSewerStandSize:    regexp.MustCompile(`(?i)based\s+on\s+stand\s+size`),
	MarkerSewerLivingUnits:  regexp.MustCompile(`(?i)per\s+living\s+unit`),
}

var numberMarkers = map[MarkerID]*regexp.Regexp{
	MarkerBillingDays: regexp.MustCompile(`(?i)reading\s+period[^=\n]*=\s*(\d+)\s*days`),
	MarkerBinCount:    regexp.MustCompile(`(?i)(\d+)\s*-\s*bin`),
	MarkerRateUsed:    regexp.MustCompile(`(?i)rate\s+used[^0-9]*([0-9]+\.[0-9]+)`),
}

// HasMarker reports whether the raw text contains the given marker. Unknown
// marker IDs report false rather than failing: absence of a pattern is a
// valid outcome for every caller.
func HasMarker(raw string, id MarkerID) bool {
	re, ok := boolMarkers[id]
	if !ok {
		return false
	}
	return re.MatchString(raw)
}

// ExtractNumber returns the numeric value captured by the given marker and
// whether it was found.
func ExtractNumber(raw string, id MarkerID) (float64, bool) {
	re, ok := numberMarkers[id]
	if !ok {
		return 0, false
	}
	m := re.FindStringSubmatch(raw)
	if len(m) < 2 {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// KnownMarkers enumerates every registered marker ID, boolean first. The set
// is fixed at build time; tests use it to assert the registry stays closed.
func KnownMarkers() []MarkerID {
	ids := make([]MarkerID, 0, len(boolMarkers)+len(numberMarkers))
	for id := range boolMarkers {
		ids = append(ids, id)
	}
	for id := range numberMarkers {
		ids = append(ids, id)
	}
	return ids
}
