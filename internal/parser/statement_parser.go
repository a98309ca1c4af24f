package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/billwatch/munibill/internal/models"
)

// Statement header and property patterns. City of Johannesburg statements
// are machine-generated, so the labels are stable across layouts even when
// column positions move.
var (
	accountPattern    = regexp.MustCompile(`(?i)account\s+(?:no|number)[.:]?\s*(\d{8,14})`)
	billDatePattern   = regexp.MustCompile(`(?i)statement\s+date[.:]?\s*(\d{4}/\d{2}/\d{2})`)
	dueDatePattern    = regexp.MustCompile(`(?i)due\s+date[.:]?\s*(\d{4}/\d{2}/\d{2})`)
	periodPattern     = regexp.MustCompile(`(?i)reading\s+period[.:]?\s*(\d{4}/\d{2}/\d{2})\s*(?:to|-)\s*(\d{4}/\d{2}/\d{2})`)
	totalDuePattern   = regexp.MustCompile(`(?i)total\s+due[.:]?\s*(-?R?\s*[\d,]+\.\d{2})`)
	broughtFwdPattern = regexp.MustCompile(`(?i)balance\s+brought\s+forward[.:]?\s*(-?R?\s*[\d,]+\.\d{2})`)
	currentPattern    = regexp.MustCompile(`(?i)current\s+charges[.:]?\s*(-?R?\s*[\d,]+\.\d{2})`)
	vatPattern        = regexp.MustCompile(`(?i)vat\s+(?:@\s*[\d.]+%\s*)?[.:]?\s*(-?R?\s*[\d,]+\.\d{2})`)

	standSizePattern = regexp.MustCompile(`(?i)(?:stand|erf)\s+size[.:]?\s*([\d,]+)\s*(?:sqm|m2|m²)?`)
	valuationPattern = regexp.MustCompile(`(?i)(?:market|municipal)\s+valu(?:e|ation)[.:]?\s*R?\s*([\d,]+)`)
	unitCountPattern = regexp.MustCompile(`(?i)(?:number\s+of\s+)?(?:living\s+)?units[.:]?\s*(\d+)`)

	// Charge rows carry a trailing rand amount; quantities and tariff codes
	// appear inline when present.
	amountTailPattern = regexp.MustCompile(`(-?R?\s*[\d,]+\.\d{2})\s*$`)
	quantityPattern   = regexp.MustCompile(`(?i)([\d,]+(?:\.\d+)?)\s*(kwh|kl)`)
	tariffCodePattern = regexp.MustCompile(`(?i)tariff[.:]?\s*([A-Z]{2,4}-?\d{1,3})`)
)

// serviceKeywords maps charge-row wording to a service type. Order matters:
// sewerage wording often also contains "water" (Johannesburg Water bills
// both), so the more specific keywords come first.
var serviceKeywords = []struct {
	keyword string
	service models.ServiceType
}{
	{"sewer", models.ServiceSewerage},
	{"sanitation", models.ServiceSewerage},
	{"refuse", models.ServiceRefuse},
	{"electricity", models.ServiceElectricity},
	{"energy charge", models.ServiceElectricity},
	{"water", models.ServiceWater},
	{"assessment rates", models.ServiceRates},
	{"rates", models.ServiceRates},
	{"sundry", models.ServiceSundry},
}

// StatementParser turns extracted statement text into a ParsedBill. Parsing
// never fails: any field it cannot locate stays absent, and the analysis
// pipeline is built to tolerate that.
type StatementParser struct {
	logger *zap.Logger
}

// NewStatementParser creates a new statement parser.
func NewStatementParser(logger *zap.Logger) *StatementParser {
	return &StatementParser{logger: logger}
}

// Parse extracts account details, totals, property metadata and charge line
// items from statement text.
func (p *StatementParser) Parse(rawText string) *models.ParsedBill {
	bill := &models.ParsedBill{RawText: rawText}

	if m := accountPattern.FindStringSubmatch(rawText); m != nil {
		bill.AccountNumber = m[1]
	}
	bill.BillDate = matchDate(billDatePattern, rawText)
	bill.DueDate = matchDate(dueDatePattern, rawText)
	if m := periodPattern.FindStringSubmatch(rawText); m != nil {
		bill.PeriodStart = parseDate(m[1])
		bill.PeriodEnd = parseDate(m[2])
	}

	bill.TotalDueCents = matchCents(totalDuePattern, rawText)
	bill.PreviousBalanceCents = matchCents(broughtFwdPattern, rawText)
	bill.CurrentChargesCents = matchCents(currentPattern, rawText)
	bill.VATCents = matchCents(vatPattern, rawText)

	bill.Property = p.parseProperty(rawText)
	bill.LineItems = p.parseLineItems(rawText)

	p.logger.Debug("Parsed statement",
		zap.String("account", bill.AccountNumber),
		zap.Int("line_items", len(bill.LineItems)))

	return bill
}

func (p *StatementParser) parseProperty(rawText string) *models.PropertyInfo {
	prop := &models.PropertyInfo{}
	found := false

	if m := standSizePattern.FindStringSubmatch(rawText); m != nil {
		if v, err := strconv.ParseFloat(stripGrouping(m[1]), 64); err == nil {
			prop.StandSizeSqm = v
			found = true
		}
	}
	if m := valuationPattern.FindStringSubmatch(rawText); m != nil {
		if v, err := strconv.ParseInt(stripGrouping(m[1]), 10, 64); err == nil {
			prop.MunicipalValuationCents = v * 100
			found = true
		}
	}
	if m := unitCountPattern.FindStringSubmatch(rawText); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			prop.UnitCount = v
			found = true
		}
	}

	if !found {
		return nil
	}
	return prop
}

func (p *StatementParser) parseLineItems(rawText string) []models.LineItem {
	var items []models.LineItem

	for _, line := range strings.Split(rawText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		service, ok := serviceForLine(line)
		if !ok {
			continue
		}

		amountMatch := amountTailPattern.FindStringSubmatch(line)
		if amountMatch == nil {
			continue
		}
		amount, ok := parseRandToCents(amountMatch[1])
		if !ok {
			continue
		}

		item := models.LineItem{
			Service:     service,
			Description: strings.TrimSpace(strings.TrimSuffix(line, amountMatch[1])),
			AmountCents: amount,
			IsEstimated: strings.Contains(strings.ToLower(line), "estimated"),
		}
		if m := quantityPattern.FindStringSubmatch(line); m != nil {
			if q, err := strconv.ParseFloat(stripGrouping(m[1]), 64); err == nil {
				item.Quantity = &q
			}
		}
		if m := tariffCodePattern.FindStringSubmatch(line); m != nil {
			item.TariffCode = strings.ToUpper(m[1])
		}

		items = append(items, item)
	}

	return items
}

// serviceForLine identifies a charge row by keyword. Summary and header rows
// (totals, balances, addresses) never match a service keyword together with
// a trailing amount in practice; the "total"/"balance" guard covers the ones
// that would.
func serviceForLine(line string) (models.ServiceType, bool) {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "total") || strings.Contains(lower, "balance") {
		return "", false
	}
	for _, sk := range serviceKeywords {
		if strings.Contains(lower, sk.keyword) {
			return sk.service, true
		}
	}
	return "", false
}

func matchDate(re *regexp.Regexp, text string) *time.Time {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return parseDate(m[1])
}

func parseDate(s string) *time.Time {
	t, err := time.Parse("2006/01/02", s)
	if err != nil {
		return nil
	}
	return &t
}

func matchCents(re *regexp.Regexp, text string) int64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	cents, _ := parseRandToCents(m[1])
	return cents
}

// parseRandToCents converts a statement amount like "R 12,345.67" to integer
// cents. Decimal arithmetic avoids float drift on large balances.
func parseRandToCents(s string) (int64, bool) {
	clean := strings.NewReplacer("R", "", "r", "", " ", "", ",", "").Replace(strings.TrimSpace(s))
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, false
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), true
}

func stripGrouping(s string) string {
	return strings.ReplaceAll(s, ",", "")
}
