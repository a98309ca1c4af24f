// Package classify infers the property type behind a municipal statement.
package classify

import (
	"github.com/billwatch/munibill/internal/models"
	"github.com/billwatch/munibill/internal/textscan"
)

// businessRateThreshold splits the rate-in-rand factor between residential
// and business tariffs. Johannesburg business rates run at roughly 2.5x the
// residential rate, so anything above 0.015 is a business factor.
const businessRateThreshold = 0.015

// Classify infers the property classification from the statement text and,
// failing that, from the rate factor recorded on the rates line item. Pure
// function of the bill; no I/O.
//
// Priority order, first match wins:
//  1. both business and residential rates markers present: mixed
//  2. exactly one marker present: that classification
//  3. rates line item metadata carries the rate used: threshold it
//  4. otherwise unknown
func Classify(bill *models.ParsedBill) models.PropertyClassification {
	if bill == nil {
		return models.ClassUnknown
	}

	hasBusiness := textscan.HasMarker(bill.RawText, textscan.MarkerBusinessRates)
	hasResidential := textscan.HasMarker(bill.RawText, textscan.MarkerResidentialRates)

	switch {
	case hasBusiness && hasResidential:
		return models.ClassMixed
	case hasBusiness:
		return models.ClassBusiness
	case hasResidential:
		return models.ClassResidential
	}

	if rate, ok := rateUsed(bill); ok {
		if rate > businessRateThreshold {
			return models.ClassBusiness
		}
		return models.ClassResidential
	}

	return models.ClassUnknown
}

// rateUsed returns the rate-in-rand factor from the rates line item, falling
// back to the rate-used marker in the raw text.
func rateUsed(bill *models.ParsedBill) (float64, bool) {
	if item := bill.FindLineItem(models.ServiceRates); item != nil {
		if item.Metadata != nil && item.Metadata.Rates != nil && item.Metadata.Rates.RateUsed > 0 {
			return item.Metadata.Rates.RateUsed, true
		}
	}
	if v, ok := textscan.ExtractNumber(bill.RawText, textscan.MarkerRateUsed); ok && v > 0 {
		return v, true
	}
	return 0, false
}

// CustomerCategory maps a property classification onto the tariff customer
// category used for rule matching. Mixed and unknown properties have no
// exact category and match any.
func CustomerCategory(class models.PropertyClassification) models.CustomerCategory {
	switch class {
	case models.ClassResidential:
		return models.CategoryResidential
	case models.ClassBusiness:
		return models.CategoryBusiness
	default:
		return models.CategoryAny
	}
}
