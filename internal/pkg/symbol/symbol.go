// Package symbol converts futures contract codes between the internal
// canonical form and each venue's native form.
//
// Canonical form: upper-case commodity + 4 digit year-month, e.g. RB2505.
// Venue forms differ in case and in the CZCE habit of dropping the year's
// tens digit (TA2505 trades as TA505).
package symbol

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"ctacore/internal/types"
)

var (
	reStandard  = regexp.MustCompile(`^([A-Z]+)(\d{4})$`)
	reVenue4    = regexp.MustCompile(`^([a-zA-Z]+)(\d{4})$`)
	reVenue3    = regexp.MustCompile(`^([A-Z]+)(\d{3})$`)
	reCommodity = regexp.MustCompile(`^([a-zA-Z]+)`)
	reDate      = regexp.MustCompile(`(\d{3,4})$`)
)

type venueRule struct {
	lower      bool
	dateDigits int
}

var venueRules = map[types.Exchange]venueRule{
	types.ExchangeSHFE:  {lower: true, dateDigits: 4},
	types.ExchangeDCE:   {lower: true, dateDigits: 4},
	types.ExchangeCZCE:  {lower: false, dateDigits: 3},
	types.ExchangeCFFEX: {lower: false, dateDigits: 4},
	types.ExchangeINE:   {lower: true, dateDigits: 4},
	types.ExchangeGFEX:  {lower: true, dateDigits: 4},
}

// ToStandard converts a venue-native code to canonical form. Unknown
// venues or unparseable codes come back unchanged.
func ToStandard(sym string, exchange types.Exchange) string {
	rule, ok := venueRules[exchange]
	if !ok {
		return sym
	}

	if rule.dateDigits == 4 {
		m := reVenue4.FindStringSubmatch(sym)
		if m == nil {
			return sym
		}
		return strings.ToUpper(m[1]) + m[2]
	}

	// CZCE drops the tens digit of the year; put it back.
	m := reVenue3.FindStringSubmatch(sym)
	if m == nil {
		return sym
	}
	yearDigit := int(m[2][0] - '0')
	month := m[2][1:]
	return fmt.Sprintf("%s%02d%s", strings.ToUpper(m[1]), inferFullYear(yearDigit, time.Now()), month)
}

// ToExchange converts a canonical code to the venue's native form.
func ToExchange(sym string, exchange types.Exchange) string {
	rule, ok := venueRules[exchange]
	if !ok {
		return sym
	}

	m := reStandard.FindStringSubmatch(strings.ToUpper(sym))
	if m == nil {
		return sym
	}
	commodity, date := m[1], m[2]

	var out string
	if rule.dateDigits == 4 {
		out = commodity + date
	} else {
		// 2505 -> 505
		out = commodity + date[1:]
	}

	if rule.lower {
		return strings.ToLower(out)
	}
	return out
}

// ExtractCommodity returns the upper-cased letter prefix of a contract
// code, or "" if the code does not start with letters.
func ExtractCommodity(sym string) string {
	m := reCommodity.FindStringSubmatch(sym)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// ExtractDate returns the two-digit year and the month of a contract
// code, e.g. RB2505 -> (25, 5). Three-digit CZCE dates are expanded with
// the same year inference as ToStandard. Returns (0, 0) when the code has
// no recognisable date part or the month is out of range.
func ExtractDate(sym string) (year, month int) {
	m := reDate.FindStringSubmatch(sym)
	if m == nil {
		return 0, 0
	}
	date := m[1]
	if len(date) == 4 {
		year = int(date[0]-'0')*10 + int(date[1]-'0')
		month = int(date[2]-'0')*10 + int(date[3]-'0')
	} else {
		year = inferFullYear(int(date[0]-'0'), time.Now())
		month = int(date[1]-'0')*10 + int(date[2]-'0')
	}
	if month < 1 || month > 12 {
		return 0, 0
	}
	return year, month
}

// Validate reports whether the code matches the venue's native format,
// including case.
func Validate(sym string, exchange types.Exchange) bool {
	rule, ok := venueRules[exchange]
	if !ok {
		return false
	}

	if rule.dateDigits == 4 {
		m := reVenue4.FindStringSubmatch(sym)
		if m == nil {
			return false
		}
		if rule.lower && m[1] != strings.ToLower(m[1]) {
			return false
		}
		if !rule.lower && m[1] != strings.ToUpper(m[1]) {
			return false
		}
	} else if !reVenue3.MatchString(sym) {
		return false
	}

	_, month := ExtractDate(sym)
	return month >= 1 && month <= 12
}

// inferFullYear expands a single year digit to two digits assuming
// contracts never list more than ten years out.
func inferFullYear(yearDigit int, now time.Time) int {
	cur := now.Year() % 100
	decade := cur / 10
	if yearDigit >= cur%10 {
		return decade*10 + yearDigit
	}
	return (decade+1)*10 + yearDigit
}
