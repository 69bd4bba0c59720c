package core

// coerce.go normalizes user-supplied field values into wire-ready scalars.
//
// These functions handle the messy reality of user-provided tabular data:
//   - Multiple date formats (US, EU, ISO, etc.)
//   - Currency symbols and thousand separators in numbers
//   - Various boolean representations (yes/no, true/false, 1/0)
//   - Excel formula prefixes (="value")
//   - Common CSV artifacts (BOM, weird quotes)
//
// Coercion is best-effort: a value that cannot be parsed is returned
// unchanged and left for the remote API to reject at submission time.
// Already-coerced (non-string) values pass through untouched, which keeps
// transformation idempotent.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericPattern validates a candidate number after cleanup. Matches
// integers, decimals, and scientific notation.
var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted. Years
// that would land more than this many years in the future are assumed
// to be in the previous century.
var TwoDigitYearPivot = 20

// Wire formats expected by the platform write APIs.
const (
	wireDateLayout     = "2006-01-02"
	wireDateTimeLayout = "2006-01-02T15:04:05.000-0700"
)

// DateOrder expresses which side of an ambiguous numeric date is the day.
const (
	DateOrderMDY = "MDY"
	DateOrderDMY = "DMY"
)

var (
	twoDigitYearLayoutsMDY = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	twoDigitYearLayoutsDMY = []string{
		"2/1/06", "02/01/06", "2-1-06", "2.1.06", "02.01.06",
	}
	fourDigitYearLayoutsMDY = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
	}
	fourDigitYearLayoutsDMY = []string{
		"2/1/2006", "02/01/2006", "2-1-2006", "02-01-2006", "2.1.2006", "02.01.2006",
		"2 Jan 2006", "Jan 2, 2006",
	}
	// Unambiguous layouts tried first regardless of date order.
	isoDateLayouts = []string{
		wireDateLayout, "2006/01/02", "2006.01.02", "20060102",
	}
	dateTimeLayouts = []string{
		time.RFC3339, "2006-01-02T15:04:05.000-0700", "2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 3:04 PM",
	}
)

// CoerceValue converts a raw value to the wire shape for its field.
// A nil descriptor means no schema is known and the value passes
// through unchanged.
func CoerceValue(v any, field *FieldDescriptor, dateOrder string) any {
	if v == nil || field == nil {
		return v
	}
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = CleanCell(s)

	switch field.Type {
	case FieldDate:
		if t, ok := parseDate(s, dateOrder); ok {
			return t.Format(wireDateLayout)
		}
	case FieldDateTime:
		if t, ok := parseDateTime(s, dateOrder); ok {
			return t.UTC().Format(wireDateTimeLayout)
		}
	case FieldNumeric:
		if f, ok := parseNumeric(s); ok {
			return f
		}
	case FieldInt:
		if f, ok := parseNumeric(s); ok {
			return int64(f)
		}
	case FieldBool:
		if b, ok := parseBool(s); ok {
			return b
		}
	}
	return s
}

// parseDate parses a date string, trying unambiguous layouts first and
// handling 2-digit years with a pivot.
func parseDate(s string, dateOrder string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range isoDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	fourDigit := fourDigitYearLayoutsMDY
	twoDigit := twoDigitYearLayoutsMDY
	if dateOrder == DateOrderDMY {
		fourDigit = fourDigitYearLayoutsDMY
		twoDigit = twoDigitYearLayoutsDMY
	}

	for _, layout := range fourDigit {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigit {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// parseDateTime parses a timestamp, falling back to a bare date at
// midnight UTC.
func parseDateTime(s string, dateOrder string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	return parseDate(s, dateOrder)
}

// parseNumeric parses a number, handling currency symbols, thousands
// separators, and accounting format (parentheses for negative).
func parseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericPattern.MatchString(s) {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// parseBool accepts various representations: true/false, yes/no, t/f,
// y/n, 1/0.
func parseBool(s string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)

	return s
}
