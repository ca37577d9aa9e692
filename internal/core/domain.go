package core

import (
	"errors"
	"fmt"
	"strings"
)

// StateName is the state every upstream query is scoped to.
const StateName = "CHHATTISGARH"

type (
	// MonthlyQuery holds the raw, request-scoped query parameters.
	MonthlyQuery struct {
		District string
		Month    string // "MM"
		Year     string // "YYYY"
	}

	// Record is one upstream row. It is passed through untouched; only
	// district_name is ever inspected locally.
	Record map[string]any

	// Filter is a fully translated upstream filter set.
	Filter struct {
		District  string // normalized; may be empty
		MonthName string // "Jan".."Dec"
		FinYear   string // "2023-2024"
		// Broad drops the district filter from the upstream call. District
		// is then only used to filter rows locally.
		Broad bool
	}
)

var (
	ErrDistrictRequired = errors.New("district is required")
	ErrMonthFormat      = errors.New("month must be MM")
	ErrYearFormat       = errors.New("year must be YYYY")
	ErrMonthRange       = errors.New("month must be between 01 and 12")
)

// ValidationError wraps one of the sentinel errors above. Its message is the
// stable error code returned to clients.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks district, month and year in that order and reports the
// first violation.
func (q MonthlyQuery) Validate() error {
	if q.District == "" {
		return &ValidationError{Err: ErrDistrictRequired}
	}
	if !isDigits(q.Month, 2) {
		return &ValidationError{Err: ErrMonthFormat}
	}
	if !isDigits(q.Year, 4) {
		return &ValidationError{Err: ErrYearFormat}
	}
	if _, ok := monthNames[q.Month]; !ok {
		return &ValidationError{Err: ErrMonthRange}
	}
	return nil
}

// Translate validates the query and maps it to upstream filter values.
func (q MonthlyQuery) Translate() (Filter, error) {
	if err := q.Validate(); err != nil {
		return Filter{}, err
	}
	name, err := MonthName(q.Month)
	if err != nil {
		return Filter{}, &ValidationError{Err: ErrMonthRange}
	}
	fy, err := FinancialYear(q.Month, q.Year)
	if err != nil {
		return Filter{}, err
	}
	return Filter{
		District:  NormalizeDistrict(q.District),
		MonthName: name,
		FinYear:   fy,
	}, nil
}

// Key identifies a filter for caching and duplicate suppression.
func (f Filter) Key() string {
	return strings.Join([]string{f.District, f.MonthName, f.FinYear}, "|")
}

// DistrictName returns the record's district_name as text. Missing or null
// values read as "", other JSON values use their default formatting.
func (r Record) DistrictName() string {
	v, ok := r["district_name"]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
