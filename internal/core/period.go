package core

import (
	"errors"
	"fmt"
	"strconv"
)

var ErrUnknownMonth = errors.New("unknown month code")

var monthNames = map[string]string{
	"01": "Jan", "02": "Feb", "03": "Mar", "04": "Apr",
	"05": "May", "06": "Jun", "07": "Jul", "08": "Aug",
	"09": "Sep", "10": "Oct", "11": "Nov", "12": "Dec",
}

// MonthName maps a two-digit month code to its three-letter name.
func MonthName(month string) (string, error) {
	name, ok := monthNames[month]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMonth, month)
	}
	return name, nil
}

// FinancialYear returns the April-March fiscal year containing month/year,
// formatted "Y1-Y2". January to March belong to the year that started in
// the previous calendar year.
func FinancialYear(month, year string) (string, error) {
	if _, ok := monthNames[month]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMonth, month)
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return "", fmt.Errorf("parse year %q: %w", year, err)
	}
	switch month {
	case "01", "02", "03":
		return fmt.Sprintf("%d-%d", y-1, y), nil
	default:
		return fmt.Sprintf("%d-%d", y, y+1), nil
	}
}
