package service

import (
	"fmt"
	"time"
)

const monthLayout = "2006-01"

// ValidateYearMonth rejects anything that is not a literal YYYY-MM before it
// can reach storage.
func ValidateYearMonth(yearMonth string) error {
	if len(yearMonth) != len(monthLayout) {
		return fmt.Errorf("%w: year_month must be YYYY-MM, got %q", ErrValidation, yearMonth)
	}
	if _, err := time.Parse(monthLayout, yearMonth); err != nil {
		return fmt.Errorf("%w: year_month must be YYYY-MM, got %q", ErrValidation, yearMonth)
	}
	return nil
}

// MonthOf formats t's calendar month in UTC.
func MonthOf(t time.Time) string {
	return t.UTC().Format(monthLayout)
}

// PreviousMonth returns the month immediately before yearMonth.
func PreviousMonth(yearMonth string) (string, error) {
	return shiftMonth(yearMonth, -1)
}

// NextMonth returns the month immediately after yearMonth.
func NextMonth(yearMonth string) (string, error) {
	return shiftMonth(yearMonth, 1)
}

func shiftMonth(yearMonth string, months int) (string, error) {
	t, err := time.Parse(monthLayout, yearMonth)
	if err != nil {
		return "", fmt.Errorf("%w: year_month must be YYYY-MM, got %q", ErrValidation, yearMonth)
	}
	return t.AddDate(0, months, 0).Format(monthLayout), nil
}

// PreviousMonthOf returns the calendar month immediately preceding t.
func PreviousMonthOf(t time.Time) string {
	t = t.UTC()
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -1, 0).Format(monthLayout)
}
