// Package history implements the daily price backfill: coverage checks
// on existing artifacts, provider fallback, and merge-by-date persistence.
package history

import (
	"time"

	"github.com/loic-marigny/xMarket/internal/models"
)

// MinCoveragePoints is the minimum series length considered sufficient.
const MinCoveragePoints = 200

const dateLayout = "2006-01-02"

// businessDaysBetween counts weekdays in the half-open interval
// [from, to). Returns 0 when to <= from.
func businessDaysBetween(from, to time.Time) int {
	count := 0
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		wd := d.Weekday()
		if wd != time.Saturday && wd != time.Sunday {
			count++
		}
	}
	return count
}

// SeriesBounds scans a series for its earliest and latest dates without
// assuming the artifact is sorted; hand-edited files do show up unsorted.
func SeriesBounds[T any](rows []T, date func(T) string) (first, last string) {
	for i, r := range rows {
		d := date(r)
		if i == 0 || d < first {
			first = d
		}
		if i == 0 || d > last {
			last = d
		}
	}
	return first, last
}

func candleDate(c models.Candle) string    { return c.Date }
func pointDate(p models.PricePoint) string { return p.Date }

// CoverageOK reports whether an existing series is sufficient to skip a
// refetch: at least MinCoveragePoints entries, starting on or before
// minFromDate, and at most one business day behind today. Unparseable
// boundary dates fail the check so the symbol gets refetched.
func CoverageOK(length int, firstDate, lastDate, minFromDate string, today time.Time) bool {
	if length < MinCoveragePoints {
		return false
	}
	first, err := time.Parse(dateLayout, firstDate)
	if err != nil {
		return false
	}
	minFrom, err := time.Parse(dateLayout, minFromDate)
	if err != nil {
		return false
	}
	if first.After(minFrom) {
		return false
	}
	last, err := time.Parse(dateLayout, lastDate)
	if err != nil {
		return false
	}
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return businessDaysBetween(last, day) <= 1
}
