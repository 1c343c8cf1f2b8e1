package history

import (
	"sort"

	"github.com/loic-marigny/xMarket/internal/models"
)

// MergeCandles combines an existing OHLC series with freshly fetched
// candles, keyed by date. Fresh entries overwrite existing ones on the
// same date; every entry is renormalized on the way in so historical
// artifacts written under older rules are repaired. The result is sorted
// ascending by date. Merging a series with itself is a no-op.
func MergeCandles(existing, fresh []models.Candle) []models.Candle {
	byDate := make(map[string]models.Candle, len(existing)+len(fresh))
	for _, series := range [][]models.Candle{existing, fresh} {
		for _, c := range series {
			if nc, ok := models.NewCandle(c.Date, c.Open, c.High, c.Low, c.Close); ok {
				byDate[nc.Date] = nc
			}
		}
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	merged := make([]models.Candle, 0, len(dates))
	for _, date := range dates {
		merged = append(merged, byDate[date])
	}
	return merged
}

// MergePoints is the close-only counterpart of MergeCandles.
func MergePoints(existing, fresh []models.PricePoint) []models.PricePoint {
	byDate := make(map[string]models.PricePoint, len(existing)+len(fresh))
	for _, series := range [][]models.PricePoint{existing, fresh} {
		for _, p := range series {
			if np, ok := models.NewPricePoint(p.Date, p.Close); ok {
				byDate[np.Date] = np
			}
		}
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	merged := make([]models.PricePoint, 0, len(dates))
	for _, date := range dates {
		merged = append(merged, byDate[date])
	}
	return merged
}
