// Package quotes maintains the last-price snapshot across all tracked
// symbols, fetching only while each symbol's market is open and carrying
// the previous value forward otherwise.
package quotes

import (
	"context"
	"time"

	"github.com/loic-marigny/xMarket/internal/common"
	"github.com/loic-marigny/xMarket/internal/interfaces"
	"github.com/loic-marigny/xMarket/internal/models"
)

func location(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

var (
	locNewYork  = location("America/New_York")
	locShanghai = location("Asia/Shanghai")
	locParis    = location("Europe/Paris")
	locTokyo    = location("Asia/Tokyo")
	locRiyadh   = location("Asia/Riyadh")
)

// window is a daily open interval in exchange-local minutes.
type window struct {
	startMin int
	endMin   int
}

func mins(h, m int) int { return h*60 + m }

func inWindows(t time.Time, windows []window) bool {
	cur := mins(t.Hour(), t.Minute())
	for _, w := range windows {
		if cur >= w.startMin && cur < w.endMin {
			return true
		}
	}
	return false
}

func isWeekday(d time.Weekday) bool {
	return d != time.Saturday && d != time.Sunday
}

// Hours decides whether a market is currently trading. The US check asks
// the live market-status endpoint first (it knows about holidays) and
// falls back to the regular New York session on error.
type Hours struct {
	status interfaces.MarketStatusProvider
	logger *common.Logger
	now    func() time.Time
}

// NewHours creates an Hours. status may be nil, in which case the US
// falls back to the fixed session immediately.
func NewHours(logger *common.Logger, status interfaces.MarketStatusProvider) *Hours {
	return &Hours{
		status: status,
		logger: logger,
		now:    time.Now,
	}
}

// Open reports whether the market is trading right now.
func (h *Hours) Open(ctx context.Context, market models.Market) bool {
	now := h.now()

	switch market {
	case models.MarketCrypto, models.MarketCommodity:
		return true

	case models.MarketFX, models.MarketIndex:
		return isWeekday(now.UTC().Weekday())

	case models.MarketUS:
		if h.status != nil {
			open, err := h.status.MarketOpen(ctx, "US")
			if err == nil {
				return open
			}
			h.logger.Debug().Err(err).Msg("market status unavailable, using regular session")
		}
		local := now.In(locNewYork)
		return isWeekday(local.Weekday()) && inWindows(local, []window{{mins(9, 30), mins(16, 0)}})

	case models.MarketCN:
		local := now.In(locShanghai)
		return isWeekday(local.Weekday()) && inWindows(local, []window{
			{mins(9, 30), mins(11, 30)},
			{mins(13, 0), mins(15, 0)},
		})

	case models.MarketEU:
		local := now.In(locParis)
		return isWeekday(local.Weekday()) && inWindows(local, []window{{mins(9, 0), mins(17, 30)}})

	case models.MarketJP:
		local := now.In(locTokyo)
		return isWeekday(local.Weekday()) && inWindows(local, []window{
			{mins(9, 0), mins(11, 30)},
			{mins(12, 30), mins(15, 0)},
		})

	case models.MarketSA:
		local := now.In(locRiyadh)
		wd := local.Weekday()
		if wd == time.Friday || wd == time.Saturday {
			return false
		}
		return inWindows(local, []window{{mins(10, 0), mins(15, 0)}})
	}

	// Unknown markets are treated as open so a tagging mistake degrades
	// to an extra fetch rather than a stale quote.
	return true
}
