package quotes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/loic-marigny/xMarket/internal/common"
	"github.com/loic-marigny/xMarket/internal/models"
)

type fakeStatus struct {
	open bool
	err  error
}

func (f *fakeStatus) MarketOpen(context.Context, string) (bool, error) {
	return f.open, f.err
}

func hoursAt(t time.Time, status *fakeStatus) *Hours {
	var h *Hours
	if status != nil {
		h = NewHours(common.NewSilentLogger(), status)
	} else {
		h = NewHours(common.NewSilentLogger(), nil)
	}
	h.now = func() time.Time { return t }
	return h
}

func TestHoursCryptoAlwaysOpen(t *testing.T) {
	sundayNight := time.Date(2024, time.March, 10, 3, 0, 0, 0, time.UTC)
	h := hoursAt(sundayNight, nil)
	assert.True(t, h.Open(context.TODO(), models.MarketCrypto))
}

func TestHoursFXWeekdaysOnly(t *testing.T) {
	saturday := time.Date(2024, time.March, 9, 12, 0, 0, 0, time.UTC)
	wednesday := time.Date(2024, time.March, 6, 12, 0, 0, 0, time.UTC)

	assert.False(t, hoursAt(saturday, nil).Open(context.TODO(), models.MarketFX))
	assert.True(t, hoursAt(wednesday, nil).Open(context.TODO(), models.MarketFX))
	assert.True(t, hoursAt(wednesday, nil).Open(context.TODO(), models.MarketIndex))
}

func TestHoursCNSessions(t *testing.T) {
	morning := time.Date(2024, time.March, 6, 10, 0, 0, 0, locShanghai)
	lunch := time.Date(2024, time.March, 6, 12, 0, 0, 0, locShanghai)
	afternoon := time.Date(2024, time.March, 6, 14, 30, 0, 0, locShanghai)
	evening := time.Date(2024, time.March, 6, 16, 0, 0, 0, locShanghai)
	weekend := time.Date(2024, time.March, 9, 10, 0, 0, 0, locShanghai)

	assert.True(t, hoursAt(morning, nil).Open(context.TODO(), models.MarketCN))
	assert.False(t, hoursAt(lunch, nil).Open(context.TODO(), models.MarketCN))
	assert.True(t, hoursAt(afternoon, nil).Open(context.TODO(), models.MarketCN))
	assert.False(t, hoursAt(evening, nil).Open(context.TODO(), models.MarketCN))
	assert.False(t, hoursAt(weekend, nil).Open(context.TODO(), models.MarketCN))
}

func TestHoursUSPrefersStatusEndpoint(t *testing.T) {
	// Sunday midnight New York: the regular session says closed, but the
	// live endpoint's answer wins when it responds.
	sunday := time.Date(2024, time.March, 10, 0, 0, 0, 0, locNewYork)
	assert.True(t, hoursAt(sunday, &fakeStatus{open: true}).Open(context.TODO(), models.MarketUS))

	tradingHours := time.Date(2024, time.March, 6, 11, 0, 0, 0, locNewYork)
	assert.False(t, hoursAt(tradingHours, &fakeStatus{open: false}).Open(context.TODO(), models.MarketUS))
}

func TestHoursUSFallsBackOnStatusError(t *testing.T) {
	failing := &fakeStatus{err: errors.New("rate limited")}

	tradingHours := time.Date(2024, time.March, 6, 11, 0, 0, 0, locNewYork)
	afterClose := time.Date(2024, time.March, 6, 18, 0, 0, 0, locNewYork)

	assert.True(t, hoursAt(tradingHours, failing).Open(context.TODO(), models.MarketUS))
	assert.False(t, hoursAt(afterClose, failing).Open(context.TODO(), models.MarketUS))
}

func TestHoursSaudiWeek(t *testing.T) {
	// the Saudi market trades Sunday through Thursday
	sunday := time.Date(2024, time.March, 10, 11, 0, 0, 0, locRiyadh)
	friday := time.Date(2024, time.March, 8, 11, 0, 0, 0, locRiyadh)

	assert.True(t, hoursAt(sunday, nil).Open(context.TODO(), models.MarketSA))
	assert.False(t, hoursAt(friday, nil).Open(context.TODO(), models.MarketSA))
}

func TestHoursJPSessions(t *testing.T) {
	morning := time.Date(2024, time.March, 6, 10, 0, 0, 0, locTokyo)
	lunch := time.Date(2024, time.March, 6, 12, 0, 0, 0, locTokyo)

	assert.True(t, hoursAt(morning, nil).Open(context.TODO(), models.MarketJP))
	assert.False(t, hoursAt(lunch, nil).Open(context.TODO(), models.MarketJP))
}
