package index

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loic-marigny/xMarket/internal/common"
	"github.com/loic-marigny/xMarket/internal/models"
	"github.com/loic-marigny/xMarket/internal/storage"
)

type fakeSummaries struct {
	payloads map[string]map[string]interface{}
	err      error
}

func (f *fakeSummaries) Summary(_ context.Context, symbol string) (map[string]interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.payloads[symbol]; ok {
		return p, nil
	}
	return nil, errors.New("unknown symbol")
}

func newTestService(t *testing.T, tickers []models.Ticker, summaries *fakeSummaries) (*Service, *storage.FileStore, string) {
	t.Helper()
	logger := common.NewSilentLogger()
	cfg := common.StorageConfig{DataPath: t.TempDir(), PublicPath: t.TempDir()}

	store, err := storage.NewFileStore(logger, &cfg)
	require.NoError(t, err)

	data, err := json.Marshal(tickers)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataPath, storage.TickersFile), data, 0644))

	var svc *Service
	if summaries != nil {
		svc = NewService(logger, store, summaries)
	} else {
		svc = NewService(logger, store, nil)
	}
	svc.sleep = func(time.Duration) {}
	return svc, store, cfg.PublicPath
}

func TestBuildCreatesEntriesAndStubs(t *testing.T) {
	tickers := []models.Ticker{
		{Symbol: "msft", Name: "Microsoft", Sector: "Tech", Market: models.MarketUS},
		{Symbol: "AAPL", Name: "Apple", Sector: "Tech", Market: models.MarketUS},
	}
	svc, store, _ := newTestService(t, tickers, nil)

	count, err := svc.Build()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	entries := store.ReadIndex()
	require.Contains(t, entries, "MSFT")
	e := entries["MSFT"]
	assert.Equal(t, "companies/MSFT/profile.json", e.Profile)
	assert.Equal(t, "history/MSFT.json", e.History)
	assert.Nil(t, e.Logo)
	require.NotNil(t, e.Market)
	assert.Equal(t, models.MarketUS, *e.Market)

	// a stub profile exists for the new company
	profile := store.ReadProfile("MSFT")
	assert.Equal(t, "MSFT", profile["symbol"])
	assert.Equal(t, "Microsoft", profile["name"])
}

func TestBuildNeverOverwritesProfiles(t *testing.T) {
	tickers := []models.Ticker{{Symbol: "AAPL", Name: "Apple", Sector: "Tech", Market: models.MarketUS}}
	svc, store, _ := newTestService(t, tickers, nil)

	require.NoError(t, store.WriteProfile("AAPL", models.Profile{
		"symbol":   "AAPL",
		"longName": "Apple Inc.",
	}))

	_, err := svc.Build()
	require.NoError(t, err)

	profile := store.ReadProfile("AAPL")
	assert.Equal(t, "Apple Inc.", profile["longName"], "existing profile content must survive a rebuild")
}

func TestBuildDetectsLogoOnDisk(t *testing.T) {
	tickers := []models.Ticker{{Symbol: "AAPL", Name: "Apple", Sector: "Tech", Market: models.MarketUS}}
	svc, store, publicPath := newTestService(t, tickers, nil)

	logoDir := filepath.Join(publicPath, storage.DirCompanies, "AAPL")
	require.NoError(t, os.MkdirAll(logoDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(logoDir, "logo.svg"), []byte("<svg/>"), 0644))

	_, err := svc.Build()
	require.NoError(t, err)

	e := store.ReadIndex()["AAPL"]
	require.NotNil(t, e.Logo)
	assert.Equal(t, "companies/AAPL/logo.svg", *e.Logo)
}

func TestBuildPreservesLogoFromPreviousIndex(t *testing.T) {
	tickers := []models.Ticker{{Symbol: "AAPL", Name: "Apple", Sector: "Tech", Market: models.MarketUS}}
	svc, store, _ := newTestService(t, tickers, nil)

	// an earlier index points at an externally hosted logo
	external := "https://cdn.example.com/aapl.svg"
	market := models.MarketUS
	require.NoError(t, store.WriteIndex([]models.IndexEntry{{
		Symbol: "AAPL",
		Logo:   &external,
		Market: &market,
	}}))

	_, err := svc.Build()
	require.NoError(t, err)

	e := store.ReadIndex()["AAPL"]
	require.NotNil(t, e.Logo)
	assert.Equal(t, external, *e.Logo)
}

func TestUpdateProfilesMergesAllowlistedFields(t *testing.T) {
	tickers := []models.Ticker{{Symbol: "AAPL", Name: "Apple", Sector: "Tech", Market: models.MarketUS}}
	summaries := &fakeSummaries{payloads: map[string]map[string]interface{}{
		"AAPL": {
			"longName":            "Apple Inc.",
			"beta":                1.25,
			"marketCap":           2.9e12, // not allowlisted
			"longBusinessSummary": "Designs consumer electronics.",
		},
	}}
	svc, store, _ := newTestService(t, tickers, summaries)

	updated, err := svc.UpdateProfiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	profile := store.ReadProfile("AAPL")
	assert.Equal(t, "Apple Inc.", profile["longName"])
	assert.Equal(t, 1.25, profile["beta"])
	assert.NotContains(t, profile, "marketCap")
	assert.Equal(t, "AAPL", profile["symbol"])
}

func TestUpdateProfilesSkipsFailures(t *testing.T) {
	tickers := []models.Ticker{{Symbol: "AAPL", Name: "Apple", Sector: "Tech", Market: models.MarketUS}}
	svc, _, _ := newTestService(t, tickers, &fakeSummaries{err: errors.New("worker down")})

	updated, err := svc.UpdateProfiles(context.Background())
	require.NoError(t, err)
	assert.Zero(t, updated)
}

func TestMergeSummaryRequiresAllowlistedField(t *testing.T) {
	tk := models.Ticker{Symbol: "AAPL", Name: "Apple", Sector: "Tech"}
	got := mergeSummary(models.Profile{}, "AAPL", tk, map[string]interface{}{"marketCap": 1.0})
	assert.Nil(t, got)
}
