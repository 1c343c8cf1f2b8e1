// Command xmarket runs the market data pipelines: daily history
// backfill, quote snapshots, the companies index, and database loads.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/loic-marigny/xMarket/internal/clients/alltick"
	"github.com/loic-marigny/xMarket/internal/clients/alphavantage"
	"github.com/loic-marigny/xMarket/internal/clients/eastmoney"
	"github.com/loic-marigny/xMarket/internal/clients/finnhub"
	"github.com/loic-marigny/xMarket/internal/clients/stooq"
	"github.com/loic-marigny/xMarket/internal/clients/worker"
	"github.com/loic-marigny/xMarket/internal/clients/yahoo"
	"github.com/loic-marigny/xMarket/internal/common"
	"github.com/loic-marigny/xMarket/internal/history"
	"github.com/loic-marigny/xMarket/internal/index"
	"github.com/loic-marigny/xMarket/internal/interfaces"
	"github.com/loic-marigny/xMarket/internal/models"
	"github.com/loic-marigny/xMarket/internal/quotes"
	"github.com/loic-marigny/xMarket/internal/storage"
)

const usage = `xMarket %s - market data pipelines

Usage: xmarket <command> [flags]

Commands:
  history        backfill close-only daily series
  history-ohlc   backfill full OHLC daily series
  quotes         refresh the last-price snapshot
  index          rebuild the companies index
  profiles       enrich company profiles from the worker summary
  check          audit series coverage, print failing symbols
  load-sqlite    mirror artifacts into a local SQLite database
  load-postgres  mirror artifacts into Postgres
  version        print version information

Run "xmarket <command> -h" for command flags.
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, usage, common.GetVersion())
		return 2
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "history":
		return runHistory(rest, history.VariantClose)
	case "history-ohlc":
		return runHistory(rest, history.VariantOHLC)
	case "quotes":
		return runQuotes(rest)
	case "index":
		return runIndex(rest)
	case "profiles":
		return runProfiles(rest)
	case "check":
		return runCheck(rest)
	case "load-sqlite":
		return runLoadSQLite(rest)
	case "load-postgres":
		return runLoadPostgres(rest)
	case "version":
		fmt.Println(common.GetFullVersion())
		return 0
	case "help", "-h", "--help":
		fmt.Printf(usage, common.GetVersion())
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprintf(os.Stderr, usage, common.GetVersion())
		return 2
	}
}

// app bundles what every subcommand needs.
type app struct {
	config *common.Config
	logger *common.Logger
	store  *storage.FileStore
}

func newApp(configPath string) (*app, error) {
	config, err := common.LoadConfig("xmarket.toml", configPath)
	if err != nil {
		return nil, err
	}
	logger := common.NewLogger(config.Logging.Level)
	store, err := storage.NewFileStore(logger, &config.Storage)
	if err != nil {
		return nil, err
	}
	return &app{config: config, logger: logger, store: store}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}

// historyProviders builds the fallback chain from the configuration.
// Tokened providers join the chain only when their key is present.
func historyProviders(a *app) []interfaces.HistoryProvider {
	cc := &a.config.Clients

	var workerP interfaces.HistoryProvider
	if cc.Worker.BaseURL != "" {
		workerP = worker.NewClient(cc.Worker.BaseURL,
			worker.WithToken(cc.Worker.Token),
			worker.WithRange(cc.Worker.Range),
			worker.WithTimeout(common.ParseTimeout(cc.Worker.Timeout, worker.DefaultTimeout)),
			worker.WithLogger(a.logger))
	}

	yahooP := yahoo.NewClient(
		yahoo.WithTimeout(common.ParseTimeout(cc.Yahoo.Timeout, yahoo.DefaultTimeout)),
		yahoo.WithRateLimit(cc.Yahoo.RateLimit),
		yahoo.WithLogger(a.logger))

	var rest []interfaces.HistoryProvider
	if cc.Finnhub.APIKey != "" {
		rest = append(rest, finnhub.NewClient(cc.Finnhub.APIKey,
			finnhub.WithBaseURL(cc.Finnhub.BaseURL),
			finnhub.WithTimeout(common.ParseTimeout(cc.Finnhub.Timeout, finnhub.DefaultTimeout)),
			finnhub.WithRateLimit(cc.Finnhub.RateLimit),
			finnhub.WithLogger(a.logger)))
	}
	rest = append(rest, eastmoney.NewClient(
		eastmoney.WithBaseURL(cc.Eastmoney.BaseURL),
		eastmoney.WithTimeout(common.ParseTimeout(cc.Eastmoney.Timeout, eastmoney.DefaultTimeout)),
		eastmoney.WithLogger(a.logger)))
	if cc.Alltick.APIKey != "" {
		rest = append(rest, alltick.NewClient(cc.Alltick.APIKey,
			alltick.WithHistoryURL(cc.Alltick.HistoryURL),
			alltick.WithQuoteURL(cc.Alltick.QuoteURL),
			alltick.WithTimeout(common.ParseTimeout(cc.Alltick.Timeout, alltick.DefaultTimeout)),
			alltick.WithLogger(a.logger)))
	}
	if cc.AlphaVantage.APIKey != "" {
		rest = append(rest, alphavantage.NewClient(cc.AlphaVantage.APIKey,
			alphavantage.WithBaseURL(cc.AlphaVantage.BaseURL),
			alphavantage.WithTimeout(common.ParseTimeout(cc.AlphaVantage.Timeout, alphavantage.DefaultTimeout)),
			alphavantage.WithLogger(a.logger)))
	}
	rest = append(rest, stooq.NewClient(
		stooq.WithBaseURL(cc.Stooq.BaseURL),
		stooq.WithTimeout(common.ParseTimeout(cc.Stooq.Timeout, stooq.DefaultTimeout)),
		stooq.WithLogger(a.logger)))

	return history.OrderProviders(a.config.History.WorkerPriority, workerP, yahooP, rest...)
}

func runHistory(args []string, variant history.Variant) int {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	symbols := fs.String("symbols", "", "comma-separated symbol filter")
	limit := fs.Int("limit", 0, "stop after this many symbols (0 = all)")
	batchIndex := fs.Int("batch-index", -1, "process only this batch slice (-1 = all)")
	batchSize := fs.Int("batch-size", 0, "symbols per batch (0 = configured size)")
	fs.Parse(args)

	a, err := newApp(*configPath)
	if err != nil {
		return fail(err)
	}

	opts := history.Options{
		Limit:      *limit,
		BatchIndex: *batchIndex,
		BatchSize:  *batchSize,
	}
	if *symbols != "" {
		opts.Symbols = strings.Split(*symbols, ",")
	}

	ctx, stop := signalContext()
	defer stop()

	svc := history.NewService(a.logger, a.config, a.store, historyProviders(a))
	if _, err := svc.Run(ctx, variant, opts); err != nil {
		return fail(err)
	}
	return 0
}

func runQuotes(args []string) int {
	fs := flag.NewFlagSet("quotes", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	fs.Parse(args)

	a, err := newApp(*configPath)
	if err != nil {
		return fail(err)
	}
	cc := &a.config.Clients

	yahooP := yahoo.NewClient(
		yahoo.WithTimeout(common.ParseTimeout(cc.Yahoo.Timeout, yahoo.DefaultTimeout)),
		yahoo.WithRateLimit(cc.Yahoo.RateLimit),
		yahoo.WithLogger(a.logger))
	eastmoneyP := eastmoney.NewClient(
		eastmoney.WithBaseURL(cc.Eastmoney.BaseURL),
		eastmoney.WithTimeout(common.ParseTimeout(cc.Eastmoney.Timeout, eastmoney.DefaultTimeout)),
		eastmoney.WithLogger(a.logger))

	chains := map[models.Market][]interfaces.QuoteProvider{
		models.MarketCN: {eastmoneyP},
	}
	if cc.Alltick.APIKey != "" {
		alltickP := alltick.NewClient(cc.Alltick.APIKey,
			alltick.WithHistoryURL(cc.Alltick.HistoryURL),
			alltick.WithQuoteURL(cc.Alltick.QuoteURL),
			alltick.WithTimeout(common.ParseTimeout(cc.Alltick.Timeout, alltick.DefaultTimeout)),
			alltick.WithLogger(a.logger))
		chains[models.MarketCN] = append(chains[models.MarketCN], alltickP)
	}

	var status interfaces.MarketStatusProvider
	if cc.Finnhub.APIKey != "" {
		finnhubP := finnhub.NewClient(cc.Finnhub.APIKey,
			finnhub.WithBaseURL(cc.Finnhub.BaseURL),
			finnhub.WithTimeout(common.ParseTimeout(cc.Finnhub.Timeout, finnhub.DefaultTimeout)),
			finnhub.WithRateLimit(cc.Finnhub.RateLimit),
			finnhub.WithLogger(a.logger))
		status = finnhubP
		// US prefers the real-time endpoint, with Yahoo as backstop.
		chains[models.MarketUS] = []interfaces.QuoteProvider{finnhubP, yahooP}
	}

	ctx, stop := signalContext()
	defer stop()

	hours := quotes.NewHours(a.logger, status)
	svc := quotes.NewService(a.logger, a.store, hours, chains, []interfaces.QuoteProvider{yahooP})
	if _, err := svc.Snapshot(ctx); err != nil {
		return fail(err)
	}
	return 0
}

func runIndex(args []string) int {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	fs.Parse(args)

	a, err := newApp(*configPath)
	if err != nil {
		return fail(err)
	}
	if _, err := index.NewService(a.logger, a.store, nil).Build(); err != nil {
		return fail(err)
	}
	return 0
}

func runProfiles(args []string) int {
	fs := flag.NewFlagSet("profiles", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	fs.Parse(args)

	a, err := newApp(*configPath)
	if err != nil {
		return fail(err)
	}
	cc := &a.config.Clients
	if cc.Worker.BaseURL == "" {
		return fail(fmt.Errorf("profiles requires clients.worker.base_url (or YAHOO_WORKER_URL)"))
	}
	workerP := worker.NewClient(cc.Worker.BaseURL,
		worker.WithToken(cc.Worker.Token),
		worker.WithTimeout(common.ParseTimeout(cc.Worker.Timeout, worker.DefaultTimeout)),
		worker.WithLogger(a.logger))

	ctx, stop := signalContext()
	defer stop()

	if _, err := index.NewService(a.logger, a.store, workerP).UpdateProfiles(ctx); err != nil {
		return fail(err)
	}
	return 0
}

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	ohlc := fs.Bool("ohlc", false, "audit the OHLC series instead of close-only")
	fs.Parse(args)

	a, err := newApp(*configPath)
	if err != nil {
		return fail(err)
	}
	variant := history.VariantClose
	if *ohlc {
		variant = history.VariantOHLC
	}

	svc := history.NewService(a.logger, a.config, a.store, nil)
	failing, err := svc.Check(variant)
	if err != nil {
		return fail(err)
	}
	// A comma-separated list on stdout so CI can feed it back through
	// the -symbols flag; coverage gaps are not a process failure.
	fmt.Println(strings.Join(failing, ","))
	return 0
}

func runLoadSQLite(args []string) int {
	fs := flag.NewFlagSet("load-sqlite", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	dbPath := fs.String("db", "", "database path (overrides config)")
	fs.Parse(args)

	a, err := newApp(*configPath)
	if err != nil {
		return fail(err)
	}
	path := a.config.Database.SQLite.Path
	if *dbPath != "" {
		path = *dbPath
	}

	loader, err := storage.NewSQLiteLoader(a.logger, path)
	if err != nil {
		return fail(err)
	}
	defer loader.Close()

	if _, err := loader.LoadHistory(a.store); err != nil {
		return fail(err)
	}
	if _, err := loader.LoadCompanies(a.store); err != nil {
		return fail(err)
	}
	return 0
}

func runLoadPostgres(args []string) int {
	fs := flag.NewFlagSet("load-postgres", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	dsn := fs.String("dsn", "", "connection string (overrides config)")
	fs.Parse(args)

	a, err := newApp(*configPath)
	if err != nil {
		return fail(err)
	}
	connStr := a.config.Database.Postgres.DSN
	if *dsn != "" {
		connStr = *dsn
	}
	if connStr == "" {
		return fail(fmt.Errorf("load-postgres requires database.postgres.dsn (or XMARKET_POSTGRES_DSN)"))
	}

	loader, err := storage.NewPostgresLoader(a.logger, connStr, a.config.Database.Postgres.BatchSize)
	if err != nil {
		return fail(err)
	}
	defer loader.Close()

	if _, err := loader.LoadHistory(a.store); err != nil {
		return fail(err)
	}
	if _, err := loader.LoadCompanies(a.store); err != nil {
		return fail(err)
	}
	return 0
}
