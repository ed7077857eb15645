package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dca-grid-backtest-go/internal/backtest"
	"dca-grid-backtest-go/internal/config"
	"dca-grid-backtest-go/internal/logger"
	"dca-grid-backtest-go/internal/models"
	"dca-grid-backtest-go/internal/persistence"
	"dca-grid-backtest-go/internal/portfolio"
	"dca-grid-backtest-go/internal/pricedata"
	"dca-grid-backtest-go/internal/reporter"
	"dca-grid-backtest-go/internal/runner"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "single", "running mode: single, batch or portfolio")
	symbols := flag.String("symbol", "", "comma-separated symbols (overrides the config in single/batch mode)")
	startDate := flag.String("start", "", "start date (YYYY-MM-DD)")
	endDate := flag.String("end", "", "end date (YYYY-MM-DD)")
	dataDir := flag.String("data", "", "directory with daily bar CSV files (overrides data_dir)")
	download := flag.Bool("download", false, "download missing daily klines from Binance before running")
	save := flag.Bool("save", false, "persist the run result to the database")
	partial := flag.Bool("allow-partial", false, "accept a truncated data range instead of failing on a gap")
	workers := flag.Int("workers", 4, "worker count for batch mode")
	showTx := flag.Bool("transactions", false, "print the full transaction log")
	flag.Parse()

	// A default logger so config loading itself can log.
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("No .env file found, reading from system environment.")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.S().Fatalf("Failed to load config file: %v", err)
	}
	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	start, end, err := parseRange(*startDate, *endDate)
	if err != nil {
		logger.S().Fatal(err)
	}

	dir := cfg.DataDir
	if *dataDir != "" {
		dir = *dataDir
	}
	if dir == "" {
		dir = "data"
	}

	switch *mode {
	case "single":
		list := symbolList(*symbols)
		if len(list) != 1 {
			logger.S().Fatal("single mode needs exactly one -symbol")
		}
		runSingle(cfg, list[0], start, end, dir, *download, *save, *partial, *showTx)
	case "batch":
		list := symbolList(*symbols)
		if len(list) == 0 {
			list = cfg.Portfolio.Symbols
		}
		if len(list) == 0 {
			logger.S().Fatal("batch mode needs -symbol or portfolio.symbols in the config")
		}
		runBatch(cfg, list, start, end, dir, *download, *partial, *workers)
	case "portfolio":
		runPortfolio(cfg, start, end, dir, *download, *save, *partial, *showTx)
	default:
		logger.S().Fatalf("Unknown mode %q: choose 'single', 'batch' or 'portfolio'.", *mode)
	}
}

func parseRange(startDate, endDate string) (time.Time, time.Time, error) {
	if startDate == "" || endDate == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("both -start and -end are required (YYYY-MM-DD)")
	}
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad start date: %v", err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad end date: %v", err)
	}
	return start.UTC(), end.UTC(), nil
}

func symbolList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}

// loadBars returns the daily bars for one symbol, downloading the CSV first
// when asked and the cache file is missing.
func loadBars(ctx context.Context, dir, symbol string, start, end time.Time, download bool) ([]models.Bar, error) {
	path := filepath.Join(dir, symbol+".csv")
	if download {
		d := pricedata.NewKlineDownloader()
		if err := d.DownloadDailyKlines(ctx, symbol, path, start, end); err != nil {
			return nil, fmt.Errorf("download %s: %w", symbol, err)
		}
	}
	provider := pricedata.NewCSVProvider(dir)
	return provider.DailyBars(ctx, symbol, start, end)
}

func runSingle(cfg *models.AppConfig, symbol string, start, end time.Time, dir string, download, save, partial, showTx bool) {
	bars, err := loadBars(context.Background(), dir, symbol, start, end, download)
	if err != nil {
		logger.S().Fatalf("Failed to load bars for %s: %v", symbol, err)
	}

	res, err := backtest.Run(backtest.Request{
		Symbol:            symbol,
		Start:             start,
		End:               end,
		Config:            cfg.Strategy,
		AllowPartialRange: partial,
	}, bars)
	if err != nil {
		logger.S().Fatalf("Backtest failed: %v", err)
	}
	for _, w := range res.Warnings {
		logger.S().Warn(w)
	}

	metrics := reporter.Compute(res.EquityCurve, res.Transactions, res.TotalCapital, start, end)
	reporter.PrintReport(os.Stdout, fmt.Sprintf("Backtest %s", symbol), metrics)
	if showTx {
		reporter.PrintTransactions(os.Stdout, res.Transactions)
	}

	if save {
		persistRun(cfg, &models.RunResult{
			Mode:         "single",
			Symbols:      []string{symbol},
			Start:        start,
			End:          end,
			CreatedAt:    time.Now().UTC(),
			Transactions: res.Transactions,
			EquityCurve:  res.EquityCurve,
			FinalEquity:  metrics.FinalEquity,
			Warnings:     res.Warnings,
		})
	}
}

func runBatch(cfg *models.AppConfig, symbols []string, start, end time.Time, dir string, download, partial bool, workers int) {
	ctx := context.Background()
	jobs := make([]runner.Job, 0, len(symbols))
	for _, sym := range symbols {
		bars, err := loadBars(ctx, dir, sym, start, end, download)
		if err != nil {
			logger.S().Fatalf("Failed to load bars for %s: %v", sym, err)
		}
		jobs = append(jobs, runner.Job{
			Request: backtest.Request{
				Symbol:            sym,
				Start:             start,
				End:               end,
				Config:            cfg.Strategy,
				AllowPartialRange: partial,
			},
			Bars: bars,
		})
	}

	results, err := runner.RunAll(ctx, jobs, workers)
	if err != nil {
		logger.S().Fatalf("Batch run failed: %v", err)
	}
	for _, res := range results {
		metrics := reporter.Compute(res.EquityCurve, res.Transactions, res.TotalCapital, start, end)
		reporter.PrintReport(os.Stdout, fmt.Sprintf("Backtest %s", res.Symbol), metrics)
	}
}

func runPortfolio(cfg *models.AppConfig, start, end time.Time, dir string, download, save, partial, showTx bool) {
	pcfg := cfg.Portfolio
	if len(pcfg.Symbols) == 0 {
		logger.S().Fatal("portfolio mode needs portfolio.symbols in the config")
	}

	liquidations := make(map[string]time.Time, len(pcfg.Liquidations))
	for sym, date := range pcfg.Liquidations {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			logger.S().Fatalf("Bad liquidation date for %s: %v", sym, err)
		}
		liquidations[sym] = t.UTC()
	}

	ctx := context.Background()
	series := make(map[string][]models.Bar, len(pcfg.Symbols))
	for _, sym := range pcfg.Symbols {
		bars, err := loadBars(ctx, dir, sym, start, end, download)
		if err != nil {
			logger.S().Fatalf("Failed to load bars for %s: %v", sym, err)
		}
		series[sym] = bars
	}

	res, err := portfolio.Run(portfolio.Request{
		Symbols:           pcfg.Symbols,
		Start:             start,
		End:               end,
		TotalCapitalUSD:   pcfg.TotalCapitalUSD,
		MarginPercent:     pcfg.MarginPercent,
		Base:              cfg.Strategy,
		Overrides:         pcfg.Overrides,
		Liquidations:      liquidations,
		AllowPartialRange: partial,
	}, series)
	if err != nil {
		logger.S().Fatalf("Portfolio backtest failed: %v", err)
	}
	for _, w := range res.Warnings {
		logger.S().Warn(w)
	}

	metrics := reporter.Compute(res.EquityCurve, res.Transactions, res.Final.TotalCapital, start, end)
	reporter.PrintReport(os.Stdout, fmt.Sprintf("Portfolio backtest (%d symbols)", len(pcfg.Symbols)), metrics)
	if showTx {
		reporter.PrintTransactions(os.Stdout, res.Transactions)
	}

	if save {
		sorted := append([]string(nil), pcfg.Symbols...)
		sort.Strings(sorted)
		persistRun(cfg, &models.RunResult{
			Mode:         "portfolio",
			Symbols:      sorted,
			Start:        start,
			End:          end,
			CreatedAt:    time.Now().UTC(),
			Transactions: res.Transactions,
			EquityCurve:  res.EquityCurve,
			FinalEquity:  metrics.FinalEquity,
			Warnings:     res.Warnings,
		})
	}
}

func persistRun(cfg *models.AppConfig, result *models.RunResult) {
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "runs.db"
	}
	repo, err := persistence.NewBadgerRepository(dbPath)
	if err != nil {
		logger.S().Errorf("Failed to open run database: %v", err)
		return
	}
	defer repo.Close()
	id, err := repo.SaveResult(result)
	if err != nil {
		logger.S().Errorf("Failed to save run result: %v", err)
		return
	}
	logger.S().Infof("Run result saved with id %s", id)
}
