package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"

	"coinledger/config"
	"coinledger/internal/adapters/binanceclient"
	"coinledger/internal/adapters/ids"
	"coinledger/internal/adapters/logger"
	"coinledger/internal/adapters/sqlite"
	"coinledger/internal/app"
	"coinledger/internal/domain"
	"coinledger/internal/ports"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	var appLogger ports.Logger
	if cfg.LogFormat == "json" {
		zl, err := logger.NewZapLogger(cfg.LogLevel)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize logger: %v", err)
		}
		defer zl.Sync()
		appLogger = zl
	} else {
		appLogger = logger.NewStdLogger(cfg.LogLevel)
	}
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Price Feed (optional, public market data only)
	var priceFeed *binanceclient.Client
	if cfg.PriceFeedEnabled {
		priceFeed, err = binanceclient.New(binanceclient.Config{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.SecretKey,
			UseTestnet: cfg.IsTestnet,
			Logger:     appLogger,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance price feed")
			log.Fatalf("FATAL: Failed to initialize Binance price feed: %v", err)
		}
	}

	// 5. Initialize Accounting Service
	accountingService, err := app.NewAccountingService(appLogger, repo, repo.Portfolios(), ids.NewUUIDProvider())
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize accounting service")
		log.Fatalf("FATAL: Failed to initialize accounting service: %v", err)
	}

	// 6. Report on the configured portfolio
	if cfg.PortfolioID == "" {
		appLogger.Info(context.Background(), "No PORTFOLIO_ID configured, nothing to report")
		return
	}
	if err := report(context.Background(), accountingService, repo, priceFeed, cfg); err != nil {
		appLogger.Error(context.Background(), err, "Report failed")
		os.Exit(1)
	}
}

// report prints the realized summary of the configured portfolio and,
// when the price feed is enabled, the unrealized valuation of its open
// positions at current prices.
func report(ctx context.Context, svc *app.AccountingService, repo *sqlite.Repository, priceFeed *binanceclient.Client, cfg *config.Config) error {
	summary, err := svc.PortfolioSummary(ctx, cfg.PortfolioID)
	if err != nil {
		return err
	}

	fmt.Printf("Portfolio %s\n", cfg.PortfolioID)
	fmt.Printf("  LONG:  %d trades, %d wins, win rate %.1f%%, total profit %.2f USD\n",
		summary.Long.TotalTrades, summary.Long.WinningTrades, summary.Long.WinRate*100, summary.Long.TotalProfitUSD)
	fmt.Printf("  SHORT: %d trades, %d wins, win rate %.1f%%\n",
		summary.Short.TotalTrades, summary.Short.WinningTrades, summary.Short.WinRate*100)
	for symbol, coins := range summary.Short.ProfitCoins {
		fmt.Printf("         %s profit: %v %s\n", symbol, coins, symbol)
	}

	if priceFeed == nil {
		return nil
	}

	portfolio, err := repo.Portfolios().FindByID(ctx, cfg.PortfolioID)
	if err != nil {
		return err
	}
	if portfolio == nil {
		return fmt.Errorf("portfolio %s not found: %w", cfg.PortfolioID, ports.ErrNotFound)
	}
	symbols := make([]string, 0, len(portfolio.Coins))
	for _, coin := range portfolio.Coins {
		symbols = append(symbols, coin.Symbol+cfg.QuoteSuffix)
	}
	tickerPrices, err := priceFeed.GetTickerPrices(ctx, symbols)
	if err != nil {
		return err
	}
	prices := make(map[string]float64, len(portfolio.Coins))
	for _, coin := range portfolio.Coins {
		prices[coin.Symbol] = tickerPrices[coin.Symbol+cfg.QuoteSuffix]
	}

	positions, err := svc.UnrealizedPositions(ctx, cfg.PortfolioID, prices)
	if err != nil {
		return err
	}
	fmt.Printf("  Open positions: %d\n", len(positions))
	for _, pos := range positions {
		unit := "USD"
		if pos.Profit.Kind == domain.ProfitCoins {
			unit = pos.CoinSymbol
		}
		fmt.Printf("    %s %s: unrealized %.6f %s\n", pos.TradeID, pos.CoinSymbol, pos.Profit.Value, unit)
	}
	return nil
}
