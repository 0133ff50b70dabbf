package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"PriceScanner/internal/app"
	"PriceScanner/internal/config"
	"PriceScanner/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "run a single scrape and exit")
	retailerID := flag.String("retailer", "", "retailer id for -once (default: all retailers)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application init failed", "error", err)
		os.Exit(1)
	}

	if *once {
		summary, err := application.RunOnce(ctx, *retailerID)
		if err != nil {
			logger.Error("scrape failed", "error", err)
			os.Exit(1)
		}
		logger.Info("scrape finished",
			"run", summary.RunID,
			"success", summary.Success,
			"products", summary.ProductsFound,
			"inserted", summary.Inserted,
			"updated", summary.Updated,
			"errors", summary.ErrorCount,
		)
		if !summary.Success {
			os.Exit(2)
		}
		return
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
