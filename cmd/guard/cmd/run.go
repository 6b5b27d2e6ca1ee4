package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	brokersim "github.com/rustyeddy/tradeguard/broker/sim"
	"github.com/rustyeddy/tradeguard/config"
	"github.com/rustyeddy/tradeguard/engine"
	"github.com/rustyeddy/tradeguard/journal"
	"github.com/rustyeddy/tradeguard/log"
	"github.com/rustyeddy/tradeguard/metrics"
	"github.com/rustyeddy/tradeguard/monitor"
	"github.com/rustyeddy/tradeguard/risk"
	"github.com/rustyeddy/tradeguard/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine with the price monitor and metrics listener",
	RunE:  runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := log.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Account.Mode == "live" {
		// Only the sim venue ships in this repository; live execution and
		// price-feed adapters are wired in by the embedding service.
		return fmt.Errorf("live mode needs an exchange adapter; this binary only links the sim venue")
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	jrnl, err := journalFromConfig(cfg.Journal)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	venue := brokersim.New(decimal.NewFromFloat(0.001))
	eng := engine.New(engine.Options{
		Policy:     risk.PolicyFromConfig(cfg.Risk),
		Protection: cfg.Protection,
		Exec:       venue,
		Store:      st,
		Journal:    jrnl,
		Logger:     logger,
	})
	if err := eng.AddAccount(cfg.Account.ID, decimal.NewFromFloat(cfg.Account.Balance)); err != nil {
		return err
	}

	interval, _ := cfg.Monitor.ParseInterval()
	timeout, _ := cfg.Monitor.ParsePriceTimeout()
	mon := monitor.New(eng, venue, monitor.Options{
		Interval: interval,
		Timeout:  timeout,
		Fetches:  cfg.Monitor.MaxFetches,
	}, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			logger.Info("metrics listener started", zap.String("addr", cfg.Metrics.Listen))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics listener failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if err := mon.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down, waiting for in-flight scan")
	mon.Wait()
	return nil
}

func loadConfig() (*config.Config, error) {
	if cfgPath == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(cfgPath)
}

func journalFromConfig(cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "./journal.sqlite"
		}
		return journal.NewSQLite(path)
	case "csv":
		base := cfg.Path
		if base == "" {
			base = "./journal"
		}
		return journal.NewCSV(base+"_trades.csv", base+"_risk.csv", base+"_failures.csv")
	default:
		return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
	}
}
