// Command marketdata runs the market-data service: it
// reconstructs per-symbol order books and OHLCV bars from a venue feed and
// publishes them on the bus.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SamoraDC/algotrading-core/internal/bus"
	"github.com/SamoraDC/algotrading-core/internal/config"
	"github.com/SamoraDC/algotrading-core/internal/health"
	"github.com/SamoraDC/algotrading-core/internal/marketdata"
	"github.com/SamoraDC/algotrading-core/internal/schema"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use: "marketdata",
		Short: "Run the market-data service",
		RunE: run,
	}
	root.Flags().StringVar(&configPath, "config", "config.yaml", "path to the configuration document")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()
	sugar := log.Sugar()

	cfg, err := config.Load(configPath)
	if err != nil {
		sugar.Fatalw("configuration invalid", "error", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		sugar.Infow("shutdown signal received")
		cancel()
	}()

	h := health.New("marketdata", cfg.MetricsAddr)
	h.Start()
	defer h.Shutdown(context.Background())

	busConn, err := bus.Connect(ctx, bus.Config{
		URLs: []string{cfg.Bus.MarketDataURL},
		Component: "marketdata",
		HeartbeatEvery: 10 * time.Second,
	}, sugar)
	if err != nil {
		sugar.Fatalw("bus connect failed", "error", err)
	}
	defer busConn.Shutdown("process exit", 2*time.Second)

	metrics := marketdata.NewMetrics(prometheus.DefaultRegisterer)

	var feed marketdata.VenueFeed
	switch {
	case cfg.Venue.ReplaySource != "":
		sugar.Infow("replaying historical bars", "source", cfg.Venue.ReplaySource)
		feed = marketdata.NewReplayFeed(cfg.Venue.ReplaySource, cfg.Venue.ReplaySpeed)
	case cfg.Venue.Simulated:
		sugar.Infow("running against the simulated venue feed")
		feed = marketdata.NewSimulatedFeed(time.Second, 0)
	default:
		feed = marketdata.NewBinanceStyleFeed(cfg.Venue.WSURL, cfg.Venue.RESTURL, cfg.Venue.APIKey, cfg.Venue.APISecret, sugar)
	}

	intervals := make(map[string]time.Duration, len(cfg.Intervals.BarIntervals))
	for _, iv := range cfg.Intervals.BarIntervals {
		d, err := time.ParseDuration(iv)
		if err != nil {
			sugar.Fatalw("invalid bar interval", "interval", iv, "error", err)
		}
		intervals[iv] = d
	}

	svc := marketdata.NewService(feed, busConn, h, metrics, sugar, intervals)

	symbols := make([]schema.Symbol, len(cfg.Symbols))
	for i, s := range cfg.Symbols {
		symbols[i] = schema.Intern(s)
	}

	h.SetStatus(health.StatusHealthy, "")
	return svc.Run(ctx, symbols)
}
