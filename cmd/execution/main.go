// Command execution runs the execution-engine service: it
// submits approved orders to the venue, tracks them through the order
// state machine, and publishes fills and order status.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SamoraDC/algotrading-core/internal/bus"
	"github.com/SamoraDC/algotrading-core/internal/config"
	"github.com/SamoraDC/algotrading-core/internal/execution"
	"github.com/SamoraDC/algotrading-core/internal/health"
	"github.com/SamoraDC/algotrading-core/internal/schema"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use: "execution",
		Short: "Run the execution-engine service",
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

	h := health.New("execution", cfg.MetricsAddr)

	busConn, err := bus.Connect(ctx, bus.Config{
		URLs: []string{cfg.Bus.ExecutionURL},
		Component: "execution",
		HeartbeatEvery: 10 * time.Second,
	}, sugar)
	if err != nil {
		sugar.Fatalw("bus connect failed", "error", err)
	}
	defer busConn.Shutdown("process exit", 2*time.Second)

	limiter := execution.NewRateLimiter(cfg.Execution.RateLimitPerMinute, time.Duration(cfg.Execution.RateLimitWaitSecs)*time.Second)
	retry := execution.RetryPolicy{
		MaxRetries: cfg.Execution.MaxRetries,
		InitialWait: time.Duration(cfg.Execution.BackoffInitialMs) * time.Millisecond,
		MaxWait: time.Duration(cfg.Execution.BackoffCapMs) * time.Millisecond,
	}

	paperCfg := execution.PaperConfig{
		FeeBps: decimal.NewFromFloat(7.5),
		MakerRebateBps: decimal.NewFromFloat(2.5),
		SlippageBps: decimal.NewFromFloat(1.5),
		MaxSlippageBps: decimal.NewFromFloat(cfg.Execution.MaxSlippageBps),
		SpreadCoeff: decimal.NewFromFloat(0.5),
		OFICoeff: decimal.NewFromFloat(0.5),
		Latency: execution.PaperLatencyConfig{MeanMs: 80, P95Ms: 250},
		PartialFill: execution.PaperPartialFillConfig{Enabled: true, MinSlicePct: 0.2, MaxSlices: 4},
	}
	if err := paperCfg.Validate(); err != nil {
		sugar.Fatalw("paper venue configuration invalid", "error", err)
	}
	paper := execution.NewPaperVenueClient(paperCfg, nil, h)

	var live execution.VenueClient
	if cfg.Venue.RESTURL != "" {
		live = execution.NewRESTVenueClient(cfg.Venue.RESTURL, cfg.Venue.APIKey, cfg.Execution.RequestTimeout())
	}

	initialMode := "paper"
	var initialVenue execution.VenueClient = paper
	if !cfg.Venue.PaperMode && live != nil {
		initialVenue = live
		initialMode = "live"
	}

	svc := execution.NewService(busConn, initialVenue, limiter, retry, decimal.NewFromFloat(cfg.Execution.MaxSlippageBps), sugar, h)
	paper.SetFillCallback(svc.HandleFillEvent)

	mc := &modeController{svc: svc, paper: paper, live: live, mode: initialMode}
	h.RegisterModeSetter(mc, "paper", "live")
	h.Start()
	defer h.Shutdown(context.Background())

	books := execution.NewBookCache()
	_, err = busConn.SubscribePrefix(schema.TopicMarketOrderBook, func(_ string, msgType schema.MessageType, data []byte) {
		if msgType != schema.TypeOrderBookView {
			return
		}
		var view schema.OrderBookView
		if err := schema.DecodeAs(data, schema.TypeOrderBookView, &view); err != nil {
			return
		}
		books.Update(view)
		// Registration is idempotent, so re-registering on every update for
		// a symbol already known costs a map write but never a duplicate
		// watcher.
		svc.RegisterBook(view.Symbol, books.For(view.Symbol))
		paper.RegisterBook(view.Symbol, books.For(view.Symbol))
	})
	if err != nil {
		sugar.Fatalw("order book subscription failed", "error", err)
	}

	if err := svc.ReconcileOpenOrders(ctx, "execution"); err != nil {
		sugar.Warnw("restart reconciliation failed", "error", err)
	}

	h.SetStatus(health.StatusHealthy, "")
	return svc.Run(ctx.Done())
}

// modeController backs the /mode endpoint: it lets an operator move the
// engine between the simulated paper venue and the live one without a
// restart, refused by Service.SetVenue while orders are in flight.
type modeController struct {
	svc *execution.Service
	paper *execution.PaperVenueClient
	live execution.VenueClient

	mu sync.Mutex
	mode string
}

func (m *modeController) Mode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *modeController) SetMode(mode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mode == m.mode {
		return nil
	}
	var venue execution.VenueClient = m.paper
	if mode == "live" {
		if m.live == nil {
			return fmt.Errorf("no live venue configured")
		}
		venue = m.live
	}
	if err := m.svc.SetVenue(venue); err != nil {
		return err
	}
	m.mode = mode
	return nil
}
