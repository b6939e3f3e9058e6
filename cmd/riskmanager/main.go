// Command riskmanager runs the risk-manager service: it
// gates candidate orders against policy, maintains authoritative
// positions/P&L, and operates the circuit breaker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SamoraDC/algotrading-core/internal/bus"
	"github.com/SamoraDC/algotrading-core/internal/config"
	"github.com/SamoraDC/algotrading-core/internal/health"
	"github.com/SamoraDC/algotrading-core/internal/risk"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use: "riskmanager",
		Short: "Run the risk-manager service",
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

	h := health.New("riskmanager", cfg.MetricsAddr)
	h.Start()
	defer h.Shutdown(context.Background())

	busConn, err := bus.Connect(ctx, bus.Config{
		URLs: []string{cfg.Bus.RiskManagerURL},
		Component: "riskmanager",
		HeartbeatEvery: 10 * time.Second,
	}, sugar)
	if err != nil {
		sugar.Fatalw("bus connect failed", "error", err)
	}
	defer busConn.Shutdown("process exit", 2*time.Second)

	limits := risk.Limits{
		MaxPositionSize: decimal.NewFromFloat(cfg.Risk.MaxPositionSize),
		MaxOrderSize: decimal.NewFromFloat(cfg.Risk.MaxOrderSize),
		MaxNotionalExposure: decimal.NewFromFloat(cfg.Risk.MaxNotionalExposure),
		MaxOpenPositions: cfg.Risk.MaxOpenPositions,
		ConcentrationPct: decimal.NewFromFloat(cfg.Risk.ConcentrationPct),
		MaxDailyLoss: decimal.NewFromFloat(cfg.Risk.MaxDailyLoss),
	}
	stopCfg := risk.StopConfig{
		StopLossPct: decimal.NewFromFloat(cfg.Risk.StopLossPct),
		TrailingPct: decimal.NewFromFloat(cfg.Risk.TrailingStopPct),
		TrailingStopRef: risk.TrailingStopRef(cfg.Risk.TrailingStopRef),
	}

	sessionBoundary, err := parseSessionBoundary(cfg.Risk.SessionBoundaryUTC)
	if err != nil {
		sugar.Fatalw("invalid session boundary", "error", err)
	}

	svc := risk.NewService(busConn, sugar, h,
		limits, stopCfg,
		time.Duration(cfg.Risk.BreakerCooldownSecs)*time.Second,
		sessionBoundary,
	)

	go sessionResetLoop(ctx, svc)
	go breakerStatusLoop(ctx, svc)

	h.SetStatus(health.StatusHealthy, "")
	done := ctx.Done()
	return svc.Run(done)
}

func sessionResetLoop(ctx context.Context, svc *risk.Service) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			svc.MaybeResetSession(now.UTC())
		}
	}
}

// breakerStatusLoop keeps downstream consumers current on the breaker's
// state without them polling for it.
func breakerStatusLoop(ctx context.Context, svc *risk.Service) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			svc.PublishBreakerStatus(now.UTC())
		}
	}
}

func parseSessionBoundary(hhmm string) (time.Duration, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
