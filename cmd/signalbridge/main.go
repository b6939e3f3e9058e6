// Command signalbridge runs the signal-bridge service: it
// maintains per-symbol indicator state, calls the inference collaborator
// on every bar close, and publishes trading signals.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SamoraDC/algotrading-core/internal/bus"
	"github.com/SamoraDC/algotrading-core/internal/config"
	"github.com/SamoraDC/algotrading-core/internal/health"
	"github.com/SamoraDC/algotrading-core/internal/signalbridge"
)

var (
	configPath string
	modelPath string
	confThreshold float64
)

func main() {
	root := &cobra.Command{
		Use: "signalbridge",
		Short: "Run the signal-bridge service",
		RunE: run,
	}
	root.Flags().StringVar(&configPath, "config", "config.yaml", "path to the configuration document")
	root.Flags().StringVar(&modelPath, "model", "", "path to an external inference model (empty uses the built-in rule-based model)")
	root.Flags().Float64Var(&confThreshold, "confidence-threshold", 0.6, "predictions below this confidence collapse to Hold")

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

	h := health.New("signalbridge", cfg.MetricsAddr)
	h.Start()
	defer h.Shutdown(context.Background())

	busConn, err := bus.Connect(ctx, bus.Config{
		URLs: []string{cfg.Bus.SignalBridgeURL},
		Component: "signalbridge",
		HeartbeatEvery: 10 * time.Second,
	}, sugar)
	if err != nil {
		sugar.Fatalw("bus connect failed", "error", err)
	}
	defer busConn.Shutdown("process exit", 2*time.Second)

	model, err := loadModel(ctx, modelPath)
	if err != nil {
		sugar.Fatalw("model load failed", "error", err)
	}

	svc := signalbridge.NewService(busConn, model, h, sugar, confThreshold)

	h.SetStatus(health.StatusHealthy, "")
	return svc.Run(ctx)
}

// loadModel resolves the configured external model, falling back to the
// deterministic rule-based model when none is configured. The core only
// depends on the Model interface and this loader, never on a specific
// inference framework.
func loadModel(_ context.Context, path string) (signalbridge.Model, error) {
	if path == "" {
		return signalbridge.NewRuleBasedModel(), nil
	}
	// A real external model loader plugs in here; until one is wired, any
	// configured path still runs against the rule-based model.
	return signalbridge.NewRuleBasedModel(), nil
}
