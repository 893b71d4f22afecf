package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"stockpilot/internal/advisor"
	"stockpilot/internal/broker"
	"stockpilot/internal/config"
	tradeerrors "stockpilot/internal/errors"
	"stockpilot/internal/journal"
	"stockpilot/internal/logger"
	"stockpilot/internal/market"
	"stockpilot/internal/monitoring"
	"stockpilot/internal/notifications"
	"stockpilot/internal/portfolio"
	"stockpilot/internal/risk"
	"stockpilot/internal/scheduler"
	"stockpilot/internal/state"
	"stockpilot/internal/trader"
	"stockpilot/pkg/reporting"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional, defaults apply)")
	once := flag.String("once", "", "run the named cycle immediately and exit")
	flag.Parse()

	// .env is optional; real deployments use actual environment variables.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	botLog, err := logger.New(cfg.Bot.Name)
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer botLog.Close()

	if err := run(cfg, botLog, *once); err != nil {
		botLog.LogError("Bot terminated", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, botLog *logger.Logger, once string) error {
	provider := market.NewAlpacaProvider(
		cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.Market.DataURL,
		cfg.Market.Sectors, cfg.Market.HistoryDays)

	var notifier notifications.Notifier
	if cfg.Notifications.TelegramToken != "" {
		notifier = notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID)
	} else {
		botLog.Info("Telegram not configured, alerts go to the log")
		notifier = notifications.NewLogNotifier(botLog)
	}

	var b broker.Broker
	if cfg.Broker.Paper {
		b = broker.NewPaperBroker()
	} else {
		if cfg.Broker.APIKey == "" || cfg.Broker.APISecret == "" {
			return tradeerrors.New(tradeerrors.ErrorCategoryCredentials, "bot", "startup",
				"live trading requires ALPACA_API_KEY and ALPACA_SECRET_KEY")
		}
		b = broker.NewAlpacaBroker(cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.Broker.BaseURL, botLog)
	}

	health := monitoring.NewHealthChecker()

	jnl, err := journal.Open(cfg.Bot.JournalPath)
	if err != nil {
		return err
	}
	defer jnl.Close()

	detector := risk.NewRegimeDetector(provider, cfg.Risk.BenchmarkTicker, cfg.Risk.RegimeTTL, botLog)
	engine := risk.NewEngine(risk.Policy{
		MaxPositionPct:     cfg.Risk.MaxPositionPct,
		BearMaxPositionPct: cfg.Risk.BearMaxPositionPct,
		SidewaysCapFactor:  cfg.Risk.SidewaysCapFactor,
		SectorMaxPct:       cfg.Risk.SectorMaxPct,
		MinDollarVolume:    cfg.Risk.MinDollarVolume,
		MinPrice:           cfg.Risk.MinPrice,
		MaxSpreadPct:       cfg.Risk.MaxSpreadPct,
	}, provider, detector, botLog)

	coordinator, err := trader.New(cfg, trader.Deps{
		Provider: provider,
		Advisor:  advisor.NewOpenAIAdvisor(cfg.Advisor, botLog),
		Engine:   engine,
		Machine:  portfolio.NewMachine(cfg.Risk.StopLossPct),
		Broker:   b,
		Store:    state.NewStore(cfg.Bot.StateFile, cfg.Bot.StartingCash, botLog),
		Journal:  jnl,
		Notifier: notifier,
		Health:   health,
		Log:      botLog,
	})
	if err != nil {
		return err
	}

	sched, err := scheduler.New(cfg.Schedule, coordinator.RunCycle, botLog)
	if err != nil {
		return err
	}

	console := reporting.NewConsoleReporter()
	console.PrintStartup(cfg.Bot.Name, b.Name(), sched.CycleNames(), cfg.Bot.StartingCash)

	if once != "" {
		botLog.Info("Running single cycle %q", once)
		return coordinator.RunCycle(context.Background(), once)
	}

	go serveMonitoring(cfg.Monitoring.ListenAddr, health, botLog)
	notifier.SendAlert("info", fmt.Sprintf("%s started (%s broker)", cfg.Bot.Name, b.Name()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = sched.Run(ctx)
	notifier.SendAlert("info", fmt.Sprintf("%s stopped", cfg.Bot.Name))
	return err
}

func serveMonitoring(addr string, health *monitoring.HealthChecker, botLog *logger.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/health", health)
	mux.Handle("/metrics", monitoring.NewMetricsHandler())

	botLog.Info("Monitoring listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		botLog.LogError("Monitoring server stopped", err)
	}
}
