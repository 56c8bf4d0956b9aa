package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marginguard/marginguard/internal/domain"
	"github.com/marginguard/marginguard/internal/infrastructure/exchange"
	"github.com/marginguard/marginguard/internal/infrastructure/logger"
	"github.com/marginguard/marginguard/internal/infrastructure/notify"
	"github.com/marginguard/marginguard/internal/infrastructure/provider"
	"github.com/marginguard/marginguard/internal/infrastructure/storage"
	"github.com/marginguard/marginguard/internal/marketdata"
	"github.com/marginguard/marginguard/internal/usecase"
	"github.com/marginguard/marginguard/internal/web"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Exchange struct {
		APIKey       string `yaml:"api_key"`
		APISecret    string `yaml:"api_secret"`
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
		RefSymbol    string `yaml:"ref_symbol"`
	} `yaml:"exchange"`
	Providers struct {
		BinanceEndpoint   string `yaml:"binance_endpoint"`
		BinanceSymbol     string `yaml:"binance_symbol"`
		CoinGeckoEndpoint string `yaml:"coingecko_endpoint"`
		CoinGeckoCoin     string `yaml:"coingecko_coin"`
		CoinGeckoVs       string `yaml:"coingecko_vs"`
	} `yaml:"providers"`
	Notifications struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"notifications"`
	Scheduler struct {
		CadencesMs    map[string]int `yaml:"cadences_ms"`
		TickTimeoutMs int            `yaml:"tick_timeout_ms"`
	} `yaml:"scheduler"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Logging struct {
		Level         string `yaml:"level"`
		SchedulerFile string `yaml:"scheduler_file"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	// 1. Load Config
	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "guard.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Exchange (Bybit) - position source, action executor and primary price provider
	bybit := exchange.NewBybitAdapter(
		cfg.Exchange.APIKey, cfg.Exchange.APISecret,
		cfg.Exchange.RESTEndpoint, cfg.Exchange.WSEndpoint,
		cfg.Exchange.RefSymbol, log)
	if err := bybit.ConnectWS(); err != nil {
		// REST still serves the primary tier; the stream is an optimization.
		log.Warn("Failed to connect price stream", zap.Error(err))
	} else {
		defer bybit.CloseWS()
	}

	// 5. Market data resilience layer: bybit -> binance -> coingecko
	providers := []domain.PriceProvider{
		bybit,
		provider.NewBinance(cfg.Providers.BinanceEndpoint, cfg.Providers.BinanceSymbol),
		provider.NewCoinGecko(cfg.Providers.CoinGeckoEndpoint, cfg.Providers.CoinGeckoCoin, cfg.Providers.CoinGeckoVs),
	}
	market := marketdata.NewService(providers, log)

	// 6. Core services
	plan := usecase.NewPlanService()
	gate := usecase.NewProtectionGate(market, usecase.NewRepositoryRiskAssessor(store), log)
	engine := usecase.NewExecutionEngine(bybit, log)
	notifier := usecase.NewNotifier(notify.NewTransport(cfg.Notifications.WebhookURL, log), log)

	// Tick-level logging is chatty; keep it out of the main stream.
	schedLogPath := cfg.Logging.SchedulerFile
	if schedLogPath == "" {
		schedLogPath = "scheduler.log"
	}
	schedLog, err := logger.NewFileLogger(schedLogPath, cfg.Logging.Level)
	if err != nil {
		log.Fatal("Failed to init scheduler logger", zap.Error(err))
	}
	defer schedLog.Sync()

	scheduler := usecase.NewScheduler(store, store, bybit, market, gate, engine, notifier, schedLog)
	for name, ms := range cfg.Scheduler.CadencesMs {
		if tier, ok := domain.ParseTier(name); ok {
			scheduler.SetCadence(tier, time.Duration(ms)*time.Millisecond)
		}
	}
	scheduler.SetTickTimeout(time.Duration(cfg.Scheduler.TickTimeoutMs) * time.Millisecond)
	automation := usecase.NewAutomationService(store, plan, scheduler, log)

	// 7. Warm the market cache before the first ticks fire.
	if _, err := market.ForceRefresh(context.Background()); err != nil {
		log.Error("Failed to prime market data cache", zap.Error(err))
	}

	// 8. Arm schedules for every active automation.
	rootCtx, stopSchedules := context.WithCancel(context.Background())
	if err := scheduler.StartAll(rootCtx); err != nil {
		log.Fatal("Failed to arm schedules", zap.Error(err))
	}
	log.Info("Schedules armed", zap.Int("count", scheduler.ActiveCount()))

	// 9. Init Web Server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080 // Default
	}
	server := web.NewServer(port, automation, plan, market, gate, scheduler, store, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 10. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	stopSchedules()
	scheduler.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
}
