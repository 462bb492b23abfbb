package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/vitos/crypto_scale_out/internal/domain"
	"github.com/vitos/crypto_scale_out/internal/infrastructure/exchange"
	"github.com/vitos/crypto_scale_out/internal/infrastructure/logger"
	"github.com/vitos/crypto_scale_out/internal/infrastructure/storage"
	"github.com/vitos/crypto_scale_out/internal/usecase"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Venue struct {
		WSEndpoint string `yaml:"ws_endpoint"`
	} `yaml:"venue"`
	Trading struct {
		FeeRate float64 `yaml:"fee_rate"`
	} `yaml:"trading"`
	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
	Journal struct {
		Path string `yaml:"path"`
	} `yaml:"journal"`
}

func loadConfig(path string) (*Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Everything has a sane default; the config file is optional.
			return &cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	var (
		pair       = flag.String("pair", "", "trading pair, e.g. tBTCUSD (required)")
		amount     = flag.Float64("amount", 0, "trade amount, unsigned (required)")
		entry      = flag.Float64("entry", 0, "entry price; 0 submits a market order")
		stop       = flag.Float64("stop", 0, "stop price (required)")
		trigger    = flag.Float64("trigger", 0, "stop-limit entry: limit price for the triggered order")
		limitEntry = flag.Bool("limit", false, "enter with a limit order instead of a stop order")
		spot       = flag.Bool("exchange", false, "trade from the exchange wallet instead of margin")
		hidden     = flag.Bool("hidden", false, "hide exit orders from the public book")
		cancelAt   = flag.Float64("cancel-at", 0, "cancel the unfilled entry when price reaches this (default: stop price)")
		slippage   = flag.Float64("slippage", 0, "assumed stop slippage, e.g. 0.001 for 0.1%")
		target     = flag.Float64("target", 0, "fixed target price: one full-size OCO instead of scale-out")
		noScale    = flag.Bool("no-scale-out", false, "single full-size stop, no scale-out")
		configPath = flag.String("config", "config/config.yaml", "path to config file")
	)
	flag.Parse()

	if *target != 0 && *noScale {
		fmt.Fprintln(os.Stderr, "-target and -no-scale-out are mutually exclusive")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	exitMode := domain.ExitScaleOut
	switch {
	case *noScale:
		exitMode = domain.ExitSingleStop
	case *target != 0:
		exitMode = domain.ExitFixedTarget
	}

	intent := &domain.OrderIntent{
		Symbol:         *pair,
		Amount:         *amount,
		EntryPrice:     *entry,
		StopPrice:      *stop,
		StopLimitPrice: *trigger,
		LimitEntry:     *limitEntry,
		Margin:         !*spot,
		HiddenExits:    *hidden,
		CancelPrice:    *cancelAt,
		ExitMode:       exitMode,
		FixedTarget:    *target,
		SlippagePct:    *slippage,
		FeeRate:        cfg.Trading.FeeRate,
	}
	intent.Normalize()

	// Preconditions are checked before the venue is ever contacted.
	if err := intent.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid order: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	log, logPath, err := logger.NewRunLogger(cfg.Logging.Dir, intent.Symbol, cfg.Logging.Level, start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	runID := uuid.NewString()
	log = log.With(zap.String("run", runID), zap.String("pair", intent.Symbol))
	log.Info("starting lifecycle",
		zap.String("logFile", logPath),
		zap.Float64("amount", intent.Amount),
		zap.Float64("entry", intent.EntryPrice),
		zap.Float64("stop", intent.StopPrice),
		zap.String("exitMode", string(intent.ExitMode)),
		zap.Bool("short", intent.IsShort()),
		zap.Bool("margin", intent.Margin))

	// Credentials come from the environment, .env supported for convenience.
	_ = godotenv.Load()
	apiKey := os.Getenv("BFX_API_KEY")
	apiSecret := os.Getenv("BFX_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		log.Fatal("BFX_API_KEY and BFX_API_SECRET must be set")
	}

	var journal domain.TradeJournal
	journalPath := cfg.Journal.Path
	if journalPath == "" {
		journalPath = "trades.db"
	}
	sqliteJournal, err := storage.NewSQLiteJournal(journalPath)
	if err != nil {
		// The journal is informational; a broken journal must not stop a trade.
		log.Warn("journal unavailable, continuing without it", zap.Error(err))
	} else {
		defer sqliteJournal.Close()
		journal = sqliteJournal
		run := &domain.Run{
			ID:         runID,
			Symbol:     intent.Symbol,
			Amount:     intent.Amount,
			EntryPrice: intent.EntryPrice,
			StopPrice:  intent.StopPrice,
			ExitMode:   string(intent.ExitMode),
			StartedAt:  start,
		}
		if err := journal.SaveRun(context.Background(), run); err != nil {
			log.Warn("failed to journal run", zap.Error(err))
		}
	}

	session := exchange.NewBitfinexSession(apiKey, apiSecret, cfg.Venue.WSEndpoint, log)
	ctrl := usecase.NewLifecycleController(intent, journal, runID, log)

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)

	if err := ctrl.Run(context.Background(), session, stopCh); err != nil {
		log.Error("lifecycle ended with error", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}

	log.Info("done", zap.String("state", ctrl.State().String()))
}
