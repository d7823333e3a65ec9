package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/trailguard/core"
	"github.com/web3guy0/trailguard/exec"
	"github.com/web3guy0/trailguard/execution"
	"github.com/web3guy0/trailguard/internal/binance"
	"github.com/web3guy0/trailguard/internal/bot"
	"github.com/web3guy0/trailguard/internal/config"
	"github.com/web3guy0/trailguard/internal/database"
	"github.com/web3guy0/trailguard/internal/metrics"
	"github.com/web3guy0/trailguard/internal/webhook"
	"github.com/web3guy0/trailguard/risk"
	"github.com/web3guy0/trailguard/types"
)

func main() {
	// ═══════════════════════════════════════════════════════════════════════════════
	// BOOTSTRAP
	// ═══════════════════════════════════════════════════════════════════════════════

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found")
	}

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msg("═══════════════════════════════════════════════════════════════")
	log.Info().Msg("              TRAILGUARD - TRAILING STOP MANAGER")
	log.Info().Msg("═══════════════════════════════════════════════════════════════")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ═══════════════════════════════════════════════════════════════════════════════
	// INITIALIZE COMPONENTS
	// ═══════════════════════════════════════════════════════════════════════════════

	// 1. Trade log
	var trades types.TradeLogger
	var history bot.TradeHistory
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Warn().Err(err).Msg("Database connection failed, continuing without trade log")
	} else {
		trades, history = db, db
		log.Info().Msg("✅ Trade log initialized")
	}

	// 2. Exchange gateway
	live := exec.NewClient(cfg.APIKey, cfg.APISecret, cfg.TestMode)
	var gateway exec.Gateway = live
	if cfg.DryRun {
		gateway = exec.NewPaperGateway(live, cfg.QuoteAsset, cfg.PaperQuoteBalance)
	} else if err := live.SetLeverage(ctx, cfg.Symbol, int(cfg.Leverage.IntPart())); err != nil {
		log.Warn().Err(err).Msg("Failed to set leverage, using exchange setting")
	}
	log.Info().Bool("paper", cfg.DryRun).Msg("✅ Gateway initialized")

	// 3. Observers
	recorder := metrics.NewRecorder()
	observers := types.Observers{types.LogObserver{}, recorder}

	var notifier *bot.Notifier
	var startBot func()
	if cfg.TelegramToken != "" {
		n, api, err := bot.New(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram disabled")
		} else {
			notifier = n
			observers = append(observers, notifier)
			startBot = func() {
				u := tgbotapi.NewUpdate(0)
				u.Timeout = 60
				notifier.Start(api.GetUpdatesChan(u))
			}
		}
	}

	// 4. Execution
	executor := execution.NewExecutor(gateway, execution.ExecutorConfig{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
	}, observers)
	recorder.TrackExecution(executor)
	log.Info().Msg("✅ Execution layer initialized")

	// 5. Position manager
	store := core.NewPositionStore()
	manager := risk.NewManager(risk.ManagerConfig{
		TrailingStopPercent:  cfg.TrailingStopPercent,
		EmergencyExitPercent: cfg.EmergencyExitPercent,
		TriggerBasis:         cfg.TriggerBasis,
	}, store, executor, trades, observers)
	log.Info().Msg("✅ Risk layer initialized")

	// 6. Price source
	var feed core.PriceSource = core.NewGatewayPriceSource(gateway, cfg.TriggerBasis)
	var stream *binance.MarkStream
	if cfg.PriceFeed == "stream" {
		url := binance.FuturesWSURL
		if cfg.TestMode {
			url = binance.FuturesTestnetWSURL
		}
		stream = binance.NewMarkStream(url, cfg.Symbol, cfg.TriggerBasis)
		stream.Start()
		feed = stream
	}

	// 7. Core engine
	engine := core.NewEngine(core.EngineConfig{
		Symbol:       cfg.Symbol,
		BaseAsset:    cfg.BaseAsset,
		QuoteAsset:   cfg.QuoteAsset,
		Leverage:     cfg.Leverage,
		PollInterval: cfg.PollInterval,
		Basis:        cfg.TriggerBasis,
	}, store, manager, executor, feed, trades, observers)
	log.Info().Msg("✅ Core engine initialized")

	// ═══════════════════════════════════════════════════════════════════════════════
	// PRINT CONFIG
	// ═══════════════════════════════════════════════════════════════════════════════

	mode := "LIVE TRADING"
	if cfg.DryRun {
		mode = "PAPER TRADING"
	}
	log.Info().Msg("")
	log.Info().Msg("╔══════════════════════════════════════════════════════════════╗")
	log.Info().Msgf("║  Mode: %-54s║", mode)
	log.Info().Msgf("║  Symbol: %-52s║", cfg.Symbol)
	log.Info().Msgf("║  Trailing stop: %-45s║", cfg.TrailingStopPercent.Shift(2).String()+"% on "+string(cfg.TriggerBasis))
	log.Info().Msgf("║  Emergency exit: %-44s║", cfg.EmergencyExitPercent.Shift(2).String()+"%")
	log.Info().Msgf("║  Leverage: %-50s║", cfg.Leverage.String()+"x")
	log.Info().Msgf("║  Price feed: %-48s║", cfg.PriceFeed)
	log.Info().Msg("╚══════════════════════════════════════════════════════════════╝")
	log.Info().Msg("")

	// ═══════════════════════════════════════════════════════════════════════════════
	// START
	// ═══════════════════════════════════════════════════════════════════════════════

	if notifier != nil {
		notifier.Attach(engine, history)
		startBot()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", recorder.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("📊 Serving metrics")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	hook := webhook.NewServer(fmt.Sprintf(":%d", cfg.Port), cfg.AuthID, engine, 32)
	hook.Start(ctx)

	engine.Start(ctx)
	log.Info().Msg("🚀 All systems running...")

	// ═══════════════════════════════════════════════════════════════════════════════
	// GRACEFUL SHUTDOWN
	// ═══════════════════════════════════════════════════════════════════════════════

	<-ctx.Done()
	log.Info().Msg("🛑 Shutting down...")

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	_ = hook.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	engine.Stop()
	if stream != nil {
		stream.Stop()
	}
	if notifier != nil {
		notifier.Stop()
	}
	if db != nil {
		db.Close()
	}

	log.Info().Msg("👋 Goodbye!")
}
