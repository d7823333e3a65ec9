package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/trailguard/exec"
	"github.com/web3guy0/trailguard/execution"
	"github.com/web3guy0/trailguard/risk"
	"github.com/web3guy0/trailguard/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE - Central orchestrator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   Signal → Router → Sizing → Execution → Store
//   PriceSource → PriceCache → Position Manager → Execution → Trade log
//
// ═══════════════════════════════════════════════════════════════════════════════

// ErrNoPrice is returned when a price source has nothing usable
var ErrNoPrice = errors.New("no price available")

// PriceSource supplies the price that drives the management loop
type PriceSource interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// GatewayPriceSource polls the gateway ticker
type GatewayPriceSource struct {
	market exec.MarketData
	basis  types.PriceBasis
}

// NewGatewayPriceSource creates a polling price source
func NewGatewayPriceSource(market exec.MarketData, basis types.PriceBasis) *GatewayPriceSource {
	return &GatewayPriceSource{market: market, basis: basis}
}

// Price implements PriceSource
func (s *GatewayPriceSource) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ticker, err := s.market.FetchTicker(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	price := ticker.Price(s.basis)
	if !price.IsPositive() {
		return decimal.Zero, ErrNoPrice
	}
	return price, nil
}

// EngineConfig holds engine settings
type EngineConfig struct {
	Symbol       string           // unified symbol, e.g. BTC/USDT
	BaseAsset    string           // BTC
	QuoteAsset   string           // USDT
	Leverage     decimal.Decimal  // sizing multiplier (default: 1)
	PollInterval time.Duration    // management cadence (default: 1s)
	Basis        types.PriceBasis // price used for entries and the stop
}

type Engine struct {
	mu sync.Mutex

	// Components
	config   EngineConfig
	store    *PositionStore
	prices   *PriceCache
	manager  *risk.Manager
	executor *execution.Executor
	sizer    *risk.Sizer
	feed     PriceSource
	trades   types.TradeLogger
	observer types.Observer

	// State
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewEngine wires the control loop and the entry path
func NewEngine(
	config EngineConfig,
	store *PositionStore,
	manager *risk.Manager,
	executor *execution.Executor,
	feed PriceSource,
	trades types.TradeLogger,
	observer types.Observer,
) *Engine {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.Basis == "" {
		config.Basis = types.BasisMark
	}
	if observer == nil {
		observer = types.Observers{}
	}
	return &Engine{
		config:   config,
		store:    store,
		prices:   NewPriceCache(),
		manager:  manager,
		executor: executor,
		sizer:    risk.NewSizer(config.Leverage),
		feed:     feed,
		trades:   trades,
		observer: observer,
	}
}

// Symbol returns the traded symbol
func (e *Engine) Symbol() string {
	return e.config.Symbol
}

// Position returns a copy of the tracked position
func (e *Engine) Position() (*types.Position, bool) {
	return e.store.Get(e.config.Symbol)
}

// LastPrice returns the last price seen by the engine
func (e *Engine) LastPrice() (PricePoint, bool) {
	return e.prices.Get(e.config.Symbol)
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONTROL LOOP
// ═══════════════════════════════════════════════════════════════════════════════

// Start runs the control loop in the background
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	go func() {
		defer close(doneCh)
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-stopCh:
				cancel()
			case <-ctx.Done():
			}
		}()
		e.Run(ctx)
	}()

	log.Info().
		Str("symbol", e.config.Symbol).
		Dur("interval", e.config.PollInterval).
		Msg("⚡ Engine started")
}

// Stop halts the control loop and waits for the current tick to finish
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	doneCh := e.doneCh
	e.mu.Unlock()

	<-doneCh
	log.Info().Msg("🛑 Engine stopped")
}

// Run ticks every PollInterval until ctx is done
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	for {
		e.Tick(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick fetches one price and runs one management step. Failures are
// reported and never stop the loop.
func (e *Engine) Tick(ctx context.Context) {
	symbol := e.config.Symbol

	price, err := e.feed.Price(ctx, symbol)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.observer.Observe(types.Event{
			Kind:   types.EventPriceFetchFailed,
			Symbol: symbol,
			Err:    err,
		})
		return
	}

	e.prices.Set(symbol, price)
	e.observer.Observe(types.Event{
		Kind:   types.EventPriceUpdated,
		Symbol: symbol,
		Price:  price,
	})

	if err := e.manager.OnPrice(ctx, symbol, price); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("Position step failed")
	}
}

func (e *Engine) writeTrade(entry types.TradeLogEntry) {
	if e.trades == nil {
		return
	}
	if err := e.trades.LogTrade(entry); err != nil {
		log.Error().Err(err).Str("action", entry.Action).Msg("Failed to write trade log")
	}
}

// quote fetches a fresh ticker price and refreshes the cache
func (e *Engine) quote(ctx context.Context) (decimal.Decimal, error) {
	ticker, err := e.executor.Gateway().FetchTicker(ctx, e.config.Symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch ticker: %w", err)
	}
	price := ticker.Price(e.config.Basis)
	if !price.IsPositive() {
		return decimal.Zero, ErrNoPrice
	}
	e.prices.Set(e.config.Symbol, price)
	return price, nil
}
