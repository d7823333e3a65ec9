package execution

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/trailguard/exec"
	"github.com/web3guy0/trailguard/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION LAYER - Order placement with retries and fill monitoring
// ═══════════════════════════════════════════════════════════════════════════════
//
// Responsibilities:
// 1. Clamp limit prices to the best bid/ask before submitting
// 2. Retry transient gateway failures with exponential backoff
// 3. Never retry exchange rejections
// 4. Watch a limit order for a bounded time, cancel it if unfilled
// 5. Best-effort cancellation of protective orders
//
// ═══════════════════════════════════════════════════════════════════════════════

// ExecutorConfig holds executor settings
type ExecutorConfig struct {
	MaxRetries int           // Submission attempts per order (default: 3)
	BaseDelay  time.Duration // First backoff delay, doubled per attempt (default: 2s)
}

// DefaultExecutorConfig returns sensible defaults
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
	}
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Executor places orders against a gateway
type Executor struct {
	mu       sync.RWMutex
	config   ExecutorConfig
	gateway  exec.Gateway
	observer types.Observer
	sleep    SleepFunc

	// Metrics
	totalOrders  int64
	failedOrders int64
	retries      int64
}

// NewExecutor creates a new execution manager
func NewExecutor(gateway exec.Gateway, config ExecutorConfig, observer types.Observer) *Executor {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}
	if observer == nil {
		observer = types.Observers{}
	}

	log.Info().
		Int("max_retries", config.MaxRetries).
		Dur("base_delay", config.BaseDelay).
		Msg("⚡ Executor initialized")

	return &Executor{
		config:   config,
		gateway:  gateway,
		observer: observer,
		sleep:    sleepContext,
	}
}

// SetSleep replaces the wait used for backoff and fill monitoring
func (e *Executor) SetSleep(fn SleepFunc) {
	e.sleep = fn
}

// Gateway exposes the underlying gateway for read-only queries
func (e *Executor) Gateway() exec.Gateway {
	return e.gateway
}

// PlaceOrder submits with the configured retry policy
func (e *Executor) PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error) {
	return e.PlaceOrderWithRetries(ctx, req, e.config.MaxRetries, e.config.BaseDelay)
}

// ═══════════════════════════════════════════════════════════════════════════════
// ORDER SUBMISSION
// ═══════════════════════════════════════════════════════════════════════════════

// PlaceOrderWithRetries submits an order, retrying transient failures up to
// maxRetries attempts. After failed attempt n (0-based) it waits
// baseDelay * 2^n.
func (e *Executor) PlaceOrderWithRetries(ctx context.Context, req types.OrderRequest, maxRetries int, baseDelay time.Duration) (*types.Order, error) {
	if maxRetries <= 0 {
		maxRetries = 1
	}

	e.mu.Lock()
	e.totalOrders++
	e.mu.Unlock()

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < maxRetries; attempt++ {
		attempts++
		order, err := e.submit(ctx, req)
		if err == nil {
			return order, nil
		}
		lastErr = err

		if !exec.IsTransient(err) {
			e.recordFailure()
			log.Error().
				Err(err).
				Str("symbol", req.Symbol).
				Str("type", string(req.Type)).
				Msg("❌ Order rejected")
			return nil, &ExecutionError{Attempts: attempt + 1, Err: err}
		}

		delay := baseDelay * time.Duration(1<<attempt)
		e.mu.Lock()
		e.retries++
		e.mu.Unlock()
		e.observer.Observe(types.Event{
			Kind:    types.EventRetryAttempted,
			Symbol:  req.Symbol,
			Attempt: attempt + 1,
			Delay:   delay,
			Err:     err,
		})

		if err := e.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	e.recordFailure()
	log.Error().
		Err(lastErr).
		Str("symbol", req.Symbol).
		Int("attempts", attempts).
		Msg("❌ Order failed after retries")

	return nil, &ExecutionError{Attempts: attempts, Err: lastErr}
}

// submit performs one attempt, clamping limit prices first
func (e *Executor) submit(ctx context.Context, req types.OrderRequest) (*types.Order, error) {
	if req.Type == types.OrderTypeLimit {
		book, err := e.gateway.FetchOrderBook(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}
		req.Price = ClampToBook(req.Side, req.Price, book)
	}
	return e.gateway.CreateOrder(ctx, req)
}

// ClampToBook keeps a limit order from resting behind the touch: a buy at or
// below the best bid is raised to it, a sell at or above the best ask is
// lowered to it.
func ClampToBook(side types.OrderSide, price decimal.Decimal, book *types.OrderBook) decimal.Decimal {
	switch side {
	case types.OrderSideBuy:
		if bid, ok := book.BestBid(); ok && price.LessThanOrEqual(bid) {
			return bid
		}
	case types.OrderSideSell:
		if ask, ok := book.BestAsk(); ok && price.GreaterThanOrEqual(ask) {
			return ask
		}
	}
	return price
}

// ═══════════════════════════════════════════════════════════════════════════════
// FILL MONITORING
// ═══════════════════════════════════════════════════════════════════════════════

// MonitorLimitFill waits timeout, checks the order once and cancels it if it
// has not fully filled. remaining is what is still unfilled. A transient
// failure on the status check is reported as nothing filled.
func (e *Executor) MonitorLimitFill(ctx context.Context, orderID, symbol string, amount decimal.Decimal, timeout time.Duration) (filled bool, remaining decimal.Decimal, err error) {
	if err := e.sleep(ctx, timeout); err != nil {
		return false, amount, err
	}

	order, err := e.gateway.FetchOrder(ctx, orderID, symbol)
	if err != nil {
		if exec.IsTransient(err) {
			log.Warn().Err(err).Str("order_id", orderID).Msg("⚠️ Network error checking order")
			return false, amount, nil
		}
		return false, amount, err
	}

	if order.Status == types.OrderStatusClosed {
		return true, decimal.Zero, nil
	}

	e.CancelBestEffort(ctx, orderID, symbol)
	return false, amount.Sub(order.Filled), nil
}

// CancelBestEffort cancels an order and swallows any failure
func (e *Executor) CancelBestEffort(ctx context.Context, orderID, symbol string) bool {
	if orderID == "" {
		return true
	}
	if err := e.gateway.CancelOrder(ctx, orderID, symbol); err != nil {
		cerr := &CancelError{OrderID: orderID, Err: err}
		e.observer.Observe(types.Event{
			Kind:    types.EventCancelFailed,
			Symbol:  symbol,
			OrderID: orderID,
			Err:     cerr,
		})
		return false
	}
	return true
}

// ═══════════════════════════════════════════════════════════════════════════════
// METRICS
// ═══════════════════════════════════════════════════════════════════════════════

func (e *Executor) recordFailure() {
	e.mu.Lock()
	e.failedOrders++
	e.mu.Unlock()
}

// Metrics is a snapshot of the order counters
type Metrics struct {
	TotalOrders  int64
	FailedOrders int64
	Retries      int64
}

// GetMetrics returns execution metrics
func (e *Executor) GetMetrics() Metrics {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Metrics{
		TotalOrders:  e.totalOrders,
		FailedOrders: e.failedOrders,
		Retries:      e.retries,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
