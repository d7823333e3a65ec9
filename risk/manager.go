package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/trailguard/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION MANAGER - Per-tick state machine for the open position
// ═══════════════════════════════════════════════════════════════════════════════
//
// One tick, under the symbol lock:
// 1. Ratchet the trailing stop
// 2. Replace the resting protective order when the stop moved
// 3. Exit at market when the stop or emergency level is crossed
//
// A position is removed as soon as an exit is attempted, whether or not the
// exit order went through.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Store gives exclusive access to the position of one symbol. fn receives the
// current position (nil if none) and returns the next one (nil removes it).
type Store interface {
	Apply(symbol string, fn func(cur *types.Position) (*types.Position, error)) error
}

// OrderExecutor is the part of the execution layer the manager needs
type OrderExecutor interface {
	PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error)
	CancelBestEffort(ctx context.Context, orderID, symbol string) bool
}

// ManagerConfig holds the risk parameters
type ManagerConfig struct {
	TrailingStopPercent  decimal.Decimal  // 0.02 = 2%
	EmergencyExitPercent decimal.Decimal  // 0.05 = 5%
	TriggerBasis         types.PriceBasis // price the exchange watches for stop orders
}

// Manager drives the trailing stop state machine
type Manager struct {
	config   ManagerConfig
	store    Store
	executor OrderExecutor
	trades   types.TradeLogger
	observer types.Observer
}

// NewManager creates a new position manager
func NewManager(config ManagerConfig, store Store, executor OrderExecutor, trades types.TradeLogger, observer types.Observer) *Manager {
	if config.TriggerBasis == "" {
		config.TriggerBasis = types.BasisMark
	}
	if observer == nil {
		observer = types.Observers{}
	}

	log.Info().
		Str("trailing_stop", config.TrailingStopPercent.Mul(hundred).String()+"%").
		Str("emergency_exit", config.EmergencyExitPercent.Mul(hundred).String()+"%").
		Str("trigger", string(config.TriggerBasis)).
		Msg("🛡️ Position manager initialized")

	return &Manager{
		config:   config,
		store:    store,
		executor: executor,
		trades:   trades,
		observer: observer,
	}
}

// EmergencyExit is the fixed hard stop for a new position
func (m *Manager) EmergencyExit(side types.Side, entry decimal.Decimal) decimal.Decimal {
	return EmergencyExitLevel(side, entry, m.config.EmergencyExitPercent)
}

// OnPrice runs one management tick for symbol. It is a no-op when no
// position is open.
func (m *Manager) OnPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	return m.store.Apply(symbol, func(pos *types.Position) (*types.Position, error) {
		if pos == nil {
			return nil, nil
		}
		if m.Step(ctx, pos, price) {
			return nil, nil
		}
		return pos, nil
	})
}

// Step advances pos by one tick in place. It reports whether an exit was
// attempted, in which case the caller must drop the position. The caller
// holds the symbol lock.
func (m *Manager) Step(ctx context.Context, pos *types.Position, price decimal.Decimal) (closed bool) {
	if stop, adopted := Ratchet(pos, price, m.config.TrailingStopPercent); adopted {
		pos.TrailingStop = &stop
		m.observer.Observe(types.Event{
			Kind:   types.EventStopAdopted,
			Symbol: pos.Symbol,
			Side:   pos.Side,
			Price:  price,
			Stop:   stop,
		})
		m.replaceProtectiveOrder(ctx, pos)
	}

	reason := ExitReason(pos, price)
	if reason == "" {
		return false
	}
	m.Exit(ctx, pos, price, reason)
	return true
}

// replaceProtectiveOrder swaps the resting stop order for one at the current
// trailing stop. A failed placement leaves the position without a resting
// order; the stop value itself is kept.
func (m *Manager) replaceProtectiveOrder(ctx context.Context, pos *types.Position) {
	if pos.StopOrderID != "" {
		m.executor.CancelBestEffort(ctx, pos.StopOrderID, pos.Symbol)
		pos.StopOrderID = ""
	}

	stop := *pos.TrailingStop
	order, err := m.executor.PlaceOrder(ctx, types.OrderRequest{
		Symbol:       pos.Symbol,
		Type:         types.OrderTypeStop,
		Side:         pos.Side.CloseOrderSide(),
		Amount:       pos.Amount,
		Price:        stop,
		StopPrice:    stop,
		TriggerBasis: m.config.TriggerBasis,
		ReduceOnly:   true,
	})
	if err != nil {
		m.observer.Observe(types.Event{
			Kind:   types.EventProtectiveOrderFailed,
			Symbol: pos.Symbol,
			Side:   pos.Side,
			Stop:   stop,
			Amount: pos.Amount,
			Err:    err,
		})
		return
	}

	pos.StopOrderID = order.ID
	m.observer.Observe(types.Event{
		Kind:    types.EventProtectiveOrderReplaced,
		Symbol:  pos.Symbol,
		Side:    pos.Side,
		Stop:    stop,
		Amount:  pos.Amount,
		OrderID: order.ID,
	})
}

// Exit cancels the resting protective order, closes pos at market for its
// full amount and writes the trade log row. It never touches the store; the
// returned error is informational only.
func (m *Manager) Exit(ctx context.Context, pos *types.Position, price decimal.Decimal, reason string) error {
	m.observer.Observe(types.Event{
		Kind:   types.EventExitTriggered,
		Symbol: pos.Symbol,
		Side:   pos.Side,
		Price:  price,
		Stop:   stopValue(pos),
		Amount: pos.Amount,
		Reason: reason,
	})

	// Cancel the resting stop before the market close.
	if pos.StopOrderID != "" {
		m.executor.CancelBestEffort(ctx, pos.StopOrderID, pos.Symbol)
		pos.StopOrderID = ""
	}

	order, err := m.executor.PlaceOrder(ctx, types.OrderRequest{
		Symbol:     pos.Symbol,
		Type:       types.OrderTypeMarket,
		Side:       pos.Side.CloseOrderSide(),
		Amount:     pos.Amount,
		Price:      price,
		ReduceOnly: true,
	})

	entry := types.TradeLogEntry{
		Timestamp: time.Now().UTC(),
		Action:    ExitAction(pos.Side),
		OrderType: types.OrderTypeMarket,
		Symbol:    pos.Symbol,
		Price:     price,
		Amount:    pos.Amount,
		Fees:      "N/A",
		Status:    "placed",
	}
	if err != nil {
		entry.Status = "error: " + err.Error()
		m.observer.Observe(types.Event{
			Kind:   types.EventExitFailed,
			Symbol: pos.Symbol,
			Side:   pos.Side,
			Price:  price,
			Amount: pos.Amount,
			Reason: reason,
			Err:    err,
		})
	} else {
		entry.Fees = FormatFees(order.Fees)
	}
	m.writeTrade(entry)

	if err != nil {
		return fmt.Errorf("exit %s %s: %w", pos.Side, pos.Symbol, err)
	}
	return nil
}

func (m *Manager) writeTrade(entry types.TradeLogEntry) {
	if m.trades == nil {
		return
	}
	if err := m.trades.LogTrade(entry); err != nil {
		log.Error().Err(err).Str("action", entry.Action).Msg("Failed to write trade log")
	}
}

// ExitAction is the trade log action for closing a side
func ExitAction(side types.Side) string {
	if side == types.SideLong {
		return string(types.ActionLongExit)
	}
	return string(types.ActionShortExit)
}

// FormatFees renders fees for the trade log, "N/A" when unknown
func FormatFees(fees decimal.Decimal) string {
	if fees.IsZero() {
		return "N/A"
	}
	return fees.String()
}

func stopValue(pos *types.Position) decimal.Decimal {
	if pos.TrailingStop == nil {
		return decimal.Zero
	}
	return *pos.TrailingStop
}
