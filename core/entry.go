package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/trailguard/risk"
	"github.com/web3guy0/trailguard/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENTRY PATH - Signal handling
// ═══════════════════════════════════════════════════════════════════════════════
//
// Every signal runs as one step under the symbol lock. Entry failures are
// written to the trade log and never leave a position behind.
//
// ═══════════════════════════════════════════════════════════════════════════════

var (
	// ErrPositionOpen rejects an entry on the side already held
	ErrPositionOpen = errors.New("position already open")
	// ErrNoBalance means sizing produced nothing to trade
	ErrNoBalance = errors.New("no available balance")
)

// HandleSignal applies one validated signal to the tracked position
func (e *Engine) HandleSignal(ctx context.Context, sig types.Signal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	orderType, _ := types.ParseOrderType(sig.OrderType)
	symbol := e.config.Symbol

	var result error
	err := e.store.Apply(symbol, func(cur *types.Position) (*types.Position, error) {
		route := RouteSignal(sig.Action, cur)

		switch {
		case route.Reject:
			e.reject(sig, orderType, cur)
			result = ErrPositionOpen
			return cur, nil
		case route.Noop():
			log.Info().
				Str("action", string(sig.Action)).
				Str("symbol", symbol).
				Msg("No matching position, signal ignored")
			return cur, nil
		}

		if route.Close {
			price, err := e.quote(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Closing with cached price")
				if p, ok := e.prices.Get(symbol); ok {
					price = p.Price
				}
			}
			if err := e.manager.Exit(ctx, cur, price, risk.ReasonSignal); err != nil {
				result = err
				if route.Open != "" {
					// Nothing opens while the old side may still be live.
					result = fmt.Errorf("close failed: %w", err)
					e.failEntry(types.TradeLogEntry{
						Timestamp: time.Now().UTC(),
						Action:    string(sig.Action),
						OrderType: orderType,
						Symbol:    symbol,
						Price:     price,
						Fees:      "N/A",
					}, route.Open, result)
				}
				return nil, nil
			}
		}

		if route.Open == "" {
			return nil, nil
		}
		pos, err := e.open(ctx, sig, route.Open, orderType)
		if err != nil {
			result = err
		}
		return pos, nil
	})
	if err != nil {
		return err
	}
	return result
}

// open places the entry order and builds the position. A nil position with
// a nil error means the limit order expired without any fill.
func (e *Engine) open(ctx context.Context, sig types.Signal, side types.Side, orderType types.OrderType) (*types.Position, error) {
	symbol := e.config.Symbol
	entry := types.TradeLogEntry{
		Timestamp: time.Now().UTC(),
		Action:    string(sig.Action),
		OrderType: orderType,
		Symbol:    symbol,
		Fees:      "N/A",
	}

	fail := func(err error) (*types.Position, error) {
		e.failEntry(entry, side, err)
		return nil, err
	}

	quote, err := e.quote(ctx)
	if err != nil {
		return fail(err)
	}
	price := risk.CalculateOrderPrice(sig.Action, quote, sig.LimitBacktracePercent)
	entry.Price = price

	balance, err := e.executor.Gateway().FetchBalance(ctx)
	if err != nil {
		return fail(fmt.Errorf("fetch balance: %w", err))
	}
	free := balance.Free(e.config.QuoteAsset)
	if !free.IsPositive() {
		free = balance.Free(e.config.BaseAsset).Mul(quote)
	}
	amount := e.sizer.Calculate(free, quote)
	if !amount.IsPositive() {
		return fail(ErrNoBalance)
	}
	entry.Amount = amount

	order, err := e.executor.PlaceOrder(ctx, types.OrderRequest{
		Symbol: symbol,
		Type:   orderType,
		Side:   side.EntryOrderSide(),
		Amount: amount,
		Price:  price,
	})
	if err != nil {
		return fail(err)
	}

	if orderType == types.OrderTypeLimit && sig.LimitCancelTimeSeconds > 0 {
		timeout := time.Duration(sig.LimitCancelTimeSeconds) * time.Second
		filled, remaining, err := e.executor.MonitorLimitFill(ctx, order.ID, symbol, amount, timeout)
		if err != nil {
			return fail(fmt.Errorf("monitor fill: %w", err))
		}
		if !filled {
			amount = decimal.Max(amount.Sub(remaining), decimal.Zero)
			entry.Amount = amount
			e.observer.Observe(types.Event{
				Kind:    types.EventLimitExpired,
				Symbol:  symbol,
				Side:    side,
				Price:   price,
				Amount:  amount,
				OrderID: order.ID,
			})
			if amount.IsZero() {
				entry.Status = "expired"
				e.writeTrade(entry)
				return nil, nil
			}
		}
	}

	pos := &types.Position{
		ID:            uuid.NewString(),
		Symbol:        symbol,
		Side:          side,
		EntryPrice:    price,
		Amount:        amount,
		EmergencyExit: e.manager.EmergencyExit(side, price),
		OpenedAt:      time.Now().UTC(),
	}

	entry.Fees = risk.FormatFees(order.Fees)
	entry.Status = "placed"
	e.writeTrade(entry)
	e.observer.Observe(types.Event{
		Kind:    types.EventPositionOpened,
		Symbol:  symbol,
		Side:    side,
		Price:   price,
		Amount:  amount,
		OrderID: order.ID,
	})
	return pos, nil
}

// failEntry writes the error row for an entry that opened nothing
func (e *Engine) failEntry(entry types.TradeLogEntry, side types.Side, err error) {
	entry.Status = "error: " + err.Error()
	e.writeTrade(entry)
	e.observer.Observe(types.Event{
		Kind:   types.EventEntryFailed,
		Symbol: entry.Symbol,
		Side:   side,
		Price:  entry.Price,
		Amount: entry.Amount,
		Err:    err,
	})
}

// reject records a refused entry without touching the position
func (e *Engine) reject(sig types.Signal, orderType types.OrderType, cur *types.Position) {
	var price decimal.Decimal
	if p, ok := e.prices.Get(e.config.Symbol); ok {
		price = p.Price
	}
	e.writeTrade(types.TradeLogEntry{
		Timestamp: time.Now().UTC(),
		Action:    string(sig.Action),
		OrderType: orderType,
		Symbol:    e.config.Symbol,
		Price:     price,
		Fees:      "N/A",
		Status:    "error: " + ErrPositionOpen.Error(),
	})
	e.observer.Observe(types.Event{
		Kind:   types.EventEntryRejected,
		Symbol: e.config.Symbol,
		Side:   cur.Side,
		Reason: ErrPositionOpen.Error(),
	})
}
