package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/trailguard/exec/exectest"
	"github.com/web3guy0/trailguard/execution"
	"github.com/web3guy0/trailguard/risk"
	"github.com/web3guy0/trailguard/types"
)

const symbol = "BTC/USDT"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type harness struct {
	gw     *exectest.Gateway
	trades *exectest.TradeLog
	events *exectest.Recorder
	store  *PositionStore
	engine *Engine
}

func newHarness() *harness {
	h := &harness{
		gw:     exectest.New(symbol, d("100")),
		trades: &exectest.TradeLog{},
		events: &exectest.Recorder{},
		store:  NewPositionStore(),
	}
	h.gw.Balance = types.Balance{"USDT": d("1000")}

	ex := execution.NewExecutor(h.gw, execution.DefaultExecutorConfig(), h.events)
	ex.SetSleep(func(ctx context.Context, dur time.Duration) error { return nil })

	mgr := risk.NewManager(risk.ManagerConfig{
		TrailingStopPercent:  d("0.02"),
		EmergencyExitPercent: d("0.05"),
	}, h.store, ex, h.trades, h.events)

	h.engine = NewEngine(EngineConfig{
		Symbol:       symbol,
		BaseAsset:    "BTC",
		QuoteAsset:   "USDT",
		Leverage:     d("1"),
		PollInterval: 10 * time.Millisecond,
	}, h.store, mgr, ex, NewGatewayPriceSource(h.gw, types.BasisMark), h.trades, h.events)
	return h
}

func (h *harness) signal(t *testing.T, sig types.Signal) error {
	t.Helper()
	return h.engine.HandleSignal(context.Background(), sig)
}

func (h *harness) actions() []string {
	var out []string
	for _, e := range h.trades.Entries {
		out = append(out, e.Action+":"+e.Status)
	}
	return out
}

func TestHandleSignal_MarketEntry(t *testing.T) {
	h := newHarness()

	if err := h.signal(t, types.Signal{Action: types.ActionLongEntry}); err != nil {
		t.Fatalf("HandleSignal() error = %v", err)
	}

	pos, ok := h.engine.Position()
	if !ok {
		t.Fatal("no position opened")
	}
	if pos.Side != types.SideLong || !pos.EntryPrice.Equal(d("100")) {
		t.Errorf("position = %+v, expected long @ 100", pos)
	}
	if !pos.Amount.Equal(d("9.5")) {
		t.Errorf("Amount = %v, expected 9.5", pos.Amount)
	}
	if !pos.EmergencyExit.Equal(d("95")) {
		t.Errorf("EmergencyExit = %v, expected 95", pos.EmergencyExit)
	}
	if pos.HasStop() {
		t.Errorf("new position should have no stop, got %v", pos.StopString())
	}

	entry, _ := h.trades.Last()
	if entry.Action != "long_entry" || entry.Status != "placed" || entry.OrderType != types.OrderTypeMarket {
		t.Errorf("trade log = %+v", entry)
	}
	if h.events.Count(types.EventPositionOpened) != 1 {
		t.Errorf("position_opened events = %d, expected 1", h.events.Count(types.EventPositionOpened))
	}
}

func TestHandleSignal_BacktraceOffsetsEntryPrice(t *testing.T) {
	tests := []struct {
		action   types.Action
		expected string
	}{
		{types.ActionLongEntry, "101"},
		{types.ActionShortEntry, "99"},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			h := newHarness()
			pct := d("1")
			if err := h.signal(t, types.Signal{Action: tt.action, LimitBacktracePercent: &pct}); err != nil {
				t.Fatalf("HandleSignal() error = %v", err)
			}
			pos, _ := h.engine.Position()
			if !pos.EntryPrice.Equal(d(tt.expected)) {
				t.Errorf("EntryPrice = %v, expected %v", pos.EntryPrice, tt.expected)
			}
		})
	}
}

func TestHandleSignal_SameSideRejected(t *testing.T) {
	h := newHarness()
	_ = h.signal(t, types.Signal{Action: types.ActionLongEntry})
	before, _ := h.engine.Position()

	err := h.signal(t, types.Signal{Action: types.ActionLongEntry})
	if !errors.Is(err, ErrPositionOpen) {
		t.Fatalf("HandleSignal() error = %v, expected ErrPositionOpen", err)
	}

	after, _ := h.engine.Position()
	if after.ID != before.ID {
		t.Error("rejected entry replaced the position")
	}
	if n := len(h.gw.Created); n != 1 {
		t.Errorf("orders = %d, expected 1", n)
	}
	entry, _ := h.trades.Last()
	if entry.Status != "error: position already open" {
		t.Errorf("status = %q", entry.Status)
	}
}

func TestHandleSignal_OppositeEntryClosesFirst(t *testing.T) {
	h := newHarness()
	_ = h.signal(t, types.Signal{Action: types.ActionLongEntry})

	if err := h.signal(t, types.Signal{Action: types.ActionShortEntry}); err != nil {
		t.Fatalf("HandleSignal() error = %v", err)
	}

	pos, ok := h.engine.Position()
	if !ok || pos.Side != types.SideShort {
		t.Fatalf("position = %+v, expected short", pos)
	}
	got := strings.Join(h.actions(), ",")
	if got != "long_entry:placed,long_exit:placed,short_entry:placed" {
		t.Errorf("trade log = %s", got)
	}
	markets := h.gw.CreatedOfType(types.OrderTypeMarket)
	if len(markets) != 3 || markets[1].Side != types.OrderSideSell || !markets[1].ReduceOnly {
		t.Errorf("orders = %+v, expected buy, reduce-only sell, sell", markets)
	}
}

func TestHandleSignal_FailedCloseDoesNotOpen(t *testing.T) {
	tests := []types.Action{types.ActionShortEntry, types.ActionReverseLongToShort}

	for _, action := range tests {
		t.Run(string(action), func(t *testing.T) {
			h := newHarness()
			_ = h.signal(t, types.Signal{Action: types.ActionLongEntry})
			h.gw.CreateErrs = []error{errors.New("reduce only rejected")}

			err := h.signal(t, types.Signal{Action: action})
			if !errors.Is(err, execution.ErrExecutionFailed) {
				t.Fatalf("HandleSignal() error = %v, expected execution failure", err)
			}

			if pos, ok := h.engine.Position(); ok {
				t.Fatalf("position = %+v, expected none after failed close", pos)
			}
			if n := len(h.gw.CreatedOfType(types.OrderTypeMarket)); n != 2 {
				t.Errorf("market orders = %d, expected entry + failed close only", n)
			}

			actions := h.actions()
			if len(actions) != 3 {
				t.Fatalf("trade log = %v, expected 3 rows", actions)
			}
			if !strings.HasPrefix(actions[1], "long_exit:error: ") {
				t.Errorf("close row = %s", actions[1])
			}
			if !strings.HasPrefix(actions[2], string(action)+":error: close failed: ") {
				t.Errorf("entry row = %s", actions[2])
			}
			if h.events.Count(types.EventEntryFailed) != 1 {
				t.Errorf("entry_failed events = %d, expected 1", h.events.Count(types.EventEntryFailed))
			}
		})
	}
}

func TestHandleSignal_ExitAndReverse(t *testing.T) {
	h := newHarness()

	if err := h.signal(t, types.Signal{Action: types.ActionShortExit}); err != nil {
		t.Fatalf("exit while flat error = %v", err)
	}
	if len(h.gw.Created) != 0 {
		t.Fatalf("exit while flat placed %d orders", len(h.gw.Created))
	}

	_ = h.signal(t, types.Signal{Action: types.ActionLongEntry})
	if err := h.signal(t, types.Signal{Action: types.ActionReverseLongToShort}); err != nil {
		t.Fatalf("reverse error = %v", err)
	}
	if pos, _ := h.engine.Position(); pos == nil || pos.Side != types.SideShort {
		t.Fatalf("position = %+v, expected short after reverse", pos)
	}

	if err := h.signal(t, types.Signal{Action: types.ActionShortExit}); err != nil {
		t.Fatalf("exit error = %v", err)
	}
	if _, ok := h.engine.Position(); ok {
		t.Error("position should be closed")
	}
	entry, _ := h.trades.Last()
	if entry.Action != "short_exit" || entry.Status != "placed" {
		t.Errorf("trade log = %+v", entry)
	}
}

func TestHandleSignal_LimitPartialFill(t *testing.T) {
	h := newHarness()
	h.gw.LimitFilled = d("4")

	err := h.signal(t, types.Signal{Action: types.ActionLongEntry, OrderType: "limit", LimitCancelTimeSeconds: 5})
	if err != nil {
		t.Fatalf("HandleSignal() error = %v", err)
	}

	pos, ok := h.engine.Position()
	if !ok {
		t.Fatal("partially filled limit should open a position")
	}
	if !pos.Amount.Equal(d("4")) {
		t.Errorf("Amount = %v, expected filled portion 4", pos.Amount)
	}
	if len(h.gw.Cancelled) != 1 {
		t.Errorf("cancelled = %v, expected the resting limit", h.gw.Cancelled)
	}
	if h.events.Count(types.EventLimitExpired) != 1 {
		t.Errorf("limit_expired events = %d, expected 1", h.events.Count(types.EventLimitExpired))
	}
}

func TestHandleSignal_LimitExpiredUnfilled(t *testing.T) {
	h := newHarness()

	err := h.signal(t, types.Signal{Action: types.ActionShortEntry, OrderType: "limit", LimitCancelTimeSeconds: 5})
	if err != nil {
		t.Fatalf("HandleSignal() error = %v", err)
	}
	if _, ok := h.engine.Position(); ok {
		t.Error("unfilled limit should not open a position")
	}
	entry, _ := h.trades.Last()
	if entry.Status != "expired" {
		t.Errorf("status = %q, expected expired", entry.Status)
	}
}

func TestHandleSignal_FailureWritesErrorRow(t *testing.T) {
	h := newHarness()
	h.gw.BalanceErr = errors.New("signature invalid")

	err := h.signal(t, types.Signal{Action: types.ActionLongEntry})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := h.engine.Position(); ok {
		t.Error("failed entry should not create a position")
	}
	entry, _ := h.trades.Last()
	if !strings.HasPrefix(entry.Status, "error: ") || !strings.Contains(entry.Status, "signature invalid") {
		t.Errorf("status = %q", entry.Status)
	}
	if h.events.Count(types.EventEntryFailed) != 1 {
		t.Errorf("entry_failed events = %d, expected 1", h.events.Count(types.EventEntryFailed))
	}
}

func TestHandleSignal_InvalidSignal(t *testing.T) {
	h := newHarness()
	if err := h.signal(t, types.Signal{Action: "buy_everything"}); err == nil {
		t.Error("expected validation error")
	}
	if len(h.trades.Entries) != 0 {
		t.Error("invalid signal should not reach the trade log")
	}
}

func TestTick_DrivesTrailingStopToExit(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_ = h.signal(t, types.Signal{Action: types.ActionLongEntry})

	h.gw.SetPrice(d("110"))
	h.engine.Tick(ctx)
	pos, _ := h.engine.Position()
	if pos == nil || pos.TrailingStop == nil || !pos.TrailingStop.Equal(d("107.8")) {
		t.Fatalf("position after 110 = %+v, expected stop 107.8", pos)
	}
	if p, ok := h.engine.LastPrice(); !ok || !p.Price.Equal(d("110")) {
		t.Errorf("LastPrice() = %v, expected 110", p.Price)
	}

	h.gw.SetPrice(d("107"))
	h.engine.Tick(ctx)
	if _, ok := h.engine.Position(); ok {
		t.Error("position should be closed at 107")
	}
}

func TestTick_PriceFailureIsReported(t *testing.T) {
	h := newHarness()
	h.gw.TickerErr = errors.New("503")

	h.engine.Tick(context.Background())

	if h.events.Count(types.EventPriceFetchFailed) != 1 {
		t.Errorf("price_fetch_failed events = %d, expected 1", h.events.Count(types.EventPriceFetchFailed))
	}
}

func TestEngine_StartStop(t *testing.T) {
	h := newHarness()
	h.engine.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	h.engine.Stop()
	h.engine.Stop()

	if h.events.Count(types.EventPriceUpdated) == 0 {
		t.Error("control loop never ticked")
	}
}
