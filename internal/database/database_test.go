package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/trailguard/types"
)

func openTemp(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "data", "trades.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLogTrade_RecentTradesNewestFirst(t *testing.T) {
	db := openTemp(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := []types.TradeLogEntry{
		{Timestamp: base, Action: "long_entry", OrderType: types.OrderTypeMarket, Symbol: "BTC/USDT", Price: decimal.NewFromInt(100), Amount: decimal.RequireFromString("9.5"), Fees: "N/A", Status: "placed"},
		{Timestamp: base.Add(time.Minute), Action: "long_exit", OrderType: types.OrderTypeMarket, Symbol: "BTC/USDT", Price: decimal.NewFromInt(107), Amount: decimal.RequireFromString("9.5"), Fees: "0.4", Status: "placed"},
		{Timestamp: base.Add(2 * time.Minute), Action: "short_entry", OrderType: types.OrderTypeLimit, Symbol: "BTC/USDT", Fees: "N/A", Status: "error: no available balance"},
	}
	for _, r := range rows {
		if err := db.LogTrade(r); err != nil {
			t.Fatalf("LogTrade() error = %v", err)
		}
	}

	got, err := db.RecentTrades(2)
	if err != nil {
		t.Fatalf("RecentTrades() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("RecentTrades() returned %d rows, expected 2", len(got))
	}
	if got[0].Action != "short_entry" || got[1].Action != "long_exit" {
		t.Errorf("order = %s, %s, expected short_entry, long_exit", got[0].Action, got[1].Action)
	}
	if !got[1].Price.Equal(decimal.NewFromInt(107)) || got[1].Fees != "0.4" {
		t.Errorf("row = %+v", got[1])
	}
	if got[0].OrderType != types.OrderTypeLimit {
		t.Errorf("OrderType = %v, expected limit", got[0].OrderType)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats["total"] != 3 || stats["placed"] != 2 || stats["failed"] != 1 {
		t.Errorf("stats = %v", stats)
	}
}
