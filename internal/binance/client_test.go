package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/trailguard/types"
)

func TestMarkStream_HandleMessage(t *testing.T) {
	s := NewMarkStream(FuturesWSURL, "BTC/USDT", types.BasisMark)
	ctx := context.Background()

	if _, err := s.Price(ctx, "BTC/USDT"); !errors.Is(err, ErrNoData) {
		t.Errorf("Price() before data error = %v, expected ErrNoData", err)
	}

	s.handleMessage([]byte(`{"e":"markPriceUpdate","s":"BTCUSDT","p":"64123.50","i":"64100.10"}`))
	s.handleMessage([]byte(`{"e":"depthUpdate","p":"1"}`))
	s.handleMessage([]byte(`not json`))

	got, err := s.Price(ctx, "BTC/USDT")
	if err != nil {
		t.Fatalf("Price() error = %v", err)
	}
	if !got.Equal(decimal.RequireFromString("64123.50")) {
		t.Errorf("Price() = %v, expected 64123.50", got)
	}
	if !s.IndexPrice().Equal(decimal.RequireFromString("64100.10")) {
		t.Errorf("IndexPrice() = %v, expected 64100.10", s.IndexPrice())
	}

	if _, err := s.Price(ctx, "ETH/USDT"); err == nil {
		t.Error("Price() for another symbol should fail")
	}

	s.SetStaleAfter(time.Nanosecond)
	time.Sleep(time.Millisecond)
	if _, err := s.Price(ctx, "BTC/USDT"); !errors.Is(err, ErrStale) {
		t.Errorf("Price() error = %v, expected ErrStale", err)
	}
}

func TestMarkStream_StreamName(t *testing.T) {
	if s := NewMarkStream(FuturesWSURL, "BTC/USDT", types.BasisMark); s.stream != "btcusdt@markPrice@1s" {
		t.Errorf("stream = %s", s.stream)
	}
	if s := NewMarkStream(FuturesWSURL, "ETH/USDT", types.BasisLast); s.stream != "ethusdt@aggTrade" {
		t.Errorf("stream = %s", s.stream)
	}
}

func TestReconnectDelay(t *testing.T) {
	tests := []struct {
		retry    int
		expected time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{40, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := reconnectDelay(tt.retry); got != tt.expected {
			t.Errorf("reconnectDelay(%d) = %v, expected %v", tt.retry, got, tt.expected)
		}
	}
}

func TestMarkStream_ReceivesFromServer(t *testing.T) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	paths := make(chan string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case paths <- r.URL.Path:
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"markPriceUpdate","p":"101.25","i":"101"}`))
		// Hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	s := NewMarkStream(strings.Replace(server.URL, "http://", "ws://", 1), "BTC/USDT", types.BasisMark)
	s.Start()
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for {
		if p, err := s.Price(context.Background(), "BTC/USDT"); err == nil {
			if !p.Equal(decimal.RequireFromString("101.25")) {
				t.Errorf("Price() = %v, expected 101.25", p)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("no price received from server")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if got := <-paths; got != "/btcusdt@markPrice@1s" {
		t.Errorf("path = %s, expected /btcusdt@markPrice@1s", got)
	}
}
