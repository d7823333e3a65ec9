package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/trailguard/execution"
	"github.com/web3guy0/trailguard/types"
)

type fakeExecution struct{ m execution.Metrics }

func (f *fakeExecution) GetMetrics() execution.Metrics { return f.m }

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return string(raw)
}

func TestRecorder_ExposesSeries(t *testing.T) {
	r := NewRecorder()
	r.Observe(types.Event{Kind: types.EventPriceUpdated, Symbol: "BTC/USDT", Price: decimal.NewFromInt(110)})
	r.Observe(types.Event{Kind: types.EventStopAdopted, Symbol: "BTC/USDT", Stop: decimal.RequireFromString("107.8")})
	r.Observe(types.Event{Kind: types.EventRetryAttempted, Symbol: "BTC/USDT"})
	r.Observe(types.Event{Kind: types.EventRetryAttempted, Symbol: "BTC/USDT"})

	body := scrape(t, r)

	for _, want := range []string{
		`trailguard_last_price{symbol="BTC/USDT"} 110`,
		`trailguard_trailing_stop{symbol="BTC/USDT"} 107.8`,
		`trailguard_order_retries_total 2`,
		`trailguard_events_total{kind="retry_attempted"} 2`,
		`trailguard_events_total{kind="stop_adopted"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
	if strings.Contains(body, `kind="price_updated"`) {
		t.Error("price ticks should not be counted as events")
	}
}

func TestRecorder_TrackExecution(t *testing.T) {
	r := NewRecorder()
	src := &fakeExecution{m: execution.Metrics{TotalOrders: 4, FailedOrders: 1}}
	r.TrackExecution(src)

	body := scrape(t, r)
	for _, want := range []string{
		"trailguard_orders_total 4",
		"trailguard_orders_failed_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	src.m.TotalOrders = 5
	if body := scrape(t, r); !strings.Contains(body, "trailguard_orders_total 5") {
		t.Error("orders_total should be read at scrape time")
	}
}
