// Package exectest provides a scriptable in-memory exec.Gateway for tests.
package exectest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/trailguard/types"
)

// Gateway records every call and answers from its fields. Errors queued in
// CreateErrs are returned by successive CreateOrder calls (a nil entry means
// that call succeeds).
type Gateway struct {
	mu sync.Mutex

	Ticker  types.Ticker
	Book    types.OrderBook
	Balance types.Balance

	TickerErr     error
	BookErr       error
	BalanceErr    error
	CreateErrs    []error
	CancelErr     error
	FetchOrderErr error

	// LimitFilled is how much of each new limit order is already filled.
	// Orders whose fill equals their amount are reported closed.
	LimitFilled decimal.Decimal

	Created   []types.OrderRequest
	Cancelled []string
	Fetched   []string

	// Calls lists order writes in call order, e.g. "create market", "cancel ord-1"
	Calls []string

	orders map[string]*types.Order
	seq    int
}

// New creates a gateway quoting price for both last and mark
func New(symbol string, price decimal.Decimal) *Gateway {
	return &Gateway{
		Ticker:  types.Ticker{Symbol: symbol, Last: price, Mark: price},
		Balance: types.Balance{},
		orders:  make(map[string]*types.Order),
	}
}

// SetPrice moves both last and mark
func (g *Gateway) SetPrice(p decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Ticker.Last = p
	g.Ticker.Mark = p
}

// FetchTicker implements exec.Gateway
func (g *Gateway) FetchTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.TickerErr != nil {
		return nil, g.TickerErr
	}
	t := g.Ticker
	return &t, nil
}

// FetchOrderBook implements exec.Gateway
func (g *Gateway) FetchOrderBook(ctx context.Context, symbol string) (*types.OrderBook, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.BookErr != nil {
		return nil, g.BookErr
	}
	b := g.Book
	return &b, nil
}

// FetchBalance implements exec.Gateway
func (g *Gateway) FetchBalance(ctx context.Context) (types.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.BalanceErr != nil {
		return nil, g.BalanceErr
	}
	out := make(types.Balance, len(g.Balance))
	for k, v := range g.Balance {
		out[k] = v
	}
	return out, nil
}

// CreateOrder implements exec.Gateway
func (g *Gateway) CreateOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Created = append(g.Created, req)
	g.Calls = append(g.Calls, "create "+string(req.Type))
	if len(g.CreateErrs) > 0 {
		err := g.CreateErrs[0]
		g.CreateErrs = g.CreateErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	g.seq++
	order := &types.Order{
		ID:     fmt.Sprintf("ord-%d", g.seq),
		Symbol: req.Symbol,
		Side:   req.Side,
		Type:   req.Type,
		Status: types.OrderStatusOpen,
		Price:  req.Price,
		Amount: req.Amount,
	}
	switch req.Type {
	case types.OrderTypeMarket:
		order.Status = types.OrderStatusClosed
		order.Filled = req.Amount
	case types.OrderTypeLimit:
		order.Filled = decimal.Min(g.LimitFilled, req.Amount)
		if order.Filled.Equal(req.Amount) {
			order.Status = types.OrderStatusClosed
		}
	case types.OrderTypeStop:
		order.Price = req.StopPrice
	}
	g.orders[order.ID] = order

	cp := *order
	return &cp, nil
}

// CancelOrder implements exec.Gateway
func (g *Gateway) CancelOrder(ctx context.Context, orderID, symbol string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Cancelled = append(g.Cancelled, orderID)
	g.Calls = append(g.Calls, "cancel "+orderID)
	if g.CancelErr != nil {
		return g.CancelErr
	}
	if o, ok := g.orders[orderID]; ok {
		o.Status = types.OrderStatusCanceled
	}
	return nil
}

// FetchOrder implements exec.Gateway
func (g *Gateway) FetchOrder(ctx context.Context, orderID, symbol string) (*types.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Fetched = append(g.Fetched, orderID)
	if g.FetchOrderErr != nil {
		return nil, g.FetchOrderErr
	}
	o, ok := g.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("unknown order %s", orderID)
	}
	cp := *o
	return &cp, nil
}

// Order returns a copy of a recorded order
func (g *Gateway) Order(id string) (types.Order, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[id]
	if !ok {
		return types.Order{}, false
	}
	return *o, true
}

// CreatedOfType returns the recorded requests of one order type
func (g *Gateway) CreatedOfType(t types.OrderType) []types.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []types.OrderRequest
	for _, r := range g.Created {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// Recorder is an Observer that keeps every event
type Recorder struct {
	mu     sync.Mutex
	Events []types.Event
}

// Observe implements types.Observer
func (r *Recorder) Observe(ev types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, ev)
}

// Count returns how many events of a kind were seen
func (r *Recorder) Count(kind types.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.Events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// TradeLog is an in-memory types.TradeLogger
type TradeLog struct {
	mu      sync.Mutex
	Entries []types.TradeLogEntry
}

// LogTrade implements types.TradeLogger
func (l *TradeLog) LogTrade(entry types.TradeLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, entry)
	return nil
}

// Last returns the most recent entry
func (l *TradeLog) Last() (types.TradeLogEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.Entries) == 0 {
		return types.TradeLogEntry{}, false
	}
	return l.Entries[len(l.Entries)-1], true
}
