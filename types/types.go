package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Side is the direction of a tracked position
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// EntryOrderSide is the order side that opens a position on this side
func (s Side) EntryOrderSide() OrderSide {
	if s == SideLong {
		return OrderSideBuy
	}
	return OrderSideSell
}

// CloseOrderSide is the order side that flattens a position on this side
func (s Side) CloseOrderSide() OrderSide {
	return s.EntryOrderSide().Opposite()
}

// OrderSide is the exchange order direction
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the reverse order side
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType is the exchange order type
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// ParseOrderType defaults to market when empty
func ParseOrderType(s string) (OrderType, error) {
	switch s {
	case "", "market":
		return OrderTypeMarket, nil
	case "limit":
		return OrderTypeLimit, nil
	}
	return "", fmt.Errorf("unsupported order type %q", s)
}

// PriceBasis selects which ticker price triggers a stop
type PriceBasis string

const (
	BasisMark PriceBasis = "mark"
	BasisLast PriceBasis = "last"
)

// ParsePriceBasis accepts both the short form and the exchange-style names
// ("ByMarkPrice", "ByLastPrice").
func ParsePriceBasis(s string) (PriceBasis, error) {
	switch s {
	case "mark", "ByMarkPrice":
		return BasisMark, nil
	case "last", "ByLastPrice":
		return BasisLast, nil
	}
	return "", fmt.Errorf("unknown trigger price basis %q", s)
}

// ═══════════════════════════════════════════════════════════════════════════════
// MARKET DATA
// ═══════════════════════════════════════════════════════════════════════════════

// Ticker is a price snapshot for one symbol
type Ticker struct {
	Symbol string
	Last   decimal.Decimal
	Mark   decimal.Decimal
	Time   time.Time
}

// Price returns the price for the given basis, falling back to last when the
// exchange did not report a mark price.
func (t *Ticker) Price(basis PriceBasis) decimal.Decimal {
	if basis == BasisMark && !t.Mark.IsZero() {
		return t.Mark
	}
	return t.Last
}

// Level is one price level of an order book
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBook holds bids (best first) and asks (best first)
type OrderBook struct {
	Bids []Level
	Asks []Level
}

// BestBid returns the top bid
func (b *OrderBook) BestBid() (decimal.Decimal, bool) {
	if b == nil || len(b.Bids) == 0 {
		return decimal.Zero, false
	}
	return b.Bids[0].Price, true
}

// BestAsk returns the top ask
func (b *OrderBook) BestAsk() (decimal.Decimal, bool) {
	if b == nil || len(b.Asks) == 0 {
		return decimal.Zero, false
	}
	return b.Asks[0].Price, true
}

// Balance maps an asset to its free amount
type Balance map[string]decimal.Decimal

// Free returns the free amount of an asset (zero when absent)
func (b Balance) Free(asset string) decimal.Decimal {
	if v, ok := b[asset]; ok {
		return v
	}
	return decimal.Zero
}

// ═══════════════════════════════════════════════════════════════════════════════
// ORDERS
// ═══════════════════════════════════════════════════════════════════════════════

// OrderStatus is the normalized exchange order state
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusClosed   OrderStatus = "closed"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusRejected OrderStatus = "rejected"
)

// OrderRequest is what the executor hands to a gateway
type OrderRequest struct {
	Symbol       string
	Type         OrderType
	Side         OrderSide
	Amount       decimal.Decimal
	Price        decimal.Decimal // limit price, reference price for market
	StopPrice    decimal.Decimal // stop orders only
	TriggerBasis PriceBasis      // stop orders only
	ReduceOnly   bool
	ClientID     string
}

// Order is the gateway's view of a placed order
type Order struct {
	ID     string
	Symbol string
	Side   OrderSide
	Type   OrderType
	Status OrderStatus
	Price  decimal.Decimal
	Amount decimal.Decimal
	Filled decimal.Decimal
	Fees   decimal.Decimal
}

// ═══════════════════════════════════════════════════════════════════════════════
// POSITIONS
// ═══════════════════════════════════════════════════════════════════════════════

// Position represents the single tracked position for a symbol
type Position struct {
	ID            string
	Symbol        string
	Side          Side
	EntryPrice    decimal.Decimal
	Amount        decimal.Decimal
	TrailingStop  *decimal.Decimal // nil until the first favorable tick
	EmergencyExit decimal.Decimal
	StopOrderID   string // resting protective order, "" if none
	OpenedAt      time.Time
}

// Clone returns a deep copy safe to hand out of the store
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	if p.TrailingStop != nil {
		stop := *p.TrailingStop
		cp.TrailingStop = &stop
	}
	return &cp
}

// HasStop reports whether a trailing stop has been set
func (p *Position) HasStop() bool {
	return p.TrailingStop != nil
}

// StopString formats the stop for logs
func (p *Position) StopString() string {
	if p.TrailingStop == nil {
		return "unset"
	}
	return p.TrailingStop.String()
}

// TradeLogEntry is one append-only trade history row
type TradeLogEntry struct {
	Timestamp time.Time
	Action    string
	OrderType OrderType
	Symbol    string
	Price     decimal.Decimal
	Amount    decimal.Decimal
	Fees      string
	Status    string
}

// TradeLogger persists trade history rows
type TradeLogger interface {
	LogTrade(entry TradeLogEntry) error
}
