package exec

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/trailguard/types"
)

// PaperGateway simulates order handling on top of real market data.
// Market orders fill at the current last price. Limit orders that cross on
// arrival fill at the last price; resting ones fill at their limit once a
// later FetchOrder sees the last price reach it. Stop orders rest until
// cancelled.
type PaperGateway struct {
	MarketData

	mu         sync.Mutex
	quoteAsset string
	balance    decimal.Decimal
	orders     map[string]*types.Order
}

// NewPaperGateway creates a dry-run gateway
func NewPaperGateway(market MarketData, quoteAsset string, quoteBalance decimal.Decimal) *PaperGateway {
	log.Info().
		Str("quote", quoteAsset).
		Str("balance", quoteBalance.StringFixed(2)).
		Msg("📝 Paper gateway initialized")

	return &PaperGateway{
		MarketData: market,
		quoteAsset: quoteAsset,
		balance:    quoteBalance,
		orders:     make(map[string]*types.Order),
	}
}

// FetchBalance returns the simulated quote balance
func (p *PaperGateway) FetchBalance(ctx context.Context) (types.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return types.Balance{p.quoteAsset: p.balance}, nil
}

// CreateOrder records and possibly fills an order
func (p *PaperGateway) CreateOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("create order: amount must be positive")
	}

	order := &types.Order{
		ID:     uuid.New().String(),
		Symbol: req.Symbol,
		Side:   req.Side,
		Type:   req.Type,
		Status: types.OrderStatusOpen,
		Price:  req.Price,
		Amount: req.Amount,
		Filled: decimal.Zero,
	}

	if req.Type != types.OrderTypeStop {
		ticker, err := p.FetchTicker(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}
		last := ticker.Last
		if req.Type == types.OrderTypeMarket || crosses(req.Side, req.Price, last) {
			order.Status = types.OrderStatusClosed
			order.Filled = req.Amount
			order.Price = last
		}
	} else {
		order.Price = req.StopPrice
	}

	p.mu.Lock()
	p.orders[order.ID] = order
	p.mu.Unlock()

	log.Info().
		Str("order_id", order.ID).
		Str("type", string(req.Type)).
		Str("side", string(req.Side)).
		Str("price", order.Price.String()).
		Str("amount", req.Amount.String()).
		Str("status", string(order.Status)).
		Msg("📝 PAPER: Order recorded")

	cp := *order
	return &cp, nil
}

// CancelOrder marks an open order cancelled
func (p *PaperGateway) CancelOrder(ctx context.Context, orderID, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("cancel order: unknown order %s", orderID)
	}
	if order.Status != types.OrderStatusOpen {
		return fmt.Errorf("cancel order: order %s is %s", orderID, order.Status)
	}
	order.Status = types.OrderStatusCanceled
	return nil
}

// FetchOrder returns a copy of a recorded order, filling a resting limit
// order first if the last price has reached it
func (p *PaperGateway) FetchOrder(ctx context.Context, orderID, symbol string) (*types.Order, error) {
	p.mu.Lock()
	order, ok := p.orders[orderID]
	resting := ok && order.Type == types.OrderTypeLimit && order.Status == types.OrderStatusOpen
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("fetch order: unknown order %s", orderID)
	}

	var last decimal.Decimal
	if resting {
		ticker, err := p.FetchTicker(ctx, symbol)
		if err != nil {
			return nil, err
		}
		last = ticker.Last
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if resting && order.Status == types.OrderStatusOpen && crosses(order.Side, order.Price, last) {
		order.Status = types.OrderStatusClosed
		order.Filled = order.Amount
		log.Info().
			Str("order_id", order.ID).
			Str("price", order.Price.String()).
			Msg("📝 PAPER: Limit order filled")
	}
	cp := *order
	return &cp, nil
}

// crosses reports whether a limit price is marketable at last
func crosses(side types.OrderSide, price, last decimal.Decimal) bool {
	if side == types.OrderSideBuy {
		return price.GreaterThanOrEqual(last)
	}
	return price.LessThanOrEqual(last)
}
