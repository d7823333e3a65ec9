package exec

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/trailguard/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BINANCE FUTURES GATEWAY
// ═══════════════════════════════════════════════════════════════════════════════
//
// USDⓈ-M futures through go-binance. Protective orders are conditional
// STOP_MARKET algo orders, reduce-only, triggered by mark or contract (last)
// price. Their ids carry the "algo-" prefix so cancel and fetch reach the
// algo endpoints.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	depthLimit   = 5
	algoIDPrefix = "algo-"
)

// Client is the live exchange gateway
type Client struct {
	api *futures.Client

	mu        sync.Mutex
	precision map[string]symbolPrecision
}

type symbolPrecision struct {
	price    int32
	quantity int32
}

// NewClient creates a Binance futures gateway. Keys may be empty for
// market-data only use (paper mode).
func NewClient(apiKey, apiSecret string, testnet bool) *Client {
	if testnet {
		futures.UseTestnet = true
	}

	mode := "LIVE"
	if testnet {
		mode = "TESTNET"
	}
	log.Info().
		Str("mode", mode).
		Bool("authenticated", apiKey != "").
		Msg("🚀 Binance futures gateway initialized")

	return &Client{
		api:       binance.NewFuturesClient(apiKey, apiSecret),
		precision: make(map[string]symbolPrecision),
	}
}

// FetchTicker returns last and mark price
func (c *Client) FetchTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	sym := exchangeSymbol(symbol)

	prices, err := c.api.NewListPricesService().Symbol(sym).Do(ctx)
	if err != nil {
		return nil, classify("fetch ticker", err)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("fetch ticker: no price for %s", sym)
	}
	last, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return nil, fmt.Errorf("fetch ticker: parse price: %w", err)
	}

	ticker := &types.Ticker{Symbol: symbol, Last: last}

	idx, err := c.api.NewPremiumIndexService().Symbol(sym).Do(ctx)
	if err != nil {
		return nil, classify("fetch mark price", err)
	}
	if len(idx) > 0 {
		if mark, err := decimal.NewFromString(idx[0].MarkPrice); err == nil {
			ticker.Mark = mark
		}
	}
	return ticker, nil
}

// FetchOrderBook returns the top of the book
func (c *Client) FetchOrderBook(ctx context.Context, symbol string) (*types.OrderBook, error) {
	res, err := c.api.NewDepthService().Symbol(exchangeSymbol(symbol)).Limit(depthLimit).Do(ctx)
	if err != nil {
		return nil, classify("fetch order book", err)
	}

	book := &types.OrderBook{
		Bids: make([]types.Level, 0, len(res.Bids)),
		Asks: make([]types.Level, 0, len(res.Asks)),
	}
	for _, b := range res.Bids {
		book.Bids = append(book.Bids, parseLevel(b.Price, b.Quantity))
	}
	for _, a := range res.Asks {
		book.Asks = append(book.Asks, parseLevel(a.Price, a.Quantity))
	}
	return book, nil
}

// FetchBalance returns the available balance per asset
func (c *Client) FetchBalance(ctx context.Context) (types.Balance, error) {
	balances, err := c.api.NewGetBalanceService().Do(ctx)
	if err != nil {
		return nil, classify("fetch balance", err)
	}

	out := make(types.Balance, len(balances))
	for _, b := range balances {
		free, err := decimal.NewFromString(b.AvailableBalance)
		if err != nil {
			continue
		}
		out[b.Asset] = free
	}
	return out, nil
}

// CreateOrder places a market, limit or stop order
func (c *Client) CreateOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error) {
	sym := exchangeSymbol(req.Symbol)
	prec, err := c.symbolPrecision(ctx, sym)
	if err != nil {
		return nil, err
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = "tg-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:20]
	}

	if req.Type == types.OrderTypeStop {
		return c.createStopOrder(ctx, req, sym, prec, clientID)
	}

	svc := c.api.NewCreateOrderService().
		Symbol(sym).
		Side(orderSide(req.Side)).
		Quantity(req.Amount.Truncate(prec.quantity).String()).
		NewClientOrderID(clientID)

	switch req.Type {
	case types.OrderTypeMarket:
		svc = svc.Type(futures.OrderTypeMarket)
	case types.OrderTypeLimit:
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(req.Price.Round(prec.price).String())
	default:
		return nil, fmt.Errorf("unsupported order type %q", req.Type)
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, classify("create order", err)
	}

	order := &types.Order{
		ID:     strconv.FormatInt(res.OrderID, 10),
		Symbol: req.Symbol,
		Side:   req.Side,
		Type:   req.Type,
		Status: orderStatus(res.Status),
		Price:  req.Price,
		Amount: req.Amount,
	}
	order.Filled, _ = decimal.NewFromString(res.ExecutedQuantity)

	log.Debug().
		Str("order_id", order.ID).
		Str("client_id", clientID).
		Str("type", string(req.Type)).
		Str("side", string(req.Side)).
		Str("status", string(order.Status)).
		Msg("✅ Order placed")

	return order, nil
}

// createStopOrder places a conditional STOP_MARKET through the algo order API
func (c *Client) createStopOrder(ctx context.Context, req types.OrderRequest, sym string, prec symbolPrecision, clientID string) (*types.Order, error) {
	res, err := c.api.NewCreateAlgoOrderService().
		Symbol(sym).
		Side(orderSide(req.Side)).
		Type(futures.AlgoOrderTypeStopMarket).
		Quantity(req.Amount.Truncate(prec.quantity).String()).
		TriggerPrice(req.StopPrice.Round(prec.price).String()).
		WorkingType(workingType(req.TriggerBasis)).
		ReduceOnly(req.ReduceOnly).
		ClientAlgoId(clientID).
		Do(ctx)
	if err != nil {
		return nil, classify("create stop order", err)
	}

	order := &types.Order{
		ID:     algoIDPrefix + strconv.FormatInt(res.AlgoId, 10),
		Symbol: req.Symbol,
		Side:   req.Side,
		Type:   req.Type,
		Status: algoStatus(res.AlgoStatus),
		Price:  req.StopPrice,
		Amount: req.Amount,
	}

	log.Debug().
		Str("order_id", order.ID).
		Str("client_id", clientID).
		Str("trigger", res.TriggerPrice).
		Str("working_type", string(res.WorkingType)).
		Msg("✅ Stop order placed")

	return order, nil
}

// SetLeverage applies the configured leverage to the symbol
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := c.api.NewChangeLeverageService().Symbol(exchangeSymbol(symbol)).Leverage(leverage).Do(ctx)
	return classify("set leverage", err)
}

// CancelOrder cancels a resting order
func (c *Client) CancelOrder(ctx context.Context, orderID, symbol string) error {
	id, algo, err := parseOrderID(orderID)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if algo {
		_, err = c.api.NewCancelAlgoOrderService().AlgoID(id).Do(ctx)
		return classify("cancel stop order", err)
	}
	_, err = c.api.NewCancelOrderService().Symbol(exchangeSymbol(symbol)).OrderID(id).Do(ctx)
	return classify("cancel order", err)
}

// FetchOrder returns the current state of an order
func (c *Client) FetchOrder(ctx context.Context, orderID, symbol string) (*types.Order, error) {
	id, algo, err := parseOrderID(orderID)
	if err != nil {
		return nil, fmt.Errorf("fetch order: %w", err)
	}
	if algo {
		return c.fetchStopOrder(ctx, orderID, symbol, id)
	}
	res, err := c.api.NewGetOrderService().Symbol(exchangeSymbol(symbol)).OrderID(id).Do(ctx)
	if err != nil {
		return nil, classify("fetch order", err)
	}

	order := &types.Order{
		ID:     orderID,
		Symbol: symbol,
		Status: orderStatus(res.Status),
	}
	order.Price, _ = decimal.NewFromString(res.Price)
	order.Amount, _ = decimal.NewFromString(res.OrigQuantity)
	order.Filled, _ = decimal.NewFromString(res.ExecutedQuantity)
	return order, nil
}

func (c *Client) fetchStopOrder(ctx context.Context, orderID, symbol string, id int64) (*types.Order, error) {
	res, err := c.api.NewGetAlgoOrderService().AlgoID(id).Do(ctx)
	if err != nil {
		return nil, classify("fetch stop order", err)
	}

	order := &types.Order{
		ID:     orderID,
		Symbol: symbol,
		Type:   types.OrderTypeStop,
		Status: algoStatus(res.AlgoStatus),
	}
	order.Price, _ = decimal.NewFromString(res.TriggerPrice)
	order.Amount, _ = decimal.NewFromString(res.Quantity)
	if order.Status == types.OrderStatusClosed {
		order.Filled = order.Amount
	}
	return order, nil
}

// symbolPrecision loads price/quantity decimals once per symbol
func (c *Client) symbolPrecision(ctx context.Context, sym string) (symbolPrecision, error) {
	c.mu.Lock()
	p, ok := c.precision[sym]
	c.mu.Unlock()
	if ok {
		return p, nil
	}

	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return symbolPrecision{}, classify("exchange info", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range info.Symbols {
		c.precision[s.Symbol] = symbolPrecision{
			price:    int32(s.PricePrecision),
			quantity: int32(s.QuantityPrecision),
		}
	}
	p, ok = c.precision[sym]
	if !ok {
		return symbolPrecision{}, fmt.Errorf("unknown symbol %s", sym)
	}
	return p, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

// classify separates exchange rejections from transport failures
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if common.IsAPIError(err) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return Transient(op, err)
}

// exchangeSymbol turns "BTC/USDT" into "BTCUSDT"
func exchangeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

func parseLevel(price, qty string) types.Level {
	p, _ := decimal.NewFromString(price)
	q, _ := decimal.NewFromString(qty)
	return types.Level{Price: p, Quantity: q}
}

func orderSide(s types.OrderSide) futures.SideType {
	if s == types.OrderSideBuy {
		return futures.SideTypeBuy
	}
	return futures.SideTypeSell
}

func workingType(b types.PriceBasis) futures.WorkingType {
	if b == types.BasisLast {
		return futures.WorkingTypeContractPrice
	}
	return futures.WorkingTypeMarkPrice
}

// parseOrderID splits an order id into the exchange id and whether it names
// an algo order
func parseOrderID(orderID string) (int64, bool, error) {
	raw, algo := strings.CutPrefix(orderID, algoIDPrefix)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("bad order id %q", orderID)
	}
	return id, algo, nil
}

// algoStatus maps a conditional order's lifecycle. A triggered or finished
// stop has handed its market order to the matching engine.
func algoStatus(s futures.AlgoOrderStatusType) types.OrderStatus {
	switch s {
	case futures.AlgoOrderStatusTypeNew, "TRIGGERING":
		return types.OrderStatusOpen
	case futures.AlgoOrderStatusTypeCanceled, futures.AlgoOrderStatusTypeExpired:
		return types.OrderStatusCanceled
	case futures.AlgoOrderStatusTypeRejected:
		return types.OrderStatusRejected
	case "TRIGGERED", "FINISHED":
		return types.OrderStatusClosed
	default:
		return types.OrderStatusOpen
	}
}

func orderStatus(s futures.OrderStatusType) types.OrderStatus {
	switch s {
	case futures.OrderStatusTypeFilled:
		return types.OrderStatusClosed
	case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeExpired:
		return types.OrderStatusCanceled
	case futures.OrderStatusTypeRejected:
		return types.OrderStatusRejected
	default:
		return types.OrderStatusOpen
	}
}
