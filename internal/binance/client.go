package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/trailguard/types"
)

// Futures websocket endpoints
const (
	FuturesWSURL        = "wss://fstream.binance.com/ws"
	FuturesTestnetWSURL = "wss://stream.binancefuture.com/ws"
)

var (
	// ErrNoData means nothing has been received yet
	ErrNoData = errors.New("no price received yet")
	// ErrStale means the last price is older than the staleness window
	ErrStale = errors.New("price stream is stale")
)

// MarkStream keeps the latest futures price for one symbol. On the mark
// basis it follows <sym>@markPrice@1s, on the last basis <sym>@aggTrade.
type MarkStream struct {
	wsURL      string
	symbol     string
	stream     string
	staleAfter time.Duration

	mu      sync.RWMutex
	conn    *websocket.Conn
	price   decimal.Decimal
	index   decimal.Decimal
	updated time.Time

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMarkStream creates a stream for a unified symbol such as BTC/USDT
func NewMarkStream(wsURL, symbol string, basis types.PriceBasis) *MarkStream {
	name := strings.ToLower(strings.ReplaceAll(symbol, "/", ""))
	stream := name + "@markPrice@1s"
	if basis == types.BasisLast {
		stream = name + "@aggTrade"
	}
	return &MarkStream{
		wsURL:      strings.TrimSuffix(wsURL, "/"),
		symbol:     symbol,
		stream:     stream,
		staleAfter: 10 * time.Second,
	}
}

// SetStaleAfter changes how old a price may be before Price fails
func (s *MarkStream) SetStaleAfter(d time.Duration) {
	s.staleAfter = d
}

// Start connects in the background and keeps reconnecting until Stop
func (s *MarkStream) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run()
	log.Info().Str("stream", s.stream).Msg("📈 Price stream started")
}

// Stop closes the connection and waits for the reader to exit
func (s *MarkStream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
	<-s.doneCh
}

// Price implements core.PriceSource
func (s *MarkStream) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if symbol != s.symbol {
		return decimal.Zero, fmt.Errorf("stream serves %s, not %s", s.symbol, symbol)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.updated.IsZero() {
		return decimal.Zero, ErrNoData
	}
	if s.staleAfter > 0 && time.Since(s.updated) > s.staleAfter {
		return decimal.Zero, fmt.Errorf("%w: last update %s ago", ErrStale, time.Since(s.updated).Round(time.Second))
	}
	return s.price, nil
}

// IndexPrice returns the last index price seen on the mark stream
func (s *MarkStream) IndexPrice() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

func (s *MarkStream) run() {
	defer close(s.doneCh)

	retry := 0
	for {
		err := s.connect()
		if err == nil {
			retry = 0
			s.readMessages()
		} else {
			log.Error().Err(err).Msg("WebSocket connection failed")
		}

		delay := reconnectDelay(retry)
		retry++
		select {
		case <-s.stopCh:
			return
		case <-time.After(delay):
			log.Warn().Dur("delay", delay).Msg("WebSocket disconnected, reconnecting...")
		}
	}
}

// reconnectDelay doubles from 1s up to 30s
func reconnectDelay(retry int) time.Duration {
	if retry > 5 {
		retry = 5
	}
	d := time.Second << retry
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func (s *MarkStream) connect() error {
	url := fmt.Sprintf("%s/%s", s.wsURL, s.stream)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		conn.Close()
		return errors.New("stream stopped")
	}
	s.conn = conn
	s.mu.Unlock()

	log.Info().Str("url", url).Msg("🔌 WebSocket connected to Binance")
	return nil
}

func (s *MarkStream) readMessages() {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
			default:
				log.Error().Err(err).Msg("WebSocket read error")
			}
			return
		}
		s.handleMessage(message)
	}
}

// streamEvent covers markPriceUpdate and aggTrade payloads
type streamEvent struct {
	Type  string `json:"e"`
	Price string `json:"p"`
	Index string `json:"i"`
}

func (s *MarkStream) handleMessage(data []byte) {
	var ev streamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	if ev.Type != "markPriceUpdate" && ev.Type != "aggTrade" {
		return
	}

	price, err := decimal.NewFromString(ev.Price)
	if err != nil || !price.IsPositive() {
		return
	}

	s.mu.Lock()
	s.price = price
	if idx, err := decimal.NewFromString(ev.Index); err == nil {
		s.index = idx
	}
	s.updated = time.Now()
	s.mu.Unlock()
}
