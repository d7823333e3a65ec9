package exec

import (
	"context"
	"errors"
	"fmt"

	"github.com/web3guy0/trailguard/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXCHANGE GATEWAY - the only surface the core uses to talk to an exchange
// ═══════════════════════════════════════════════════════════════════════════════
//
// Every call may fail with a *TransientError (network class, safe to retry).
// Any other error is an application-level rejection and must not be retried.
//
// ═══════════════════════════════════════════════════════════════════════════════

// MarketData is the read-only half of a gateway
type MarketData interface {
	FetchTicker(ctx context.Context, symbol string) (*types.Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string) (*types.OrderBook, error)
}

// Gateway executes orders and answers account queries
type Gateway interface {
	MarketData
	FetchBalance(ctx context.Context) (types.Balance, error)
	CreateOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error)
	CancelOrder(ctx context.Context, orderID, symbol string) error
	FetchOrder(ctx context.Context, orderID, symbol string) (*types.Order, error)
}

// ErrTransient is matched by every *TransientError
var ErrTransient = errors.New("transient gateway error")

// TransientError marks a network-class failure
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransient) match
func (e *TransientError) Is(target error) bool { return target == ErrTransient }

// Transient wraps err as retryable
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err may be retried
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
