package risk

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/trailguard/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION SIZING - Leveraged balance sizing and entry pricing
// ═══════════════════════════════════════════════════════════════════════════════
//
// Formula: amount = free_quote * leverage * 0.95 / price
//
// The 5% haircut leaves room for fees and price drift between the quote
// and the fill.
//
// ═══════════════════════════════════════════════════════════════════════════════

var (
	hundred        = decimal.NewFromInt(100)
	one            = decimal.NewFromInt(1)
	defaultHaircut = decimal.NewFromFloat(0.95)
)

// Sizer turns a free balance into an order amount
type Sizer struct {
	leverage decimal.Decimal
	haircut  decimal.Decimal
}

// NewSizer creates a new position sizer
func NewSizer(leverage decimal.Decimal) *Sizer {
	if !leverage.IsPositive() {
		leverage = one
	}
	return &Sizer{
		leverage: leverage,
		haircut:  defaultHaircut,
	}
}

// Calculate computes the order amount for a balance at a price
func (s *Sizer) Calculate(freeQuote, price decimal.Decimal) decimal.Decimal {
	return OrderAmount(freeQuote, s.leverage, price)
}

// OrderAmount = freeQuote * leverage * 0.95 / price. Zero when price is not
// positive.
func OrderAmount(freeQuote, leverage, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || !freeQuote.IsPositive() {
		return decimal.Zero
	}
	return freeQuote.Mul(leverage).Mul(defaultHaircut).Div(price)
}

// CalculateOrderPrice applies the limit backtrace offset to a quote. Sell-side
// actions are offset below the quote, everything else above. A nil percent
// returns the quote unchanged.
func CalculateOrderPrice(action types.Action, quote decimal.Decimal, backtracePct *decimal.Decimal) decimal.Decimal {
	if backtracePct == nil {
		return quote
	}
	offset := backtracePct.Div(hundred)
	if action.IsSellSide() {
		return quote.Mul(one.Sub(offset))
	}
	return quote.Mul(one.Add(offset))
}

// EmergencyExitLevel is the hard stop fixed at entry: below the entry for a
// long, above it for a short.
func EmergencyExitLevel(side types.Side, entry, pct decimal.Decimal) decimal.Decimal {
	if side == types.SideLong {
		return entry.Mul(one.Sub(pct))
	}
	return entry.Mul(one.Add(pct))
}
