package risk

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/trailguard/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRAILING STOP - Ratchet and exit evaluation
// ═══════════════════════════════════════════════════════════════════════════════
//
// A stop only moves in the favorable direction. A new candidate is
// considered when the price has not crossed the current stop, and adopted
// when it tightens it. The first favorable tick always sets it.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Exit reasons
const (
	ReasonTrailingStop  = "trailing_stop"
	ReasonEmergencyExit = "emergency_exit"
	ReasonSignal        = "signal"
)

// TrailingCandidate is the stop implied by the current price
func TrailingCandidate(side types.Side, price, pct decimal.Decimal) decimal.Decimal {
	if side == types.SideLong {
		return price.Mul(one.Sub(pct))
	}
	return price.Mul(one.Add(pct))
}

// Ratchet returns the stop to adopt for this tick, if any. pos is not
// modified.
func Ratchet(pos *types.Position, price, pct decimal.Decimal) (decimal.Decimal, bool) {
	candidate := TrailingCandidate(pos.Side, price, pct)
	if !pos.HasStop() {
		return candidate, true
	}

	stop := *pos.TrailingStop
	switch pos.Side {
	case types.SideLong:
		if price.GreaterThanOrEqual(stop) && candidate.GreaterThan(stop) {
			return candidate, true
		}
	case types.SideShort:
		if price.LessThanOrEqual(stop) && candidate.LessThan(stop) {
			return candidate, true
		}
	}
	return stop, false
}

// ExitReason reports why the position must be closed at price, or "" to
// keep it. The trailing stop takes precedence over the emergency level.
func ExitReason(pos *types.Position, price decimal.Decimal) string {
	switch pos.Side {
	case types.SideLong:
		if pos.HasStop() && price.LessThanOrEqual(*pos.TrailingStop) {
			return ReasonTrailingStop
		}
		if price.LessThanOrEqual(pos.EmergencyExit) {
			return ReasonEmergencyExit
		}
	case types.SideShort:
		if pos.HasStop() && price.GreaterThanOrEqual(*pos.TrailingStop) {
			return ReasonTrailingStop
		}
		if price.GreaterThanOrEqual(pos.EmergencyExit) {
			return ReasonEmergencyExit
		}
	}
	return ""
}
