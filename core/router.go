package core

import (
	"github.com/web3guy0/trailguard/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ROUTER - Maps a signal onto the tracked position
// ═══════════════════════════════════════════════════════════════════════════════
//
//   entry, nothing open          → open
//   entry, same side open        → reject
//   entry, opposite side open    → close, then open
//   exit, matching side open     → close
//   exit, otherwise              → no-op
//   reverse, opposite side open  → close, then open
//   reverse, nothing open        → open
//   reverse, target side open    → reject
//
// ═══════════════════════════════════════════════════════════════════════════════

// Route is what a signal asks of the current position
type Route struct {
	Close  bool       // close the current position first
	Open   types.Side // side to open afterwards, "" for none
	Reject bool       // refuse the signal, leave the position alone
}

// Noop reports whether the route does nothing
func (r Route) Noop() bool {
	return !r.Close && r.Open == "" && !r.Reject
}

// RouteSignal decides how action applies to cur (nil when flat)
func RouteSignal(action types.Action, cur *types.Position) Route {
	switch action {
	case types.ActionLongEntry, types.ActionReverseShortToLong:
		return routeOpen(types.SideLong, cur)
	case types.ActionShortEntry, types.ActionReverseLongToShort:
		return routeOpen(types.SideShort, cur)
	case types.ActionLongExit:
		return routeClose(types.SideLong, cur)
	case types.ActionShortExit:
		return routeClose(types.SideShort, cur)
	}
	return Route{}
}

func routeOpen(target types.Side, cur *types.Position) Route {
	if cur == nil {
		return Route{Open: target}
	}
	if cur.Side == target {
		return Route{Reject: true}
	}
	return Route{Close: true, Open: target}
}

func routeClose(side types.Side, cur *types.Position) Route {
	if cur != nil && cur.Side == side {
		return Route{Close: true}
	}
	return Route{}
}
