package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Action is the instruction carried by an inbound signal
type Action string

const (
	ActionLongEntry          Action = "long_entry"
	ActionShortEntry         Action = "short_entry"
	ActionLongExit           Action = "long_exit"
	ActionShortExit          Action = "short_exit"
	ActionReverseLongToShort Action = "reverse_long_to_short"
	ActionReverseShortToLong Action = "reverse_short_to_long"
)

// Valid reports whether the action is one we understand
func (a Action) Valid() bool {
	switch a {
	case ActionLongEntry, ActionShortEntry, ActionLongExit, ActionShortExit,
		ActionReverseLongToShort, ActionReverseShortToLong:
		return true
	}
	return false
}

// IsSellSide groups the actions that hit the market by selling. The limit
// backtrace offset is applied below the quote for these.
func (a Action) IsSellSide() bool {
	return a == ActionShortEntry || a == ActionShortExit || a == ActionReverseLongToShort
}

// Signal is an authenticated entry/exit instruction
type Signal struct {
	AuthID                 string           `json:"auth_id"`
	Action                 Action           `json:"action"`
	OrderType              string           `json:"order_type,omitempty"`
	LimitBacktracePercent  *decimal.Decimal `json:"limit_backtrace_percent,omitempty"`
	LimitCancelTimeSeconds int              `json:"limit_cancel_time_seconds,omitempty"`
}

// Validate checks the fields the core relies on
func (s *Signal) Validate() error {
	if !s.Action.Valid() {
		return fmt.Errorf("unknown action %q", s.Action)
	}
	if _, err := ParseOrderType(s.OrderType); err != nil {
		return err
	}
	if s.LimitCancelTimeSeconds < 0 {
		return fmt.Errorf("limit_cancel_time_seconds must be >= 0")
	}
	if s.LimitBacktracePercent != nil && s.LimitBacktracePercent.IsNegative() {
		return fmt.Errorf("limit_backtrace_percent must be >= 0")
	}
	return nil
}
