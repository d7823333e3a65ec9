package types

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// EventKind names a state transition of interest to operators
type EventKind string

const (
	EventPositionOpened          EventKind = "position_opened"
	EventEntryFailed             EventKind = "entry_failed"
	EventEntryRejected           EventKind = "entry_rejected"
	EventLimitExpired            EventKind = "limit_expired"
	EventStopAdopted             EventKind = "stop_adopted"
	EventProtectiveOrderReplaced EventKind = "protective_order_replaced"
	EventProtectiveOrderFailed   EventKind = "protective_order_failed"
	EventCancelFailed            EventKind = "cancel_failed"
	EventExitTriggered           EventKind = "exit_triggered"
	EventExitFailed              EventKind = "exit_failed"
	EventRetryAttempted          EventKind = "retry_attempted"
	EventPriceFetchFailed        EventKind = "price_fetch_failed"
	EventPriceUpdated            EventKind = "price_updated"
)

// Event is emitted once per state transition
type Event struct {
	Kind    EventKind
	Symbol  string
	Side    Side
	Price   decimal.Decimal
	Stop    decimal.Decimal
	Amount  decimal.Decimal
	OrderID string
	Reason  string
	Attempt int
	Delay   time.Duration
	Err     error
	Time    time.Time
}

// Observer consumes events
type Observer interface {
	Observe(ev Event)
}

// Observers fans an event out to every member
type Observers []Observer

// Observe implements Observer
func (o Observers) Observe(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ev)
		}
	}
}

// LogObserver writes every event as one structured log line
type LogObserver struct{}

// Observe implements Observer
func (LogObserver) Observe(ev Event) {
	var e *zerolog.Event
	switch ev.Kind {
	case EventExitFailed, EventProtectiveOrderFailed, EventEntryFailed:
		e = log.Error()
	case EventCancelFailed, EventRetryAttempted, EventPriceFetchFailed, EventEntryRejected, EventLimitExpired:
		e = log.Warn()
	case EventPriceUpdated:
		e = log.Debug()
	default:
		e = log.Info()
	}

	e = e.Str("event", string(ev.Kind)).Str("symbol", ev.Symbol)
	if ev.Side != "" {
		e = e.Str("side", string(ev.Side))
	}
	if !ev.Price.IsZero() {
		e = e.Str("price", ev.Price.String())
	}
	if !ev.Stop.IsZero() {
		e = e.Str("stop", ev.Stop.String())
	}
	if !ev.Amount.IsZero() {
		e = e.Str("amount", ev.Amount.String())
	}
	if ev.OrderID != "" {
		e = e.Str("order_id", ev.OrderID)
	}
	if ev.Reason != "" {
		e = e.Str("reason", ev.Reason)
	}
	if ev.Attempt > 0 {
		e = e.Int("attempt", ev.Attempt)
	}
	if ev.Delay > 0 {
		e = e.Dur("delay", ev.Delay)
	}
	if ev.Err != nil {
		e = e.Err(ev.Err)
	}
	e.Msg(eventMessages[ev.Kind])
}

var eventMessages = map[EventKind]string{
	EventPositionOpened:          "📈 Position opened",
	EventEntryFailed:             "❌ Entry failed",
	EventEntryRejected:           "⛔ Entry rejected",
	EventLimitExpired:            "⏱️ Limit order expired",
	EventStopAdopted:             "🔒 Trailing stop updated",
	EventProtectiveOrderReplaced: "🛡️ Protective order replaced",
	EventProtectiveOrderFailed:   "❌ Protective order failed",
	EventCancelFailed:            "⚠️ Cancel failed",
	EventExitTriggered:           "🚪 Exit triggered",
	EventExitFailed:              "💀 Exit order failed",
	EventRetryAttempted:          "🔁 Retrying order",
	EventPriceFetchFailed:        "⚠️ Price fetch failed",
	EventPriceUpdated:            "Price tick",
}
