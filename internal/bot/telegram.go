// Package bot provides Telegram bot functionality
//
// telegram.go - operator alerts for position events plus /status and
// /trades commands.
package bot

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/trailguard/core"
	"github.com/web3guy0/trailguard/types"
)

// StatusSource is the engine view the commands read from
type StatusSource interface {
	Symbol() string
	Position() (*types.Position, bool)
	LastPrice() (core.PricePoint, bool)
}

// TradeHistory lists trade log rows, newest first, and counts them by outcome
type TradeHistory interface {
	RecentTrades(limit int) ([]types.TradeLogEntry, error)
	GetStats() (map[string]int64, error)
}

// Sender is the part of the Bot API used here
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier forwards important events to one chat and answers commands
type Notifier struct {
	api    Sender
	chatID int64
	status StatusSource
	trades TradeHistory

	outbox chan string
	stopCh chan struct{}
}

// New connects to Telegram
func New(token string, chatID int64) (*Notifier, *tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot connected")
	return NewNotifier(api, chatID), api, nil
}

// NewNotifier builds a notifier on any Sender
func NewNotifier(api Sender, chatID int64) *Notifier {
	return &Notifier{
		api:    api,
		chatID: chatID,
		outbox: make(chan string, 64),
		stopCh: make(chan struct{}),
	}
}

// Attach sets what the commands read from. Call before Start.
func (n *Notifier) Attach(status StatusSource, trades TradeHistory) {
	n.status = status
	n.trades = trades
}

// Start delivers queued alerts and, when updates is non-nil, answers
// commands from it.
func (n *Notifier) Start(updates tgbotapi.UpdatesChannel) {
	go n.deliver()
	if updates != nil {
		go n.listenForCommands(updates)
	}
	if n.chatID != 0 && n.status != nil {
		n.enqueue(fmt.Sprintf("🟢 *Trailguard started* on `%s`", n.status.Symbol()))
	}
}

// Stop stops the bot
func (n *Notifier) Stop() {
	close(n.stopCh)
}

// Observe implements types.Observer. It never blocks the caller; alerts are
// dropped when the outbox is full.
func (n *Notifier) Observe(ev types.Event) {
	if n.chatID == 0 {
		return
	}
	if text := FormatEvent(ev); text != "" {
		n.enqueue(text)
	}
}

func (n *Notifier) enqueue(text string) {
	select {
	case n.outbox <- text:
	default:
		log.Warn().Msg("Telegram outbox full, alert dropped")
	}
}

func (n *Notifier) deliver() {
	for {
		select {
		case text := <-n.outbox:
			n.sendText(n.chatID, text)
		case <-n.stopCh:
			return
		}
	}
}

func (n *Notifier) listenForCommands(updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil && update.Message.IsCommand() {
				n.sendText(update.Message.Chat.ID, n.Reply(update.Message.Command()))
			}
		case <-n.stopCh:
			return
		}
	}
}

func (n *Notifier) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

// Commands

// Reply renders the answer to a command
func (n *Notifier) Reply(command string) string {
	switch command {
	case "start", "help":
		return "🛡️ *Trailguard*\n/status - open position and last price\n/trades - recent trade log"
	case "status":
		if n.status == nil {
			return "Engine not ready"
		}
		return n.cmdStatus()
	case "trades":
		return n.cmdTrades()
	}
	return "❓ Unknown command. Use /help for available commands."
}

func (n *Notifier) cmdStatus() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 *%s*\n", n.status.Symbol()))

	if p, ok := n.status.LastPrice(); ok {
		sb.WriteString(fmt.Sprintf("Price: `%s` (%s ago)\n", p.Price.String(), time.Since(p.At).Round(time.Second)))
	} else {
		sb.WriteString("Price: unknown\n")
	}

	pos, ok := n.status.Position()
	if !ok {
		sb.WriteString("No open position")
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("Side: *%s*\nEntry: `%s`\nAmount: `%s`\nStop: `%s`\nEmergency: `%s`",
		strings.ToUpper(string(pos.Side)),
		pos.EntryPrice.String(),
		pos.Amount.String(),
		pos.StopString(),
		pos.EmergencyExit.String(),
	))
	return sb.String()
}

func (n *Notifier) cmdTrades() string {
	if n.trades == nil {
		return "Trade log unavailable"
	}
	rows, err := n.trades.RecentTrades(10)
	if err != nil {
		return "❌ Failed to load trades: " + err.Error()
	}
	if len(rows) == 0 {
		return "No trades yet"
	}

	var sb strings.Builder
	sb.WriteString("📜 *Recent trades*\n")
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("`%s` %s %s %s @ %s | %s\n",
			r.Timestamp.Format("01-02 15:04"),
			r.Action, r.OrderType, r.Amount.StringFixed(4), r.Price.StringFixed(2), r.Status))
	}

	if stats, err := n.trades.GetStats(); err == nil {
		sb.WriteString(fmt.Sprintf("\nTotal: %d | Placed: %d | Expired: %d | Failed: %d",
			stats["total"], stats["placed"], stats["expired"], stats["failed"]))
	} else {
		log.Warn().Err(err).Msg("Failed to load trade stats")
	}
	return sb.String()
}

// FormatEvent renders an alert, "" for events not worth a message
func FormatEvent(ev types.Event) string {
	side := strings.ToUpper(string(ev.Side))
	switch ev.Kind {
	case types.EventPositionOpened:
		return fmt.Sprintf("📈 *%s opened* %s\nAmount: `%s` @ `%s`", side, ev.Symbol, ev.Amount, ev.Price)
	case types.EventExitTriggered:
		return fmt.Sprintf("🚪 *%s exit* %s (%s)\nPrice: `%s` Stop: `%s`", side, ev.Symbol, ev.Reason, ev.Price, ev.Stop)
	case types.EventExitFailed:
		return fmt.Sprintf("💀 *EXIT FAILED* %s %s\nPosition is no longer tracked, check the exchange.\n`%v`", side, ev.Symbol, ev.Err)
	case types.EventProtectiveOrderFailed:
		return fmt.Sprintf("❌ *Stop order failed* %s at `%s`\n`%v`", ev.Symbol, ev.Stop, ev.Err)
	case types.EventEntryFailed:
		return fmt.Sprintf("❌ *Entry failed* %s %s\n`%v`", side, ev.Symbol, ev.Err)
	}
	return ""
}
