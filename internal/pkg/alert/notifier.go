// Package alert posts data-quality findings to a Telegram chat. Alerting is
// strictly best-effort: a nil or failing notifier never affects the pipeline.
package alert

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/akovalev/minutecast/internal/pkg/config"
	"github.com/akovalev/minutecast/internal/pkg/models"
)

// Min interval between two Telegram messages to the same chat, to stay under
// the bot API rate limit.
const sendInterval = 2 * time.Second

// Notifier sends quality alerts through a Telegram bot. All methods are safe
// on a nil receiver, so callers need no enabled/disabled branching.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *slog.Logger

	queue chan string
	wg    sync.WaitGroup
	done  chan struct{}
}

// New returns nil when no token is configured or the bot cannot be reached;
// the pipeline then runs without alerting.
func New(cfg config.AlertConfig) *Notifier {
	log := slog.Default().With("component", "alert")
	if cfg.TelegramBotToken == "" {
		log.Info("telegram alerts disabled, no token configured")
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Error("create telegram bot failed, alerts disabled", "error", err)
		return nil
	}
	bot.Debug = false
	if _, err := bot.GetMe(); err != nil {
		log.Error("telegram bot unreachable, alerts disabled", "error", err)
		return nil
	}

	n := &Notifier{
		bot:    bot,
		chatID: cfg.TelegramChatID,
		log:    log,
		queue:  make(chan string, 100),
		done:   make(chan struct{}),
	}
	n.wg.Add(1)
	go n.sender()

	log.Info("telegram alerts enabled", "chat_id", cfg.TelegramChatID)
	return n
}

// RecordQualityAlert queues a summary of the report's anomalies. Clean
// reports are not sent. Never blocks: if the queue is full the alert is
// dropped and logged.
func (n *Notifier) RecordQualityAlert(report models.QualityReport) {
	if n == nil || report.Clean() {
		return
	}
	select {
	case n.queue <- formatReport(report):
	default:
		n.log.Warn("alert queue full, dropping quality alert", "match_id", report.MatchID)
	}
}

// Close stops the sender after draining queued alerts.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	close(n.done)
	n.wg.Wait()
}

func (n *Notifier) sender() {
	defer n.wg.Done()
	for {
		select {
		case text := <-n.queue:
			n.send(text)
		case <-n.done:
			for {
				select {
				case text := <-n.queue:
					n.send(text)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Error("send quality alert failed", "error", err)
	}
	time.Sleep(sendInterval)
}

func formatReport(report models.QualityReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ <b>Data quality: match %d</b>\n", report.MatchID)
	fmt.Fprintf(&b, "Final minute: %d, coverage %.0f%%, fills %d\n",
		report.FinalMinute, report.CoverageRatio*100, len(report.Fills))
	for i, a := range report.Anomalies {
		if i == maxListedAnomalies {
			fmt.Fprintf(&b, "… and %d more\n", len(report.Anomalies)-maxListedAnomalies)
			break
		}
		fmt.Fprintf(&b, "• minute %d: %s (%s)\n", a.Minute, a.Kind, a.Detail)
	}
	return b.String()
}

// Telegram messages cap at 4096 chars; ten lines keeps well clear of it.
const maxListedAnomalies = 10
