// Package notify announces draw outcomes to an operator Telegram chat.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/logger"

	"github.com/kkkkikiki/cashcode/internal/model"
)

// sender is the part of tgbotapi.BotAPI the notifier uses
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

const (
	sendTimeout = 10 * time.Second
	queueSize   = 64
)

// Telegram posts lifecycle events to one chat. Messages are queued and sent
// from a background goroutine, so a slow Telegram API never holds up a draw
// or a claim. Send failures are logged and never reach the lifecycle.
type Telegram struct {
	bot    sender
	chatID int64

	mu     sync.Mutex
	closed bool
	queue  chan string
	done   chan struct{}
}

// NewTelegram authorises the bot token and returns a notifier for chatID
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: sendTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to authorise telegram bot: %w", err)
	}
	logger.Infof("Telegram bot authorised as %s", bot.Self.UserName)
	return newTelegram(bot, chatID), nil
}

func newTelegram(bot sender, chatID int64) *Telegram {
	t := &Telegram{
		bot:    bot,
		chatID: chatID,
		queue:  make(chan string, queueSize),
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

// WinnerDrawn announces a new winner. The code is never sent.
func (t *Telegram) WinnerDrawn(_ context.Context, draw model.Draw) {
	t.enqueue(winnerText(draw))
}

// GhostRecorded announces a winner who missed the claim window
func (t *Telegram) GhostRecorded(_ context.Context, ghost model.GhostWinner) {
	t.enqueue(ghostText(ghost))
}

// Close stops accepting messages and waits for the queue to drain
func (t *Telegram) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()
	<-t.done
}

func (t *Telegram) enqueue(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- text:
	default:
		logger.Warningf("Telegram queue full, dropping notification: %s", text)
	}
}

func (t *Telegram) run() {
	defer close(t.done)
	for text := range t.queue {
		if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
			logger.Warningf("Failed to send telegram notification: %v", err)
		}
	}
}

func winnerText(draw model.Draw) string {
	winner, expires := "unknown", "unknown"
	if draw.WinnerID != nil {
		winner = *draw.WinnerID
	}
	if draw.ExpiresAt != nil {
		expires = draw.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("Draw %s: user %s won %s. Claim window closes %s.",
		draw.WeekKey, winner, draw.PrizeAmount.StringFixed(2), expires)
}

func ghostText(ghost model.GhostWinner) string {
	return fmt.Sprintf("Draw %s: user %s missed the claim window, %s unclaimed (%s).",
		ghost.WeekKey, ghost.UserID, ghost.PrizeAmount.StringFixed(2), ghost.MissedAt.UTC().Format(time.RFC3339))
}
