package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram allows about 30 messages per second to different chats.
const broadcastInterval = 40 * time.Millisecond

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type RecipientLister interface {
	ListTelegramIDs(ctx context.Context) ([]int64, error)
}

// Notifier pushes plain text messages to users outside of a dialog.
type Notifier struct {
	api      Sender
	users    RecipientLister
	log      *slog.Logger
	interval time.Duration
}

type BroadcastReport struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

func NewNotifier(api Sender, users RecipientLister, log *slog.Logger) *Notifier {
	return &Notifier{api: api, users: users, log: log, interval: broadcastInterval}
}

func (n *Notifier) Notify(_ context.Context, telegramID int64, text string) error {
	if _, err := n.api.Send(tgbotapi.NewMessage(telegramID, text)); err != nil {
		return fmt.Errorf("send message to %d: %w", telegramID, err)
	}
	return nil
}

// Broadcast sends text to every known user. Individual failures are counted
// and logged; only listing recipients or cancellation stops it.
func (n *Notifier) Broadcast(ctx context.Context, text string) (BroadcastReport, error) {
	ids, err := n.users.ListTelegramIDs(ctx)
	if err != nil {
		return BroadcastReport{}, fmt.Errorf("list recipients: %w", err)
	}
	report := BroadcastReport{Total: len(ids)}
	for i, id := range ids {
		if i > 0 && n.interval > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(n.interval):
			}
		}
		if err := n.Notify(ctx, id, text); err != nil {
			report.Failed++
			n.log.Warn("broadcast delivery failed", "telegram_id", id, "err", err)
			continue
		}
		report.Sent++
	}
	n.log.Info("broadcast finished", "total", report.Total, "sent", report.Sent, "failed", report.Failed)
	return report, nil
}
