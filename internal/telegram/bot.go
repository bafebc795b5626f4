package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/TGContentBot/internal/config"
	"github.com/digkill/TGContentBot/internal/models"
	"github.com/digkill/TGContentBot/internal/scraper"
	"github.com/digkill/TGContentBot/internal/service"
)

const (
	callbackSubscribe = "subscribe"
	callbackStatus    = "status"
	callbackAnalyze   = "analyze"
)

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	service.BotAPI
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	cfg      config.Config
	api      API
	log      *slog.Logger
	users    *service.UserService
	ledger   *service.UsageLedger
	analysis *service.AnalysisService
	payments *service.PaymentService
	state    *StateManager
}

func NewBot(cfg config.Config, api API, log *slog.Logger, users *service.UserService, ledger *service.UsageLedger, analysis *service.AnalysisService, payments *service.PaymentService) *Bot {
	return &Bot{
		cfg:      cfg,
		api:      api,
		log:      log,
		users:    users,
		ledger:   ledger,
		analysis: analysis,
		payments: payments,
		state:    NewStateManager(),
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.PreCheckoutQuery != nil:
		if err := b.payments.HandlePreCheckout(b.api, update.PreCheckoutQuery); err != nil {
			b.log.Error("pre-checkout failed", "err", err)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.SuccessfulPayment != nil {
		b.handleSuccessfulPayment(ctx, msg)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	session := b.state.Get(msg.Chat.ID)
	switch session.State {
	case StateAwaitingChannel:
		b.state.Reset(msg.Chat.ID)
		b.runAnalysis(ctx, msg, msg.Text)
	default:
		b.sendText(msg.Chat.ID, "Отправьте /analyze, чтобы разобрать канал, или /status, чтобы проверить лимиты.")
	}
}

func (b *Bot) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	user, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user payment", "err", err)
		return
	}
	sub, err := b.payments.HandleSuccessfulPayment(ctx, user.TelegramID, msg.SuccessfulPayment)
	if err != nil {
		b.log.Error("process successful payment", "telegram_id", user.TelegramID, "err", err)
	}
	b.sendText(msg.Chat.ID, formatPaymentResult(sub))
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		user, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
		if err != nil {
			b.log.Error("ensure user", "err", err)
			return
		}
		b.sendWelcome(msg.Chat.ID, user)
	case "analyze":
		if _, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID); err != nil {
			b.log.Error("ensure user analyze", "err", err)
			return
		}
		if channel := strings.TrimSpace(msg.CommandArguments()); channel != "" {
			b.runAnalysis(ctx, msg, channel)
			return
		}
		b.promptChannel(msg.Chat.ID)
	case "status":
		b.handleStatus(ctx, msg.From, msg.Chat.ID)
	case "subscribe":
		b.handleSubscribe(ctx, msg.Chat.ID)
	case "cancel":
		b.state.Reset(msg.Chat.ID)
		b.sendText(msg.Chat.ID, "Действие отменено.")
	default:
		b.sendText(msg.Chat.ID, "Неизвестная команда. Используйте /analyze, /status или /subscribe.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	ack := ""
	switch cb.Data {
	case callbackAnalyze:
		b.promptChannel(chatID)
	case callbackStatus:
		b.handleStatus(ctx, cb.From, chatID)
	case callbackSubscribe:
		b.handleSubscribe(ctx, chatID)
	default:
		ack = "Неизвестный выбор"
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, ack)); err != nil {
		b.log.Error("callback ack", "err", err)
	}
}

func (b *Bot) sendWelcome(chatID int64, user *models.User) {
	text := fmt.Sprintf(
		"Привет, %s!\n\nЯ помогаю вести Telegram-канал: анализирую темы и стиль, составляю контент-план и пишу посты с подобранными фото.\n\nБесплатно каждые 3 дня: %d анализов, %d контент-плана и %d поста. Подписка на %d дней снимает ограничения.\n\nКоманды:\n/analyze — разобрать канал\n/status — лимиты и подписка\n/subscribe — оформить подписку\n/cancel — отменить действие",
		displayName(user), models.FreeAnalysisLimit, models.FreeIdeasLimit, models.FreePostLimit, b.cfg.SubscriptionDays,
	)
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Разобрать канал", callbackAnalyze)),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Мои лимиты", callbackStatus),
			tgbotapi.NewInlineKeyboardButtonData("Подписка", callbackSubscribe),
		),
	}
	if b.cfg.MiniAppURL != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Открыть приложение", b.cfg.MiniAppURL)))
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send welcome", "err", err)
	}
}

func (b *Bot) promptChannel(chatID int64) {
	b.state.SetState(chatID, StateAwaitingChannel)
	text := "Пришлите имя публичного канала, например @durov или https://t.me/durov."
	if last := b.state.Get(chatID).LastChannel; last != "" {
		text += fmt.Sprintf("\n\nПоследний разобранный канал: @%s", last)
	}
	b.sendText(chatID, text)
}

func (b *Bot) runAnalysis(ctx context.Context, msg *tgbotapi.Message, channel string) {
	user, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user analysis", "err", err)
		return
	}

	b.sendText(msg.Chat.ID, "Анализирую канал, это займёт около минуты.")
	res, err := b.analysis.Analyze(ctx, user.TelegramID, channel)
	if err != nil {
		b.sendText(msg.Chat.ID, b.analysisErrorText(err, channel))
		return
	}
	if res.LimitReached {
		b.sendText(msg.Chat.ID, res.Error+"\n\nОформить подписку: /subscribe")
		return
	}

	session := b.state.Get(msg.Chat.ID)
	session.LastChannel = res.ChannelName
	b.state.Set(msg.Chat.ID, session)
	b.sendText(msg.Chat.ID, formatAnalysis(res))
}

func (b *Bot) analysisErrorText(err error, channel string) string {
	switch {
	case errors.Is(err, scraper.ErrChannelNotFound):
		return fmt.Sprintf("Канал %s не найден или закрыт. Проверьте имя и попробуйте снова: /analyze", strings.TrimSpace(channel))
	case errors.Is(err, service.ErrInvalidInput):
		return "Некорректное имя канала. Пример: @durov или https://t.me/durov"
	case errors.Is(err, service.ErrNoPosts):
		return "В канале нет текстовых постов, анализировать нечего."
	default:
		b.log.Error("analyze channel", "channel", channel, "err", err)
		return "Не удалось проанализировать канал, попробуйте позже."
	}
}

func (b *Bot) handleStatus(ctx context.Context, from *tgbotapi.User, chatID int64) {
	user, _, err := b.ensureUser(ctx, from, chatID)
	if err != nil {
		b.log.Error("ensure user status", "err", err)
		return
	}
	b.sendText(chatID, formatStatus(b.ledger.Status(ctx, user.TelegramID)))
}

func (b *Bot) handleSubscribe(ctx context.Context, chatID int64) {
	if err := b.payments.SendInvoice(ctx, b.api, chatID); err != nil {
		b.log.Error("send invoice", "err", err)
		b.sendText(chatID, "Не удалось отправить счет. Попробуйте позже.")
	}
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User, chatID int64) (*models.User, bool, error) {
	username := ""
	firstName := ""
	lastName := ""
	telegramID := chatID
	if from != nil {
		username = from.UserName
		firstName = from.FirstName
		lastName = from.LastName
		telegramID = from.ID
	}
	return b.users.Ensure(ctx, telegramID, username, firstName, lastName)
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send text", "err", err)
	}
}

func displayName(user *models.User) string {
	switch {
	case user == nil:
		return "друг"
	case user.FirstName != "":
		return user.FirstName
	case user.Username != "":
		return "@" + user.Username
	default:
		return "друг"
	}
}
