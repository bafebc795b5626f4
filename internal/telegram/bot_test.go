package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/TGContentBot/internal/config"
	"github.com/digkill/TGContentBot/internal/models"
	"github.com/digkill/TGContentBot/internal/service"
	"github.com/digkill/TGContentBot/pkg/logger"
)

type fakeAPI struct {
	mu        sync.Mutex
	updates   chan tgbotapi.Update
	sent      []tgbotapi.Chattable
	requested []tgbotapi.Chattable
	failFor   map[int64]bool
	stopped   bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 4), failFor: map[int64]bool{}}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok && f.failFor[msg.ChatID] {
		return tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg.Text)
		}
	}
	return out
}

type fakeUsers struct {
	ids []int64
}

func (f *fakeUsers) Ensure(_ context.Context, telegramID int64, username, firstName, lastName string) (*models.User, bool, error) {
	return &models.User{ID: telegramID, TelegramID: telegramID, Username: username, FirstName: firstName, LastName: lastName}, false, nil
}

func (f *fakeUsers) ListTelegramIDs(context.Context) ([]int64, error) {
	return f.ids, nil
}

func newTestBot(api *fakeAPI) *Bot {
	cfg := config.Config{SubscriptionDays: 30, SubscriptionPriceStars: 70}
	return NewBot(cfg, api, logger.Discard(), service.NewUserService(&fakeUsers{}), nil, nil, nil)
}

func command(chatID int64, text string) *tgbotapi.Message {
	end := len(text)
	for i, r := range text {
		if r == ' ' {
			end = i
			break
		}
	}
	return &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		From:     &tgbotapi.User{ID: chatID, FirstName: "Анна"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}},
	}
}

func TestBot_AnalyzeWithoutArgumentAwaitsChannel(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	bot := newTestBot(api)

	bot.handleMessage(context.Background(), command(10, "/analyze"))

	assert.Equal(t, StateAwaitingChannel, bot.state.Get(10).State)
	require.Len(t, api.texts(), 1)
	assert.Contains(t, api.texts()[0], "@durov")

	bot.handleMessage(context.Background(), command(10, "/cancel"))
	assert.Equal(t, StateIdle, bot.state.Get(10).State)
}

func TestBot_StartSendsKeyboard(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	bot := newTestBot(api)
	bot.cfg.MiniAppURL = "https://app.example.com"

	bot.handleMessage(context.Background(), command(5, "/start"))

	require.Len(t, api.sent, 1)
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Contains(t, msg.Text, "Анна")
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Len(t, markup.InlineKeyboard, 3)
}

func TestBot_IdleTextAndUnknownCommand(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	bot := newTestBot(api)
	ctx := context.Background()

	bot.handleMessage(ctx, &tgbotapi.Message{Text: "привет", Chat: &tgbotapi.Chat{ID: 3}})
	bot.handleMessage(ctx, command(3, "/generate"))

	texts := api.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "/analyze")
	assert.Contains(t, texts[1], "Неизвестная команда")
}

func TestBot_UnknownCallbackIsAcknowledged(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	bot := newTestBot(api)

	bot.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		Data:    "bogus",
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 8}},
	})

	require.Len(t, api.requested, 1)
	ack, ok := api.requested[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, "cb-1", ack.CallbackQueryID)
}

func TestBot_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	bot := newTestBot(api)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()
	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{Text: "hi", Chat: &tgbotapi.Chat{ID: 1}}}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	assert.True(t, api.stopped)
}

func TestNotifier_BroadcastCountsFailures(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.failFor[2] = true
	n := NewNotifier(api, &fakeUsers{ids: []int64{1, 2, 3}}, logger.Discard())
	n.interval = 0

	report, err := n.Broadcast(context.Background(), "Новая функция!")
	require.NoError(t, err)
	assert.Equal(t, BroadcastReport{Total: 3, Sent: 2, Failed: 1}, report)
	assert.Equal(t, []string{"Новая функция!", "Новая функция!"}, api.texts())
}

func TestNotifier_BroadcastHonorsCancel(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	n := NewNotifier(api, &fakeUsers{ids: []int64{1, 2, 3}}, logger.Discard())
	n.interval = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := n.Broadcast(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.Sent)
}

func TestStateManager(t *testing.T) {
	t.Parallel()

	m := NewStateManager()
	assert.Equal(t, StateIdle, m.Get(1).State)

	m.Set(1, Session{State: StateAwaitingChannel, LastChannel: "durov"})
	m.Reset(1)
	got := m.Get(1)
	assert.Equal(t, StateIdle, got.State)
	assert.Equal(t, "durov", got.LastChannel)
}

func TestFormatStatus(t *testing.T) {
	t.Parallel()

	resetAt := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	free := formatStatus(service.Status{
		Usage: models.UsageRecord{ResetAt: resetAt},
		Remaining: map[models.UsageKind]int{
			models.UsageAnalysis: 4,
			models.UsageIdeas:    3,
			models.UsagePost:     0,
		},
	})
	assert.Contains(t, free, "04.03.2026 12:00")
	assert.Contains(t, free, "Анализы каналов: осталось 4 из 5")
	assert.Contains(t, free, "Посты: осталось 0 из 2")

	paid := formatStatus(service.Status{
		Subscribed:   true,
		Subscription: &models.Subscription{EndDate: resetAt},
	})
	assert.Contains(t, paid, "Подписка активна до 04.03.2026 12:00")
}

func TestFormatAnalysis(t *testing.T) {
	t.Parallel()

	text := formatAnalysis(&service.AnalysisResult{
		ChannelName:        "durov",
		Themes:             []string{"Технологии"},
		Styles:             []string{"Личное мнение"},
		AnalyzedPostsCount: 20,
		BestPostingTime:    "18:00 - 19:00",
		Message:            "Использован резервный сервис.",
	})
	assert.Contains(t, text, "@durov")
	assert.Contains(t, text, "• Технологии")
	assert.Contains(t, text, "• Личное мнение")
	assert.Contains(t, text, "18:00 - 19:00")
	assert.Contains(t, text, "Использован резервный сервис.")
}

func TestBot_PromptMentionsLastAnalyzedChannel(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	bot := newTestBot(api)
	bot.state.Set(12, Session{LastChannel: "coffee_news"})

	bot.handleMessage(context.Background(), command(12, "/analyze"))

	require.Len(t, api.texts(), 1)
	assert.Contains(t, api.texts()[0], "Последний разобранный канал: @coffee_news")
	assert.Equal(t, Session{State: StateAwaitingChannel, LastChannel: "coffee_news"}, bot.state.Get(12))
}

func TestFormatPaymentResult(t *testing.T) {
	t.Parallel()

	assert.Contains(t, formatPaymentResult(nil), "не удалось активировать")
	assert.NotContains(t, formatPaymentResult(nil), "Подписка активна")

	end := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "Оплата успешно получена! Подписка активна до 01.04.2026 12:00 (МСК).",
		formatPaymentResult(&models.Subscription{EndDate: end}))
}
