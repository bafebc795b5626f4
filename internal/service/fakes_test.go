package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/TGContentBot/internal/llm"
	"github.com/digkill/TGContentBot/internal/models"
	"github.com/digkill/TGContentBot/internal/scraper"
)

var errStoreDown = errors.New("store down")

type memUsage struct {
	mu      sync.Mutex
	rows    map[int64]models.UsageRecord
	getErr  error
	saveErr error
	saves   int
}

func newMemUsage() *memUsage {
	return &memUsage{rows: map[int64]models.UsageRecord{}}
}

func (m *memUsage) Get(_ context.Context, userID int64) (*models.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.rows[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memUsage) Save(_ context.Context, u models.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.rows[u.UserID] = u
	return nil
}

type memSubs struct {
	mu     sync.Mutex
	rows   []models.Subscription
	nextID int64
	// failDeactivations makes the next n DeactivateAll calls fail.
	failDeactivations int
}

func (m *memSubs) Create(_ context.Context, sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	sub.ID = m.nextID
	m.rows = append(m.rows, *sub)
	return nil
}

func (m *memSubs) Latest(_ context.Context, userID int64) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.Subscription
	for i := range m.rows {
		row := m.rows[i]
		if row.UserID != userID {
			continue
		}
		if latest == nil || row.EndDate.After(latest.EndDate) {
			latest = &row
		}
	}
	return latest, nil
}

func (m *memSubs) Deactivate(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].IsActive = false
		}
	}
	return nil
}

func (m *memSubs) FindByPayment(_ context.Context, paymentID string) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].PaymentID == paymentID {
			row := m.rows[i]
			return &row, nil
		}
	}
	return nil, nil
}

func (m *memSubs) DeactivateAll(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDeactivations > 0 {
		m.failDeactivations--
		return errStoreDown
	}
	for i := range m.rows {
		if m.rows[i].UserID == userID {
			m.rows[i].IsActive = false
		}
	}
	return nil
}

func (m *memSubs) activeCount(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if row.UserID == userID && row.IsActive {
			n++
		}
	}
	return n
}

type memAnalyses struct {
	rows map[string]models.ChannelAnalysis
}

func newMemAnalyses() *memAnalyses {
	return &memAnalyses{rows: map[string]models.ChannelAnalysis{}}
}

func analysisKey(userID int64, channel string) string {
	return fmt.Sprintf("%d/%s", userID, channel)
}

func (m *memAnalyses) Upsert(_ context.Context, a *models.ChannelAnalysis) error {
	m.rows[analysisKey(a.UserID, a.ChannelName)] = *a
	return nil
}

func (m *memAnalyses) Get(_ context.Context, userID int64, channel string) (*models.ChannelAnalysis, error) {
	a, ok := m.rows[analysisKey(userID, channel)]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

type memIdeas struct {
	rows []models.Idea
}

func (m *memIdeas) CreateBatch(_ context.Context, ideas []models.Idea) error {
	m.rows = append(m.rows, ideas...)
	return nil
}

func (m *memIdeas) List(_ context.Context, userID int64, channel string) ([]models.Idea, error) {
	var out []models.Idea
	for _, idea := range m.rows {
		if idea.UserID == userID && (channel == "" || idea.ChannelName == channel) {
			out = append(out, idea)
		}
	}
	return out, nil
}

func (m *memIdeas) Get(_ context.Context, userID int64, id string) (*models.Idea, error) {
	for _, idea := range m.rows {
		if idea.UserID == userID && idea.ID == id {
			return &idea, nil
		}
	}
	return nil, nil
}

func (m *memIdeas) MarkDetailed(_ context.Context, userID int64, id string) error {
	for i := range m.rows {
		if m.rows[i].UserID == userID && m.rows[i].ID == id {
			m.rows[i].IsDetailed = true
		}
	}
	return nil
}

func (m *memIdeas) Delete(_ context.Context, userID int64, id string) error {
	out := m.rows[:0]
	for _, idea := range m.rows {
		if idea.UserID == userID && idea.ID == id {
			continue
		}
		out = append(out, idea)
	}
	m.rows = out
	return nil
}

type memPosts struct {
	rows []models.SavedPost
}

func (m *memPosts) Create(_ context.Context, p *models.SavedPost) error {
	m.rows = append(m.rows, *p)
	return nil
}

func (m *memPosts) List(_ context.Context, userID int64, channel string) ([]models.SavedPost, error) {
	var out []models.SavedPost
	for _, p := range m.rows {
		if p.UserID == userID && (channel == "" || p.ChannelName == channel) {
			out = append(out, p)
		}
	}
	return out, nil
}

type memPayments struct {
	rows []models.Payment
}

func (m *memPayments) Create(_ context.Context, p *models.Payment) error {
	p.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, *p)
	return nil
}

func (m *memPayments) UpdateStatus(_ context.Context, paymentID int64, status string) error {
	for i := range m.rows {
		if m.rows[i].ID == paymentID {
			m.rows[i].Status = status
		}
	}
	return nil
}

func (m *memPayments) FindByProviderCharge(_ context.Context, provider, chargeID string) (*models.Payment, error) {
	for _, p := range m.rows {
		if p.Provider == provider && p.ProviderCharge == chargeID {
			return &p, nil
		}
	}
	return nil, nil
}

type fakeGenerator struct {
	reply func(task llm.Task) (llm.Outcome, error)
	tasks []llm.Task
}

func (f *fakeGenerator) Run(_ context.Context, task llm.Task) (llm.Outcome, error) {
	f.tasks = append(f.tasks, task)
	if f.reply == nil {
		return llm.Outcome{}, errors.New("no reply scripted")
	}
	return f.reply(task)
}

func replyText(text string) func(llm.Task) (llm.Outcome, error) {
	return func(llm.Task) (llm.Outcome, error) {
		return llm.Outcome{Text: text, Provider: "deepseek"}, nil
	}
}

type fakeFetcher struct {
	posts []scraper.Post
	err   error
	calls int
}

func (f *fakeFetcher) FetchPosts(context.Context, string) ([]scraper.Post, error) {
	f.calls++
	return f.posts, f.err
}

type fakeNotifier struct {
	sent map[int64][]string
}

func (f *fakeNotifier) Notify(_ context.Context, telegramID int64, text string) error {
	if f.sent == nil {
		f.sent = map[int64][]string{}
	}
	f.sent[telegramID] = append(f.sent[telegramID], text)
	return nil
}

type fakeBot struct {
	sent      []tgbotapi.Chattable
	requested []tgbotapi.Chattable
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requested = append(f.requested, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type fakeImages struct {
	images []models.Image
}

func (f *fakeImages) FindForPost(context.Context, string, string, string) []models.Image {
	return f.images
}

// fixedClock returns a clock that can be moved forward by the test.
func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}
