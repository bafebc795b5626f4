package service

import (
	"context"
	"errors"
	"time"

	"github.com/digkill/TGContentBot/internal/llm"
	"github.com/digkill/TGContentBot/internal/models"
	"github.com/digkill/TGContentBot/internal/scraper"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNoPosts      = errors.New("no text posts found in channel")
	ErrIdeaNotFound = errors.New("idea not found")
)

// Moscow time is what the audience plans around.
var audienceTZ = time.FixedZone("MSK", 3*60*60)

type UsageStore interface {
	Get(ctx context.Context, userID int64) (*models.UsageRecord, error)
	Save(ctx context.Context, u models.UsageRecord) error
}

type SubscriptionStore interface {
	Create(ctx context.Context, sub *models.Subscription) error
	Latest(ctx context.Context, userID int64) (*models.Subscription, error)
	FindByPayment(ctx context.Context, paymentID string) (*models.Subscription, error)
	Deactivate(ctx context.Context, id int64) error
	DeactivateAll(ctx context.Context, userID int64) error
}

type AnalysisStore interface {
	Upsert(ctx context.Context, a *models.ChannelAnalysis) error
	Get(ctx context.Context, userID int64, channel string) (*models.ChannelAnalysis, error)
}

type IdeaStore interface {
	CreateBatch(ctx context.Context, ideas []models.Idea) error
	List(ctx context.Context, userID int64, channel string) ([]models.Idea, error)
	Get(ctx context.Context, userID int64, id string) (*models.Idea, error)
	MarkDetailed(ctx context.Context, userID int64, id string) error
	Delete(ctx context.Context, userID int64, id string) error
}

type PostStore interface {
	Create(ctx context.Context, p *models.SavedPost) error
	List(ctx context.Context, userID int64, channel string) ([]models.SavedPost, error)
}

type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	UpdateStatus(ctx context.Context, paymentID int64, status string) error
	FindByProviderCharge(ctx context.Context, provider, chargeID string) (*models.Payment, error)
}

// Generator runs a typed task through the provider cascade.
type Generator interface {
	Run(ctx context.Context, task llm.Task) (llm.Outcome, error)
}

type PostFetcher interface {
	FetchPosts(ctx context.Context, channel string) ([]scraper.Post, error)
}

// Notifier delivers a text message to a Telegram user.
type Notifier interface {
	Notify(ctx context.Context, telegramID int64, text string) error
}

// GenerationRecorder counts generation results; implemented by metrics.
type GenerationRecorder interface {
	ObserveGeneration(kind, result string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveGeneration(string, string) {}

func recorderOrNop(r GenerationRecorder) GenerationRecorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

func resultLabel(fallback bool) string {
	if fallback {
		return "fallback"
	}
	return "ok"
}

const fallbackProviderMessage = "Основной сервис генерации недоступен, использован резервный."
