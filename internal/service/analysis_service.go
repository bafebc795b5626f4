package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/digkill/TGContentBot/internal/llm"
	"github.com/digkill/TGContentBot/internal/models"
	"github.com/digkill/TGContentBot/internal/parser"
	"github.com/digkill/TGContentBot/internal/scraper"
)

const (
	samplePostsKept        = 5
	defaultBestPostingTime = "18:00 - 20:00"
)

var (
	defaultThemes = []string{"Новости и события", "Полезные советы"}
	defaultStyles = []string{"Информационный пост", "Обзор"}
)

type AnalysisService struct {
	ledger   *UsageLedger
	fetcher  PostFetcher
	gen      Generator
	analyses AnalysisStore
	rec      GenerationRecorder
	log      *slog.Logger
	now      func() time.Time
}

type AnalysisResult struct {
	ChannelName        string     `json:"channel_name"`
	Themes             []string   `json:"themes"`
	Styles             []string   `json:"styles"`
	AnalyzedPostsCount int        `json:"analyzed_posts_count"`
	SamplePosts        []string   `json:"sample_posts"`
	BestPostingTime    string     `json:"best_posting_time"`
	Message            string     `json:"message,omitempty"`
	Error              string     `json:"error,omitempty"`
	LimitReached       bool       `json:"limit_reached,omitempty"`
	ResetAt            *time.Time `json:"reset_at,omitempty"`
}

func NewAnalysisService(ledger *UsageLedger, fetcher PostFetcher, gen Generator, analyses AnalysisStore, rec GenerationRecorder, log *slog.Logger) *AnalysisService {
	return &AnalysisService{
		ledger:   ledger,
		fetcher:  fetcher,
		gen:      gen,
		analyses: analyses,
		rec:      recorderOrNop(rec),
		log:      log,
		now:      time.Now,
	}
}

// Analyze fetches recent posts of a public channel and extracts its themes
// and styles.
func (s *AnalysisService) Analyze(ctx context.Context, userID int64, channel string) (*AnalysisResult, error) {
	name, err := scraper.NormalizeChannel(channel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	perm := s.ledger.CanPerform(ctx, userID, models.UsageAnalysis)
	if !perm.Allowed {
		s.rec.ObserveGeneration(string(models.UsageAnalysis), "limit")
		return limitedAnalysis(name, perm.ResetAt), nil
	}

	posts, err := s.fetcher.FetchPosts(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}
	if len(posts) == 0 {
		return nil, ErrNoPosts
	}
	texts := make([]string, 0, len(posts))
	for _, p := range posts {
		texts = append(texts, p.Text)
	}

	out, err := s.gen.Run(ctx, llm.AnalyzeTask{Channel: name, Posts: texts})
	if err != nil {
		s.rec.ObserveGeneration(string(models.UsageAnalysis), "failed")
		return nil, fmt.Errorf("analyze channel: %w", err)
	}

	res := &AnalysisResult{
		ChannelName:        name,
		AnalyzedPostsCount: len(posts),
		SamplePosts:        texts[:min(len(texts), samplePostsKept)],
		BestPostingTime:    BestPostingTime(posts),
	}
	parsed := parser.ParseAnalysis(out.Text)
	res.Themes, res.Styles = parsed.Themes, parsed.Styles
	if len(res.Themes) == 0 || len(res.Styles) == 0 {
		s.log.Warn("analysis response unusable, using defaults", "channel", name, "provider", out.Provider)
		res.Themes, res.Styles = orDefault(res.Themes, defaultThemes), orDefault(res.Styles, defaultStyles)
		res.Message = "Не удалось точно определить темы канала, использованы значения по умолчанию."
	} else if out.Fallback {
		res.Message = fallbackProviderMessage
	}

	record := &models.ChannelAnalysis{
		UserID:             userID,
		ChannelName:        name,
		Themes:             res.Themes,
		Styles:             res.Styles,
		AnalyzedPostsCount: res.AnalyzedPostsCount,
		SamplePosts:        res.SamplePosts,
		BestPostingTime:    res.BestPostingTime,
		UpdatedAt:          s.now().UTC(),
	}
	if err := s.analyses.Upsert(ctx, record); err != nil {
		s.log.Error("save analysis failed", "user_id", userID, "channel", name, "err", err)
	}

	if !perm.Subscribed {
		s.ledger.Increment(ctx, userID, models.UsageAnalysis)
	}
	s.rec.ObserveGeneration(string(models.UsageAnalysis), resultLabel(out.Fallback))
	return res, nil
}

// Get returns the stored analysis of a channel, or nil.
func (s *AnalysisService) Get(ctx context.Context, userID int64, channel string) (*models.ChannelAnalysis, error) {
	name, err := scraper.NormalizeChannel(channel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	a, err := s.analyses.Get(ctx, userID, name)
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return a, nil
}

// IsUserError reports whether err should be shown to the user as is.
func IsUserError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNoPosts) || errors.Is(err, ErrIdeaNotFound) ||
		errors.Is(err, scraper.ErrChannelNotFound) || errors.Is(err, scraper.ErrInvalidChannel)
}

func limitedAnalysis(channel string, resetAt time.Time) *AnalysisResult {
	return &AnalysisResult{
		ChannelName:  channel,
		LimitReached: true,
		ResetAt:      &resetAt,
		Error:        limitMessage("анализов каналов", resetAt),
	}
}

func limitMessage(what string, resetAt time.Time) string {
	return fmt.Sprintf("Лимит бесплатных %s исчерпан. Попробуйте снова после %s (МСК) или оформите подписку.",
		what, resetAt.In(audienceTZ).Format("02.01.2006 15:04"))
}

// BestPostingTime picks the hour most posts were published at, in Moscow time.
func BestPostingTime(posts []scraper.Post) string {
	var hours [24]int
	seen := false
	for _, p := range posts {
		if p.Date.IsZero() {
			continue
		}
		hours[p.Date.In(audienceTZ).Hour()]++
		seen = true
	}
	if !seen {
		return defaultBestPostingTime
	}
	best := 0
	for h := 1; h < 24; h++ {
		if hours[h] > hours[best] {
			best = h
		}
	}
	return fmt.Sprintf("%02d:00 - %02d:00", best, (best+1)%24)
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return append([]string(nil), def...)
	}
	return v
}
