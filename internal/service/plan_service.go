package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/TGContentBot/internal/llm"
	"github.com/digkill/TGContentBot/internal/models"
	"github.com/digkill/TGContentBot/internal/parser"
	"github.com/digkill/TGContentBot/internal/scraper"
)

const maxPlanDays = 30

type PlanService struct {
	ledger *UsageLedger
	gen    Generator
	ideas  IdeaStore
	rec    GenerationRecorder
	log    *slog.Logger
	now    func() time.Time
	pick   func(n int) int
}

type PlanRequest struct {
	Channel string
	Days    int
	Themes  []string
	Styles  []string
}

type PlanResult struct {
	Plan         []models.Idea `json:"plan"`
	Message      string        `json:"message,omitempty"`
	Error        string        `json:"error,omitempty"`
	LimitReached bool          `json:"limit_reached,omitempty"`
	ResetAt      *time.Time    `json:"reset_at,omitempty"`
}

func NewPlanService(ledger *UsageLedger, gen Generator, ideas IdeaStore, rec GenerationRecorder, log *slog.Logger) *PlanService {
	return &PlanService{
		ledger: ledger,
		gen:    gen,
		ideas:  ideas,
		rec:    recorderOrNop(rec),
		log:    log,
		now:    time.Now,
	}
}

func (s *PlanService) Generate(ctx context.Context, userID int64, req PlanRequest) (*PlanResult, error) {
	channel, err := scraper.NormalizeChannel(req.Channel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if req.Days < 1 || req.Days > maxPlanDays {
		return nil, fmt.Errorf("%w: period must be between 1 and %d days", ErrInvalidInput, maxPlanDays)
	}
	themes, styles := compact(req.Themes), compact(req.Styles)
	if len(themes) == 0 {
		return nil, fmt.Errorf("%w: at least one theme is required", ErrInvalidInput)
	}

	perm := s.ledger.CanPerform(ctx, userID, models.UsageIdeas)
	if !perm.Allowed {
		s.rec.ObserveGeneration(string(models.UsageIdeas), "limit")
		resetAt := perm.ResetAt
		return &PlanResult{
			Plan:         []models.Idea{},
			LimitReached: true,
			ResetAt:      &resetAt,
			Error:        limitMessage("генераций контент-плана", resetAt),
		}, nil
	}

	out, err := s.gen.Run(ctx, llm.PlanTask{Channel: channel, Days: req.Days, Themes: themes, Styles: styles})
	if err != nil {
		s.rec.ObserveGeneration(string(models.UsageIdeas), "failed")
		return nil, fmt.Errorf("generate plan: %w", err)
	}

	res := &PlanResult{}
	items := parser.ParsePlan(out.Text, parser.PlanOptions{AllowedStyles: styles, Days: req.Days, Pick: s.pick, Log: s.log})
	switch {
	case len(items) == 0:
		s.log.Warn("plan response unusable, synthesizing filler", "channel", channel, "provider", out.Provider)
		items = parser.FillerPlan(req.Days, themes, styles)
		res.Message = "Не удалось разобрать ответ модели, план составлен из тем канала."
	case out.Fallback:
		res.Message = fallbackProviderMessage
	}

	now := s.now().UTC()
	res.Plan = make([]models.Idea, 0, len(items))
	for _, item := range items {
		res.Plan = append(res.Plan, models.Idea{
			ID:          uuid.NewString(),
			UserID:      userID,
			ChannelName: channel,
			TopicIdea:   item.TopicIdea,
			FormatStyle: item.FormatStyle,
			RelativeDay: item.Day,
			CreatedAt:   now,
		})
	}
	if err := s.ideas.CreateBatch(ctx, res.Plan); err != nil {
		s.log.Error("save plan failed", "user_id", userID, "channel", channel, "err", err)
	}

	if !perm.Subscribed {
		s.ledger.Increment(ctx, userID, models.UsageIdeas)
	}
	s.rec.ObserveGeneration(string(models.UsageIdeas), resultLabel(out.Fallback))
	return res, nil
}

func (s *PlanService) List(ctx context.Context, userID int64, channel string) ([]models.Idea, error) {
	if channel != "" {
		name, err := scraper.NormalizeChannel(channel)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		channel = name
	}
	ideas, err := s.ideas.List(ctx, userID, channel)
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	if ideas == nil {
		ideas = []models.Idea{}
	}
	return ideas, nil
}

func (s *PlanService) Delete(ctx context.Context, userID int64, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: bad idea id", ErrInvalidInput)
	}
	idea, err := s.ideas.Get(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("get idea: %w", err)
	}
	if idea == nil {
		return ErrIdeaNotFound
	}
	if err := s.ideas.Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("delete idea: %w", err)
	}
	return nil
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
