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
	"github.com/digkill/TGContentBot/internal/scraper"
)

// ImageFinder picks stock photos for a drafted post.
type ImageFinder interface {
	FindForPost(ctx context.Context, topic, style, text string) []models.Image
}

type PostService struct {
	ledger   *UsageLedger
	gen      Generator
	ideas    IdeaStore
	posts    PostStore
	analyses AnalysisStore
	images   ImageFinder
	rec      GenerationRecorder
	log      *slog.Logger
	now      func() time.Time
}

type PostRequest struct {
	IdeaID  string
	Topic   string
	Style   string
	Channel string
}

type PostResult struct {
	ID            string         `json:"id,omitempty"`
	GeneratedText string         `json:"generated_text"`
	Images        []models.Image `json:"images"`
	Message       string         `json:"message,omitempty"`
	Error         string         `json:"error,omitempty"`
	LimitReached  bool           `json:"limit_reached,omitempty"`
	ResetAt       *time.Time     `json:"reset_at,omitempty"`
}

// NewPostService wires the post generator. images may be nil.
func NewPostService(ledger *UsageLedger, gen Generator, ideas IdeaStore, posts PostStore, analyses AnalysisStore, images ImageFinder, rec GenerationRecorder, log *slog.Logger) *PostService {
	return &PostService{
		ledger:   ledger,
		gen:      gen,
		ideas:    ideas,
		posts:    posts,
		analyses: analyses,
		images:   images,
		rec:      recorderOrNop(rec),
		log:      log,
		now:      time.Now,
	}
}

func (s *PostService) Generate(ctx context.Context, userID int64, req PostRequest) (*PostResult, error) {
	channel, err := scraper.NormalizeChannel(req.Channel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if req.IdeaID != "" {
		idea, err := s.ideas.Get(ctx, userID, req.IdeaID)
		if err != nil {
			return nil, fmt.Errorf("get idea: %w", err)
		}
		if idea == nil {
			return nil, ErrIdeaNotFound
		}
		if strings.TrimSpace(req.Topic) == "" {
			req.Topic = idea.TopicIdea
		}
		if strings.TrimSpace(req.Style) == "" {
			req.Style = idea.FormatStyle
		}
	}
	req.Topic, req.Style = strings.TrimSpace(req.Topic), strings.TrimSpace(req.Style)
	if req.Topic == "" || req.Style == "" {
		return nil, fmt.Errorf("%w: topic and style are required", ErrInvalidInput)
	}

	perm := s.ledger.CanPerform(ctx, userID, models.UsagePost)
	if !perm.Allowed {
		s.rec.ObserveGeneration(string(models.UsagePost), "limit")
		resetAt := perm.ResetAt
		return &PostResult{
			Images:       []models.Image{},
			LimitReached: true,
			ResetAt:      &resetAt,
			Error:        limitMessage("генераций постов", resetAt),
		}, nil
	}

	var samples []string
	if analysis, err := s.analyses.Get(ctx, userID, channel); err != nil {
		s.log.Warn("load analysis for samples failed", "user_id", userID, "channel", channel, "err", err)
	} else if analysis != nil {
		samples = analysis.SamplePosts
	}

	task := llm.PostTask{
		Channel:   channel,
		Topic:     req.Topic,
		Style:     req.Style,
		Samples:   samples,
		TimeOfDay: timeOfDay(s.now()),
	}
	out, err := s.gen.Run(ctx, task)
	if err != nil {
		s.rec.ObserveGeneration(string(models.UsagePost), "failed")
		return nil, fmt.Errorf("generate post: %w", err)
	}

	res := &PostResult{
		ID:            uuid.NewString(),
		GeneratedText: strings.TrimSpace(out.Text),
		Images:        []models.Image{},
	}
	if out.Fallback {
		res.Message = fallbackProviderMessage
	}
	if s.images != nil {
		if found := s.images.FindForPost(ctx, req.Topic, req.Style, res.GeneratedText); len(found) > 0 {
			res.Images = found
		}
	}

	post := &models.SavedPost{
		ID:          res.ID,
		UserID:      userID,
		ChannelName: channel,
		IdeaID:      req.IdeaID,
		TopicIdea:   req.Topic,
		FormatStyle: req.Style,
		FinalText:   res.GeneratedText,
		ImageURLs:   imageURLs(res.Images),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.posts.Create(ctx, post); err != nil {
		s.log.Error("save post failed", "user_id", userID, "channel", channel, "err", err)
	}
	if req.IdeaID != "" {
		if err := s.ideas.MarkDetailed(ctx, userID, req.IdeaID); err != nil {
			s.log.Error("mark idea detailed failed", "user_id", userID, "idea_id", req.IdeaID, "err", err)
		}
	}

	if !perm.Subscribed {
		s.ledger.Increment(ctx, userID, models.UsagePost)
	}
	s.rec.ObserveGeneration(string(models.UsagePost), resultLabel(out.Fallback))
	return res, nil
}

func (s *PostService) List(ctx context.Context, userID int64, channel string) ([]models.SavedPost, error) {
	if channel != "" {
		name, err := scraper.NormalizeChannel(channel)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		channel = name
	}
	posts, err := s.posts.List(ctx, userID, channel)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	if posts == nil {
		posts = []models.SavedPost{}
	}
	return posts, nil
}

func timeOfDay(t time.Time) string {
	switch h := t.In(audienceTZ).Hour(); {
	case h >= 5 && h < 12:
		return "утром"
	case h >= 12 && h < 17:
		return "днём"
	case h >= 17 && h < 23:
		return "вечером"
	default:
		return "ночью"
	}
}

func imageURLs(images []models.Image) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		if img.MirroredURL != "" {
			out = append(out, img.MirroredURL)
			continue
		}
		out = append(out, img.URL)
	}
	return out
}
