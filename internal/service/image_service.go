package service

import (
	"context"
	"log/slog"

	"github.com/digkill/TGContentBot/internal/llm"
	"github.com/digkill/TGContentBot/internal/models"
	"github.com/digkill/TGContentBot/internal/parser"
)

const (
	imagesPerPost  = 5
	keywordQueries = 3
)

type ImageSearcher interface {
	Collect(ctx context.Context, queries []string, want int) []models.Image
	Enabled() bool
}

type ImageMirror interface {
	Mirror(ctx context.Context, sourceURL string) (string, error)
}

// ImageService turns a post into search keywords and collects photos.
type ImageService struct {
	gen      Generator
	searcher ImageSearcher
	mirror   ImageMirror
	log      *slog.Logger
}

// NewImageService builds the finder. mirror may be nil.
func NewImageService(gen Generator, searcher ImageSearcher, mirror ImageMirror, log *slog.Logger) *ImageService {
	return &ImageService{gen: gen, searcher: searcher, mirror: mirror, log: log}
}

func (s *ImageService) FindForPost(ctx context.Context, topic, style, text string) []models.Image {
	if s.searcher == nil || !s.searcher.Enabled() {
		return nil
	}

	raw := ""
	out, err := s.gen.Run(ctx, llm.KeywordsTask{Topic: topic, Style: style, Text: text})
	if err != nil {
		s.log.Warn("keyword generation failed, using fallback keywords", "err", err)
	} else {
		raw = out.Text
	}
	keywords := parser.ParseKeywords(raw, topic, style)
	if len(keywords) > keywordQueries {
		keywords = keywords[:keywordQueries]
	}

	found := s.searcher.Collect(ctx, keywords, imagesPerPost)
	if s.mirror != nil && len(found) > 0 {
		url, err := s.mirror.Mirror(ctx, found[0].URL)
		if err != nil {
			s.log.Warn("image mirror failed", "url", found[0].URL, "err", err)
		} else {
			found[0].MirroredURL = url
		}
	}
	return found
}
