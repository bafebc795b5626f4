package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/digkill/TGContentBot/internal/models"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Upsert keeps one analysis row per user and channel.
func (r *AnalysisRepository) Upsert(ctx context.Context, a *models.ChannelAnalysis) error {
	themes, err := marshalList(a.Themes)
	if err != nil {
		return err
	}
	styles, err := marshalList(a.Styles)
	if err != nil {
		return err
	}
	samples, err := marshalList(a.SamplePosts)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO channel_analysis (user_id, channel_name, themes, styles, analyzed_posts_count, sample_posts, best_posting_time, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    themes = VALUES(themes),
    styles = VALUES(styles),
    analyzed_posts_count = VALUES(analyzed_posts_count),
    sample_posts = VALUES(sample_posts),
    best_posting_time = VALUES(best_posting_time),
    updated_at = VALUES(updated_at)`
	if _, err := r.db.ExecContext(ctx, query, a.UserID, a.ChannelName, themes, styles, a.AnalyzedPostsCount, samples, a.BestPostingTime, a.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("upsert analysis: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) Get(ctx context.Context, userID int64, channel string) (*models.ChannelAnalysis, error) {
	const query = `
SELECT id, user_id, channel_name, themes, styles, analyzed_posts_count, sample_posts, COALESCE(best_posting_time, ''), updated_at
FROM channel_analysis WHERE user_id = ? AND channel_name = ?`
	row := r.db.QueryRowContext(ctx, query, userID, channel)
	var (
		a                       models.ChannelAnalysis
		themes, styles, samples []byte
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.ChannelName, &themes, &styles, &a.AnalyzedPostsCount, &samples, &a.BestPostingTime, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan analysis: %w", err)
	}
	a.Themes = unmarshalList(themes)
	a.Styles = unmarshalList(styles)
	a.SamplePosts = unmarshalList(samples)
	return &a, nil
}

func marshalList(items []string) ([]byte, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal list: %w", err)
	}
	return b, nil
}

func unmarshalList(raw []byte) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return []string{}
	}
	return out
}
