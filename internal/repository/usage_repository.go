package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/TGContentBot/internal/models"
)

// UsageRepository stores per-user free-tier counters keyed by Telegram ID.
type UsageRepository struct {
	db *sql.DB
}

func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) Get(ctx context.Context, userID int64) (*models.UsageRecord, error) {
	const query = `
SELECT user_id, analysis_count, post_generation_count, ideas_generation_count, reset_at, updated_at
FROM user_usage_stats WHERE user_id = ?`
	row := r.db.QueryRowContext(ctx, query, userID)
	var u models.UsageRecord
	if err := row.Scan(&u.UserID, &u.AnalysisCount, &u.PostGenerationCount, &u.IdeasGenerationCount, &u.ResetAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan usage: %w", err)
	}
	return &u, nil
}

// Save writes the whole record, inserting it when absent.
func (r *UsageRepository) Save(ctx context.Context, u models.UsageRecord) error {
	const query = `
INSERT INTO user_usage_stats (user_id, analysis_count, post_generation_count, ideas_generation_count, reset_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    analysis_count = VALUES(analysis_count),
    post_generation_count = VALUES(post_generation_count),
    ideas_generation_count = VALUES(ideas_generation_count),
    reset_at = VALUES(reset_at),
    updated_at = VALUES(updated_at)`
	if _, err := r.db.ExecContext(ctx, query, u.UserID, u.AnalysisCount, u.PostGenerationCount, u.IdeasGenerationCount, u.ResetAt.UTC(), u.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("save usage: %w", err)
	}
	return nil
}
