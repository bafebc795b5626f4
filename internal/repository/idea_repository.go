package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/TGContentBot/internal/models"
)

type IdeaRepository struct {
	db *sql.DB
}

func NewIdeaRepository(db *sql.DB) *IdeaRepository {
	return &IdeaRepository{db: db}
}

// CreateBatch inserts plan items in one transaction.
func (r *IdeaRepository) CreateBatch(ctx context.Context, ideas []models.Idea) error {
	if len(ideas) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
INSERT INTO suggested_ideas (id, user_id, channel_name, topic_idea, format_style, relative_day, is_detailed, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	for _, idea := range ideas {
		if _, err := tx.ExecContext(ctx, query, idea.ID, idea.UserID, idea.ChannelName, idea.TopicIdea, idea.FormatStyle, idea.RelativeDay, idea.IsDetailed, idea.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("insert idea: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ideas: %w", err)
	}
	return nil
}

func (r *IdeaRepository) List(ctx context.Context, userID int64, channel string) ([]models.Idea, error) {
	const query = `
SELECT id, user_id, channel_name, topic_idea, format_style, relative_day, is_detailed, created_at
FROM suggested_ideas
WHERE user_id = ? AND (? = '' OR channel_name = ?)
ORDER BY created_at DESC, relative_day ASC`
	rows, err := r.db.QueryContext(ctx, query, userID, channel, channel)
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	defer rows.Close()

	var ideas []models.Idea
	for rows.Next() {
		var i models.Idea
		if err := rows.Scan(&i.ID, &i.UserID, &i.ChannelName, &i.TopicIdea, &i.FormatStyle, &i.RelativeDay, &i.IsDetailed, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan idea: %w", err)
		}
		ideas = append(ideas, i)
	}
	return ideas, rows.Err()
}

func (r *IdeaRepository) Get(ctx context.Context, userID int64, id string) (*models.Idea, error) {
	const query = `
SELECT id, user_id, channel_name, topic_idea, format_style, relative_day, is_detailed, created_at
FROM suggested_ideas WHERE id = ? AND user_id = ?`
	row := r.db.QueryRowContext(ctx, query, id, userID)
	var i models.Idea
	if err := row.Scan(&i.ID, &i.UserID, &i.ChannelName, &i.TopicIdea, &i.FormatStyle, &i.RelativeDay, &i.IsDetailed, &i.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idea: %w", err)
	}
	return &i, nil
}

func (r *IdeaRepository) MarkDetailed(ctx context.Context, userID int64, id string) error {
	const query = `UPDATE suggested_ideas SET is_detailed = 1 WHERE id = ? AND user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, id, userID); err != nil {
		return fmt.Errorf("mark idea detailed: %w", err)
	}
	return nil
}

func (r *IdeaRepository) Delete(ctx context.Context, userID int64, id string) error {
	const query = `DELETE FROM suggested_ideas WHERE id = ? AND user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, id, userID); err != nil {
		return fmt.Errorf("delete idea: %w", err)
	}
	return nil
}
