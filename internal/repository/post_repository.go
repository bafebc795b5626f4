package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digkill/TGContentBot/internal/models"
)

type PostRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) Create(ctx context.Context, p *models.SavedPost) error {
	images, err := marshalList(p.ImageURLs)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO saved_posts (id, user_id, channel_name, idea_id, topic_idea, format_style, final_text, image_urls, created_at)
VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, p.ID, p.UserID, p.ChannelName, p.IdeaID, p.TopicIdea, p.FormatStyle, p.FinalText, images, p.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (r *PostRepository) List(ctx context.Context, userID int64, channel string) ([]models.SavedPost, error) {
	const query = `
SELECT id, user_id, channel_name, COALESCE(idea_id, ''), topic_idea, format_style, final_text, image_urls, created_at
FROM saved_posts
WHERE user_id = ? AND (? = '' OR channel_name = ?)
ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID, channel, channel)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []models.SavedPost
	for rows.Next() {
		var (
			p      models.SavedPost
			images []byte
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.ChannelName, &p.IdeaID, &p.TopicIdea, &p.FormatStyle, &p.FinalText, &images, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.ImageURLs = unmarshalList(images)
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
