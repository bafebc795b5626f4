package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/TGContentBot/internal/models"
)

type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	const query = `
INSERT INTO subscriptions (user_id, start_date, end_date, is_active, payment_id)
VALUES (?, ?, ?, ?, NULLIF(?, ''))`
	res, err := r.db.ExecContext(ctx, query, sub.UserID, sub.StartDate.UTC(), sub.EndDate.UTC(), sub.IsActive, sub.PaymentID)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("subscription last insert id: %w", err)
	}
	sub.ID = id
	return nil
}

// Latest returns the subscription with the furthest end date for the user.
func (r *SubscriptionRepository) Latest(ctx context.Context, userID int64) (*models.Subscription, error) {
	const query = `
SELECT id, user_id, start_date, end_date, is_active, COALESCE(payment_id, ''), created_at
FROM subscriptions
WHERE user_id = ?
ORDER BY end_date DESC
LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, userID)
	var s models.Subscription
	if err := row.Scan(&s.ID, &s.UserID, &s.StartDate, &s.EndDate, &s.IsActive, &s.PaymentID, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest subscription: %w", err)
	}
	return &s, nil
}

// FindByPayment returns the subscription opened by the given payment, or nil.
func (r *SubscriptionRepository) FindByPayment(ctx context.Context, paymentID string) (*models.Subscription, error) {
	const query = `
SELECT id, user_id, start_date, end_date, is_active, COALESCE(payment_id, ''), created_at
FROM subscriptions
WHERE payment_id = ?
ORDER BY id DESC
LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, paymentID)
	var s models.Subscription
	if err := row.Scan(&s.ID, &s.UserID, &s.StartDate, &s.EndDate, &s.IsActive, &s.PaymentID, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get subscription by payment: %w", err)
	}
	return &s, nil
}

func (r *SubscriptionRepository) Deactivate(ctx context.Context, id int64) error {
	const query = `UPDATE subscriptions SET is_active = 0 WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) DeactivateAll(ctx context.Context, userID int64) error {
	const query = `UPDATE subscriptions SET is_active = 0 WHERE user_id = ? AND is_active = 1`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("deactivate user subscriptions: %w", err)
	}
	return nil
}
