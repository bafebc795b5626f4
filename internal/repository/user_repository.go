package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/TGContentBot/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	const query = `
SELECT id, telegram_id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''), created_at, updated_at
FROM users WHERE telegram_id = ?`
	row := r.db.QueryRowContext(ctx, query, telegramID)
	var u models.User
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	const query = `
INSERT INTO users (telegram_id, username, first_name, last_name)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''))`
	res, err := r.db.ExecContext(ctx, query, user.TelegramID, user.Username, user.FirstName, user.LastName)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	user.ID = id
	return user, nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, userID int64, username, firstName, lastName string) error {
	const query = `
UPDATE users SET username = NULLIF(?, ''), first_name = NULLIF(?, ''), last_name = NULLIF(?, ''), updated_at = NOW()
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, username, firstName, lastName, userID); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// Ensure returns the user for telegramID, creating it on first contact.
func (r *UserRepository) Ensure(ctx context.Context, telegramID int64, username, firstName, lastName string) (*models.User, bool, error) {
	user, err := r.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		if user.Username != username || user.FirstName != firstName || user.LastName != lastName {
			if err := r.UpdateProfile(ctx, user.ID, username, firstName, lastName); err != nil {
				return nil, false, err
			}
			user.Username, user.FirstName, user.LastName = username, firstName, lastName
		}
		return user, false, nil
	}
	created, err := r.Create(ctx, &models.User{
		TelegramID: telegramID,
		Username:   username,
		FirstName:  firstName,
		LastName:   lastName,
	})
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (r *UserRepository) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT telegram_id FROM users`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list telegram ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan telegram id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
