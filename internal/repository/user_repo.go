package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/ringside/sidebet/internal/domain"
)

// UserRepository handles all database operations for users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetOrCreateByTgID returns the user mapped to the given chat identity,
// creating the row on first contact. The username is refreshed on every
// call so display names track the chat platform.
func (r *UserRepository) GetOrCreateByTgID(ctx context.Context, tgUserID int64, username string) (*domain.User, error) {
	var u domain.User
	var uname *string
	if username != "" {
		uname = &username
	}
	err := r.db.GetContext(ctx, &u, `
		INSERT INTO app_user (tg_user_id, username)
		VALUES ($1, $2)
		ON CONFLICT (tg_user_id) DO UPDATE
		SET username = COALESCE(EXCLUDED.username, app_user.username)
		RETURNING *`,
		tgUserID, uname)
	if err != nil {
		return nil, fmt.Errorf("user_repo.GetOrCreateByTgID: %w", err)
	}
	return &u, nil
}

// GetByID fetches a user by its primary key.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM app_user WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetByID: %w", err)
	}
	return &u, nil
}

// GetByTgID fetches a user by its external chat identity.
func (r *UserRepository) GetByTgID(ctx context.Context, tgUserID int64) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM app_user WHERE tg_user_id = $1`, tgUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetByTgID: %w", err)
	}
	return &u, nil
}

// TgIDsByUserIDs resolves internal ids to chat ids in one round trip.
// Used by the settlement engine to address transfers and notifications.
func (r *UserRepository) TgIDsByUserIDs(ctx context.Context, ids []int64) (map[int64]int64, error) {
	if len(ids) == 0 {
		return map[int64]int64{}, nil
	}
	query, args, err := sqlx.In(`SELECT id, tg_user_id FROM app_user WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("user_repo.TgIDsByUserIDs: %w", err)
	}
	query = r.db.Rebind(query)

	var rows []struct {
		ID       int64 `db:"id"`
		TgUserID int64 `db:"tg_user_id"`
	}
	if err = r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("user_repo.TgIDsByUserIDs: %w", err)
	}

	out := make(map[int64]int64, len(rows))
	for _, row := range rows {
		out[row.ID] = row.TgUserID
	}
	return out, nil
}
