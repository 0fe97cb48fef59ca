package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/josquinlarsen/tarpaulin/internal/apperror"
	"github.com/josquinlarsen/tarpaulin/internal/model"
	"github.com/josquinlarsen/tarpaulin/internal/repository"
)

var _ repository.UserRepository = (*UserDB)(nil)

// UserDB reads and writes the users collection.
type UserDB struct {
	q querier
}

// Create inserts a user and sets user.ID to the assigned id.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	res, err := u.q.ExecContext(ctx,
		`INSERT INTO users (sub, role, avatar) VALUES (?, ?, ?)`,
		user.Sub, string(user.Role), user.Avatar,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user (sub=%s): %w", user.Sub, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading user id: %w", err)
	}
	user.ID = id
	return nil
}

// GetByID returns apperror.ErrNotFound if no user has the id.
func (u *UserDB) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := u.q.QueryRowContext(ctx,
		`SELECT id, sub, role, avatar FROM users WHERE id = ?`, id)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return user, nil
}

func (u *UserDB) FindBySub(ctx context.Context, sub string) ([]model.User, error) {
	return u.query(ctx, `SELECT id, sub, role, avatar FROM users WHERE sub = ? ORDER BY id`, sub)
}

func (u *UserDB) List(ctx context.Context) ([]model.User, error) {
	return u.query(ctx, `SELECT id, sub, role, avatar FROM users ORDER BY id`)
}

// SetAvatar stores the avatar blob name; an empty name clears it.
func (u *UserDB) SetAvatar(ctx context.Context, id int64, avatar string) error {
	res, err := u.q.ExecContext(ctx, `UPDATE users SET avatar = ? WHERE id = ?`, avatar, id)
	if err != nil {
		return fmt.Errorf("sqlite: setting avatar for user %d: %w", id, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func (u *UserDB) query(ctx context.Context, query string, args ...any) ([]model.User, error) {
	rows, err := u.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*model.User, error) {
	var (
		user model.User
		role string
	)
	if err := s.Scan(&user.ID, &user.Sub, &role, &user.Avatar); err != nil {
		return nil, err
	}
	r, err := model.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", user.ID, err)
	}
	user.Role = r
	return &user, nil
}
