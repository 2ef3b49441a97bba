package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/city-competitions/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserEmailConflict = errors.New("user email already in use")
	ErrUserMiIDConflict  = errors.New("user mi_id already in use")
)

type UserRepository interface {
	Create(ctx context.Context, exec SQLExecutor, user *models.User) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.User, error)
}

type sqlUserRepository struct {
	store *Store
}

func NewUserRepository(store *Store) UserRepository {
	return &sqlUserRepository{store: store}
}

func (r *sqlUserRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	return r.store.executor(exec)
}

func (r *sqlUserRepository) Create(ctx context.Context, exec SQLExecutor, user *models.User) error {
	user.CreatedAt = now()
	query := `
		INSERT INTO users (name, email, mi_id, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		user.Name, user.Email, user.MiID, user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		switch {
		case uniqueViolationOn(err, "mi_id"):
			return ErrUserMiIDConflict
		case uniqueViolationOn(err, "email"):
			return ErrUserEmailConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *sqlUserRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.User, error) {
	query := `SELECT id, name, email, mi_id, created_at FROM users WHERE id = ?`

	u := &models.User{}
	err := r.getExecutor(exec).QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Name, &u.Email, &u.MiID, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}
