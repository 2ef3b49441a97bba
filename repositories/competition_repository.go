package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/city-competitions/models"
)

var (
	ErrCompetitionNotFound = errors.New("competition not found")
	ErrCompetitionInUse    = errors.New("competition is referenced by participations")
)

type ListCompetitionsFilter struct {
	Status *models.CompetitionStatus
	Limit  int
	Offset int
}

type CompetitionRepository interface {
	Create(ctx context.Context, exec SQLExecutor, competition *models.Competition) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Competition, error)
	List(ctx context.Context, filter ListCompetitionsFilter) ([]models.Competition, error)
	Update(ctx context.Context, exec SQLExecutor, competition *models.Competition) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.CompetitionStatus) error
	SetRegistrationOpen(ctx context.Context, exec SQLExecutor, id int, open bool) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

type sqlCompetitionRepository struct {
	store *Store
}

func NewCompetitionRepository(store *Store) CompetitionRepository {
	return &sqlCompetitionRepository{store: store}
}

func (r *sqlCompetitionRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	return r.store.executor(exec)
}

const competitionColumns = `id, name, description, registration_open, status, created_at, updated_at`

func scanCompetition(row rowScanner, c *models.Competition) error {
	return row.Scan(&c.ID, &c.Name, &c.Description, &c.RegistrationOpen, &c.Status, &c.CreatedAt, &c.UpdatedAt)
}

func (r *sqlCompetitionRepository) Create(ctx context.Context, exec SQLExecutor, c *models.Competition) error {
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt
	query := `
		INSERT INTO competitions (name, description, registration_open, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		c.Name, c.Description, c.RegistrationOpen, c.Status, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert competition: %w", err)
	}
	return nil
}

func (r *sqlCompetitionRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Competition, error) {
	query := `SELECT ` + competitionColumns + ` FROM competitions WHERE id = ?`

	c := &models.Competition{}
	if err := scanCompetition(r.getExecutor(exec).QueryRowContext(ctx, query, id), c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompetitionNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *sqlCompetitionRepository) List(ctx context.Context, filter ListCompetitionsFilter) ([]models.Competition, error) {
	query := `SELECT ` + competitionColumns + ` FROM competitions WHERE 1=1`
	args := []interface{}{}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.getExecutor(nil).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	competitions := make([]models.Competition, 0)
	for rows.Next() {
		var c models.Competition
		if err := scanCompetition(rows, &c); err != nil {
			return nil, err
		}
		competitions = append(competitions, c)
	}
	return competitions, rows.Err()
}

func (r *sqlCompetitionRepository) Update(ctx context.Context, exec SQLExecutor, c *models.Competition) error {
	c.UpdatedAt = now()
	query := `UPDATE competitions SET name = ?, description = ?, updated_at = ? WHERE id = ?`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, c.Name, c.Description, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("update competition %d: %w", c.ID, err)
	}
	return checkAffectedRows(result, ErrCompetitionNotFound)
}

func (r *sqlCompetitionRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.CompetitionStatus) error {
	query := `UPDATE competitions SET status = ?, updated_at = ? WHERE id = ?`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, status, now(), id)
	if err != nil {
		return fmt.Errorf("update competition %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrCompetitionNotFound)
}

func (r *sqlCompetitionRepository) SetRegistrationOpen(ctx context.Context, exec SQLExecutor, id int, open bool) error {
	query := `UPDATE competitions SET registration_open = ?, updated_at = ? WHERE id = ?`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, open, now(), id)
	if err != nil {
		return fmt.Errorf("update competition %d registration: %w", id, err)
	}
	return checkAffectedRows(result, ErrCompetitionNotFound)
}

func (r *sqlCompetitionRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	result, err := r.getExecutor(exec).ExecContext(ctx, `DELETE FROM competitions WHERE id = ?`, id)
	if err != nil {
		if foreignKeyViolation(err) {
			return ErrCompetitionInUse
		}
		return fmt.Errorf("delete competition %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrCompetitionNotFound)
}
