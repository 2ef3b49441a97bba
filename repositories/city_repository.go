package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/city-competitions/models"
)

var (
	ErrCityNotFound              = errors.New("city not found")
	ErrCityNameConflict          = errors.New("city name already exists")
	ErrCompetitionCityNotFound   = errors.New("competition city not found")
	ErrCompetitionCityConflict   = errors.New("city already added to competition")
	ErrCompetitionCityInvalidRef = errors.New("invalid competition or city reference")
	ErrCompetitionCityInUse      = errors.New("competition city is referenced by participations or rounds")
)

type CityRepository interface {
	Create(ctx context.Context, exec SQLExecutor, city *models.City) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.City, error)
	List(ctx context.Context, status *models.CityStatus) ([]models.City, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.CityStatus) error
}

type CompetitionCityRepository interface {
	Create(ctx context.Context, exec SQLExecutor, cc *models.CompetitionCity) error
	Get(ctx context.Context, exec SQLExecutor, competitionID, cityID int) (*models.CompetitionCity, error)
	ListByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) ([]models.CompetitionCity, error)
	UpdateEventDate(ctx context.Context, exec SQLExecutor, competitionID, cityID int, eventDate *time.Time) error
	SetRegistrationOpen(ctx context.Context, exec SQLExecutor, competitionID, cityID int, open bool) error
	SetFinishedAt(ctx context.Context, exec SQLExecutor, competitionID, cityID int, finishedAt *time.Time) error
	CountByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) (int, error)
	Delete(ctx context.Context, exec SQLExecutor, competitionID, cityID int) error
	DeleteByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) error
}

type sqlCityRepository struct {
	store *Store
}

func NewCityRepository(store *Store) CityRepository {
	return &sqlCityRepository{store: store}
}

func (r *sqlCityRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	return r.store.executor(exec)
}

func (r *sqlCityRepository) Create(ctx context.Context, exec SQLExecutor, city *models.City) error {
	query := `INSERT INTO cities (name, status) VALUES (?, ?) RETURNING id`

	if err := r.getExecutor(exec).QueryRowContext(ctx, query, city.Name, city.Status).Scan(&city.ID); err != nil {
		if _, ok := uniqueViolation(err); ok {
			return ErrCityNameConflict
		}
		return fmt.Errorf("insert city: %w", err)
	}
	return nil
}

func (r *sqlCityRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.City, error) {
	c := &models.City{}
	err := r.getExecutor(exec).QueryRowContext(ctx, `SELECT id, name, status FROM cities WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCityNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *sqlCityRepository) List(ctx context.Context, status *models.CityStatus) ([]models.City, error) {
	query := `SELECT id, name, status FROM cities`
	args := []interface{}{}
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, *status)
	}
	query += " ORDER BY name"

	rows, err := r.getExecutor(nil).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cities := make([]models.City, 0)
	for rows.Next() {
		var c models.City
		if err := rows.Scan(&c.ID, &c.Name, &c.Status); err != nil {
			return nil, err
		}
		cities = append(cities, c)
	}
	return cities, rows.Err()
}

func (r *sqlCityRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.CityStatus) error {
	result, err := r.getExecutor(exec).ExecContext(ctx, `UPDATE cities SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update city %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrCityNotFound)
}

type sqlCompetitionCityRepository struct {
	store *Store
}

func NewCompetitionCityRepository(store *Store) CompetitionCityRepository {
	return &sqlCompetitionCityRepository{store: store}
}

func (r *sqlCompetitionCityRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	return r.store.executor(exec)
}

func (r *sqlCompetitionCityRepository) Create(ctx context.Context, exec SQLExecutor, cc *models.CompetitionCity) error {
	query := `
		INSERT INTO competition_cities (competition_id, city_id, event_date, registration_open)
		VALUES (?, ?, ?, ?)
		RETURNING id`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		cc.CompetitionID, cc.CityID, cc.EventDate, cc.RegistrationOpen,
	).Scan(&cc.ID)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return ErrCompetitionCityConflict
		}
		if foreignKeyViolation(err) {
			return ErrCompetitionCityInvalidRef
		}
		return fmt.Errorf("insert competition city: %w", err)
	}
	return nil
}

func (r *sqlCompetitionCityRepository) Get(ctx context.Context, exec SQLExecutor, competitionID, cityID int) (*models.CompetitionCity, error) {
	query := `
		SELECT cc.id, cc.competition_id, cc.city_id, cc.event_date, cc.registration_open, cc.finished_at,
		       c.name, c.status
		FROM competition_cities cc
		JOIN cities c ON c.id = cc.city_id
		WHERE cc.competition_id = ? AND cc.city_id = ?`

	cc := &models.CompetitionCity{City: &models.City{}}
	err := r.getExecutor(exec).QueryRowContext(ctx, query, competitionID, cityID).Scan(
		&cc.ID, &cc.CompetitionID, &cc.CityID, &cc.EventDate, &cc.RegistrationOpen, &cc.FinishedAt,
		&cc.City.Name, &cc.City.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompetitionCityNotFound
		}
		return nil, err
	}
	cc.City.ID = cc.CityID
	return cc, nil
}

func (r *sqlCompetitionCityRepository) ListByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) ([]models.CompetitionCity, error) {
	query := `
		SELECT cc.id, cc.competition_id, cc.city_id, cc.event_date, cc.registration_open, cc.finished_at,
		       c.name, c.status
		FROM competition_cities cc
		JOIN cities c ON c.id = cc.city_id
		WHERE cc.competition_id = ?
		ORDER BY c.name`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, competitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]models.CompetitionCity, 0)
	for rows.Next() {
		cc := models.CompetitionCity{City: &models.City{}}
		if err := rows.Scan(
			&cc.ID, &cc.CompetitionID, &cc.CityID, &cc.EventDate, &cc.RegistrationOpen, &cc.FinishedAt,
			&cc.City.Name, &cc.City.Status,
		); err != nil {
			return nil, err
		}
		cc.City.ID = cc.CityID
		branches = append(branches, cc)
	}
	return branches, rows.Err()
}

func (r *sqlCompetitionCityRepository) UpdateEventDate(ctx context.Context, exec SQLExecutor, competitionID, cityID int, eventDate *time.Time) error {
	query := `UPDATE competition_cities SET event_date = ? WHERE competition_id = ? AND city_id = ?`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, eventDate, competitionID, cityID)
	if err != nil {
		return fmt.Errorf("update competition city event date: %w", err)
	}
	return checkAffectedRows(result, ErrCompetitionCityNotFound)
}

func (r *sqlCompetitionCityRepository) SetRegistrationOpen(ctx context.Context, exec SQLExecutor, competitionID, cityID int, open bool) error {
	query := `UPDATE competition_cities SET registration_open = ? WHERE competition_id = ? AND city_id = ?`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, open, competitionID, cityID)
	if err != nil {
		return fmt.Errorf("update competition city registration: %w", err)
	}
	return checkAffectedRows(result, ErrCompetitionCityNotFound)
}

func (r *sqlCompetitionCityRepository) SetFinishedAt(ctx context.Context, exec SQLExecutor, competitionID, cityID int, finishedAt *time.Time) error {
	query := `UPDATE competition_cities SET finished_at = ? WHERE competition_id = ? AND city_id = ?`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, finishedAt, competitionID, cityID)
	if err != nil {
		return fmt.Errorf("update competition city finished_at: %w", err)
	}
	return checkAffectedRows(result, ErrCompetitionCityNotFound)
}

func (r *sqlCompetitionCityRepository) CountByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) (int, error) {
	var n int
	err := r.getExecutor(exec).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM competition_cities WHERE competition_id = ?`, competitionID,
	).Scan(&n)
	return n, err
}

func (r *sqlCompetitionCityRepository) Delete(ctx context.Context, exec SQLExecutor, competitionID, cityID int) error {
	result, err := r.getExecutor(exec).ExecContext(ctx,
		`DELETE FROM competition_cities WHERE competition_id = ? AND city_id = ?`, competitionID, cityID)
	if err != nil {
		if foreignKeyViolation(err) {
			return ErrCompetitionCityInUse
		}
		return fmt.Errorf("delete competition city: %w", err)
	}
	return checkAffectedRows(result, ErrCompetitionCityNotFound)
}

func (r *sqlCompetitionCityRepository) DeleteByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) error {
	if _, err := r.getExecutor(exec).ExecContext(ctx,
		`DELETE FROM competition_cities WHERE competition_id = ?`, competitionID); err != nil {
		return fmt.Errorf("delete competition cities: %w", err)
	}
	return nil
}
