package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/city-competitions/models"
)

var (
	ErrRoundNotFound       = errors.New("round not found")
	ErrRoundNumberConflict = errors.New("round number already exists for this competition city")
	ErrRoundFinaleConflict = errors.New("competition city already has a finale round")
)

type RoundRepository interface {
	Create(ctx context.Context, exec SQLExecutor, round *models.Round) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Round, error)
	GetByNumber(ctx context.Context, exec SQLExecutor, competitionID, cityID, roundNumber int) (*models.Round, error)
	FindFinale(ctx context.Context, exec SQLExecutor, competitionID, cityID int) (*models.Round, error)
	ListByBranch(ctx context.Context, exec SQLExecutor, competitionID, cityID int, includeArchived bool) ([]models.Round, error)
	Update(ctx context.Context, exec SQLExecutor, round *models.Round) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.RoundStatus) error
	Archive(ctx context.Context, exec SQLExecutor, id int) error
	Unarchive(ctx context.Context, exec SQLExecutor, id int) error
	HasSubsequent(ctx context.Context, exec SQLExecutor, round *models.Round) (bool, error)
	Delete(ctx context.Context, exec SQLExecutor, id int) error
	CountByBranch(ctx context.Context, exec SQLExecutor, competitionID, cityID int) (int, error)
	CountCitiesWithCompletedFinale(ctx context.Context, exec SQLExecutor, competitionID int) (int, error)
	DeleteByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) error
}

type sqlRoundRepository struct {
	store *Store
}

func NewRoundRepository(store *Store) RoundRepository {
	return &sqlRoundRepository{store: store}
}

func (r *sqlRoundRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	return r.store.executor(exec)
}

const roundColumns = `id, competition_id, city_id, round_number, name, round_date, is_finale, status, previous_status, created_at, updated_at`

func scanRound(row rowScanner, rd *models.Round) error {
	return row.Scan(
		&rd.ID, &rd.CompetitionID, &rd.CityID, &rd.RoundNumber, &rd.Name, &rd.RoundDate,
		&rd.IsFinale, &rd.Status, &rd.PreviousStatus, &rd.CreatedAt, &rd.UpdatedAt,
	)
}

func mapRoundWriteError(err error) error {
	if uniqueViolationOn(err, "round_number") {
		return ErrRoundNumberConflict
	}
	if _, ok := uniqueViolation(err); ok {
		return ErrRoundFinaleConflict
	}
	return err
}

func (r *sqlRoundRepository) Create(ctx context.Context, exec SQLExecutor, rd *models.Round) error {
	rd.CreatedAt = now()
	rd.UpdatedAt = rd.CreatedAt
	query := `
		INSERT INTO rounds (competition_id, city_id, round_number, name, round_date, is_finale, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		rd.CompetitionID, rd.CityID, rd.RoundNumber, rd.Name, rd.RoundDate, rd.IsFinale, rd.Status,
		rd.CreatedAt, rd.UpdatedAt,
	).Scan(&rd.ID)
	if err != nil {
		if mapped := mapRoundWriteError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("insert round: %w", err)
	}
	return nil
}

func (r *sqlRoundRepository) getOne(ctx context.Context, exec SQLExecutor, where string, args ...interface{}) (*models.Round, error) {
	rd := &models.Round{}
	err := scanRound(r.getExecutor(exec).QueryRowContext(ctx, `SELECT `+roundColumns+` FROM rounds WHERE `+where, args...), rd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}
	return rd, nil
}

func (r *sqlRoundRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Round, error) {
	return r.getOne(ctx, exec, `id = ?`, id)
}

func (r *sqlRoundRepository) GetByNumber(ctx context.Context, exec SQLExecutor, competitionID, cityID, roundNumber int) (*models.Round, error) {
	return r.getOne(ctx, exec, `competition_id = ? AND city_id = ? AND round_number = ?`, competitionID, cityID, roundNumber)
}

func (r *sqlRoundRepository) FindFinale(ctx context.Context, exec SQLExecutor, competitionID, cityID int) (*models.Round, error) {
	return r.getOne(ctx, exec, `competition_id = ? AND city_id = ? AND is_finale = ?`, competitionID, cityID, true)
}

func (r *sqlRoundRepository) ListByBranch(ctx context.Context, exec SQLExecutor, competitionID, cityID int, includeArchived bool) ([]models.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE competition_id = ? AND city_id = ?`
	args := []interface{}{competitionID, cityID}
	if !includeArchived {
		query += " AND status <> ?"
		args = append(args, models.RoundArchived)
	}
	query += " ORDER BY round_number"

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rounds := make([]models.Round, 0)
	for rows.Next() {
		var rd models.Round
		if err := scanRound(rows, &rd); err != nil {
			return nil, err
		}
		rounds = append(rounds, rd)
	}
	return rounds, rows.Err()
}

func (r *sqlRoundRepository) Update(ctx context.Context, exec SQLExecutor, rd *models.Round) error {
	rd.UpdatedAt = now()
	query := `UPDATE rounds SET name = ?, round_date = ?, is_finale = ?, updated_at = ? WHERE id = ?`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, rd.Name, rd.RoundDate, rd.IsFinale, rd.UpdatedAt, rd.ID)
	if err != nil {
		if mapped := mapRoundWriteError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("update round %d: %w", rd.ID, err)
	}
	return checkAffectedRows(result, ErrRoundNotFound)
}

func (r *sqlRoundRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.RoundStatus) error {
	result, err := r.getExecutor(exec).ExecContext(ctx,
		`UPDATE rounds SET status = ?, updated_at = ? WHERE id = ?`, status, now(), id)
	if err != nil {
		return fmt.Errorf("update round %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrRoundNotFound)
}

// Archive remembers the current status so Unarchive can restore it.
func (r *sqlRoundRepository) Archive(ctx context.Context, exec SQLExecutor, id int) error {
	result, err := r.getExecutor(exec).ExecContext(ctx,
		`UPDATE rounds SET previous_status = status, status = ?, updated_at = ? WHERE id = ?`,
		models.RoundArchived, now(), id)
	if err != nil {
		return fmt.Errorf("archive round %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrRoundNotFound)
}

func (r *sqlRoundRepository) Unarchive(ctx context.Context, exec SQLExecutor, id int) error {
	result, err := r.getExecutor(exec).ExecContext(ctx,
		`UPDATE rounds SET status = COALESCE(previous_status, ?), previous_status = NULL, updated_at = ? WHERE id = ?`,
		models.RoundPending, now(), id)
	if err != nil {
		return fmt.Errorf("unarchive round %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrRoundNotFound)
}

func (r *sqlRoundRepository) HasSubsequent(ctx context.Context, exec SQLExecutor, rd *models.Round) (bool, error) {
	var exists bool
	err := r.getExecutor(exec).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM rounds WHERE competition_id = ? AND city_id = ? AND round_number > ?
		)`, rd.CompetitionID, rd.CityID, rd.RoundNumber,
	).Scan(&exists)
	return exists, err
}

func (r *sqlRoundRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	result, err := r.getExecutor(exec).ExecContext(ctx, `DELETE FROM rounds WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete round %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrRoundNotFound)
}

func (r *sqlRoundRepository) CountByBranch(ctx context.Context, exec SQLExecutor, competitionID, cityID int) (int, error) {
	var n int
	err := r.getExecutor(exec).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rounds WHERE competition_id = ? AND city_id = ?`, competitionID, cityID,
	).Scan(&n)
	return n, err
}

// CountCitiesWithCompletedFinale counts branches of the competition that are marked finished
// and whose finale is decided. A reopened branch is not counted.
func (r *sqlRoundRepository) CountCitiesWithCompletedFinale(ctx context.Context, exec SQLExecutor, competitionID int) (int, error) {
	var n int
	err := r.getExecutor(exec).QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT r.city_id)
		FROM rounds r
		JOIN competition_cities cc ON cc.competition_id = r.competition_id AND cc.city_id = r.city_id
		WHERE r.competition_id = ? AND r.is_finale = ? AND r.status = ?
		  AND cc.finished_at IS NOT NULL`,
		competitionID, true, models.RoundCompleted,
	).Scan(&n)
	return n, err
}

func (r *sqlRoundRepository) DeleteByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) error {
	if _, err := r.getExecutor(exec).ExecContext(ctx, `DELETE FROM rounds WHERE competition_id = ?`, competitionID); err != nil {
		return fmt.Errorf("delete competition rounds: %w", err)
	}
	return nil
}
