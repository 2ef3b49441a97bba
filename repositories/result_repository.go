package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/city-competitions/models"
)

var (
	ErrResultNotFound = errors.New("result not found")
	ErrResultConflict = errors.New("result already exists for participation")
)

type ListResultsFilter struct {
	CompetitionID *int
	CityID        *int
	Status        *models.ResultStatus
}

type ResultRepository interface {
	Insert(ctx context.Context, exec SQLExecutor, result *models.Result) error
	Upsert(ctx context.Context, exec SQLExecutor, result *models.Result) error
	GetByParticipation(ctx context.Context, exec SQLExecutor, participationID int) (*models.Result, error)
	List(ctx context.Context, exec SQLExecutor, filter ListResultsFilter) ([]models.Result, error)
	SetLocked(ctx context.Context, exec SQLExecutor, participationID int, locked bool) error
	CountLockedByBranch(ctx context.Context, exec SQLExecutor, competitionID, cityID int) (int, error)
	DeleteByBranch(ctx context.Context, exec SQLExecutor, competitionID, cityID int) (int64, error)
	DeleteByParticipations(ctx context.Context, exec SQLExecutor, participationIDs []int) (int64, error)
}

type sqlResultRepository struct {
	store *Store
}

func NewResultRepository(store *Store) ResultRepository {
	return &sqlResultRepository{store: store}
}

func (r *sqlResultRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	return r.store.executor(exec)
}

const resultColumns = `id, participation_id, competition_id, city_id, result_status, position, locked, updated_at`

func scanResult(row rowScanner, res *models.Result) error {
	return row.Scan(&res.ID, &res.ParticipationID, &res.CompetitionID, &res.CityID, &res.Status, &res.Position, &res.Locked, &res.UpdatedAt)
}

func (r *sqlResultRepository) Insert(ctx context.Context, exec SQLExecutor, res *models.Result) error {
	res.UpdatedAt = now()
	query := `
		INSERT INTO results (participation_id, competition_id, city_id, result_status, position, locked, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		res.ParticipationID, res.CompetitionID, res.CityID, res.Status, res.Position, res.Locked, res.UpdatedAt,
	).Scan(&res.ID)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return ErrResultConflict
		}
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// Upsert writes status and position; the lock flag of an existing row is kept.
func (r *sqlResultRepository) Upsert(ctx context.Context, exec SQLExecutor, res *models.Result) error {
	res.UpdatedAt = now()
	query := `
		INSERT INTO results (participation_id, competition_id, city_id, result_status, position, locked, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (participation_id) DO UPDATE SET
			competition_id = excluded.competition_id,
			city_id = excluded.city_id,
			result_status = excluded.result_status,
			position = excluded.position,
			updated_at = excluded.updated_at
		RETURNING id, locked`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		res.ParticipationID, res.CompetitionID, res.CityID, res.Status, res.Position, false, res.UpdatedAt,
	).Scan(&res.ID, &res.Locked)
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

func (r *sqlResultRepository) GetByParticipation(ctx context.Context, exec SQLExecutor, participationID int) (*models.Result, error) {
	res := &models.Result{}
	err := scanResult(r.getExecutor(exec).QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM results WHERE participation_id = ?`, participationID), res)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}
	return res, nil
}

func (r *sqlResultRepository) List(ctx context.Context, exec SQLExecutor, filter ListResultsFilter) ([]models.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM results WHERE 1=1`
	args := []interface{}{}
	if filter.CompetitionID != nil {
		query += " AND competition_id = ?"
		args = append(args, *filter.CompetitionID)
	}
	if filter.CityID != nil {
		query += " AND city_id = ?"
		args = append(args, *filter.CityID)
	}
	if filter.Status != nil {
		query += " AND result_status = ?"
		args = append(args, *filter.Status)
	}
	query += " ORDER BY competition_id, city_id, position IS NULL, position, participation_id"

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]models.Result, 0)
	for rows.Next() {
		var res models.Result
		if err := scanResult(rows, &res); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (r *sqlResultRepository) SetLocked(ctx context.Context, exec SQLExecutor, participationID int, locked bool) error {
	result, err := r.getExecutor(exec).ExecContext(ctx,
		`UPDATE results SET locked = ?, updated_at = ? WHERE participation_id = ?`, locked, now(), participationID)
	if err != nil {
		return fmt.Errorf("update result lock: %w", err)
	}
	return checkAffectedRows(result, ErrResultNotFound)
}

func (r *sqlResultRepository) CountLockedByBranch(ctx context.Context, exec SQLExecutor, competitionID, cityID int) (int, error) {
	var n int
	err := r.getExecutor(exec).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM results WHERE competition_id = ? AND city_id = ? AND locked = ?`,
		competitionID, cityID, true,
	).Scan(&n)
	return n, err
}

func (r *sqlResultRepository) DeleteByBranch(ctx context.Context, exec SQLExecutor, competitionID, cityID int) (int64, error) {
	result, err := r.getExecutor(exec).ExecContext(ctx,
		`DELETE FROM results WHERE competition_id = ? AND city_id = ?`, competitionID, cityID)
	if err != nil {
		return 0, fmt.Errorf("delete branch results: %w", err)
	}
	return affectedRows(result)
}

func (r *sqlResultRepository) DeleteByParticipations(ctx context.Context, exec SQLExecutor, participationIDs []int) (int64, error) {
	if len(participationIDs) == 0 {
		return 0, nil
	}
	query := `DELETE FROM results WHERE participation_id IN (` + inPlaceholders(len(participationIDs)) + `)`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, intArgs(participationIDs)...)
	if err != nil {
		return 0, fmt.Errorf("delete participation results: %w", err)
	}
	return affectedRows(result)
}
