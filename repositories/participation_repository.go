package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/city-competitions/models"
)

var (
	ErrParticipationNotFound = errors.New("participation not found")
	ErrParticipationConflict = errors.New("user already registered for this competition city")
	ErrParticipationInvalid  = errors.New("invalid user, competition or city reference")
)

type ParticipationRepository interface {
	Create(ctx context.Context, exec SQLExecutor, p *models.Participation) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Participation, error)
	List(ctx context.Context, competitionID int, cityID *int) ([]models.Participation, error)
	CountByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) (int, error)
	CountByBranch(ctx context.Context, exec SQLExecutor, competitionID, cityID int) (int, error)
}

type sqlParticipationRepository struct {
	store *Store
}

func NewParticipationRepository(store *Store) ParticipationRepository {
	return &sqlParticipationRepository{store: store}
}

func (r *sqlParticipationRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	return r.store.executor(exec)
}

func (r *sqlParticipationRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Participation) error {
	p.CreatedAt = now()
	query := `
		INSERT INTO participations (user_id, competition_id, city_id, source, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		p.UserID, p.CompetitionID, p.CityID, p.Source, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return ErrParticipationConflict
		}
		if foreignKeyViolation(err) {
			return ErrParticipationInvalid
		}
		return fmt.Errorf("insert participation: %w", err)
	}
	return nil
}

func (r *sqlParticipationRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Participation, error) {
	query := `SELECT id, user_id, competition_id, city_id, source, created_at FROM participations WHERE id = ?`

	p := &models.Participation{}
	err := r.getExecutor(exec).QueryRowContext(ctx, query, id).
		Scan(&p.ID, &p.UserID, &p.CompetitionID, &p.CityID, &p.Source, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipationNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *sqlParticipationRepository) List(ctx context.Context, competitionID int, cityID *int) ([]models.Participation, error) {
	query := `
		SELECT p.id, p.user_id, p.competition_id, p.city_id, p.source, p.created_at,
		       u.name, u.email, u.mi_id
		FROM participations p
		JOIN users u ON u.id = p.user_id
		WHERE p.competition_id = ?`
	args := []interface{}{competitionID}
	if cityID != nil {
		query += " AND p.city_id = ?"
		args = append(args, *cityID)
	}
	query += " ORDER BY p.id"

	rows, err := r.getExecutor(nil).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participations := make([]models.Participation, 0)
	for rows.Next() {
		p := models.Participation{User: &models.User{}}
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.CompetitionID, &p.CityID, &p.Source, &p.CreatedAt,
			&p.User.Name, &p.User.Email, &p.User.MiID,
		); err != nil {
			return nil, err
		}
		p.User.ID = p.UserID
		participations = append(participations, p)
	}
	return participations, rows.Err()
}

func (r *sqlParticipationRepository) CountByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) (int, error) {
	var n int
	err := r.getExecutor(exec).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participations WHERE competition_id = ?`, competitionID,
	).Scan(&n)
	return n, err
}

func (r *sqlParticipationRepository) CountByBranch(ctx context.Context, exec SQLExecutor, competitionID, cityID int) (int, error) {
	var n int
	err := r.getExecutor(exec).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participations WHERE competition_id = ? AND city_id = ?`, competitionID, cityID,
	).Scan(&n)
	return n, err
}
