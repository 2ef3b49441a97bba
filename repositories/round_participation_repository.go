package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/city-competitions/models"
)

var (
	ErrRoundParticipationNotFound = errors.New("round participation not found")
	ErrRoundParticipationConflict = errors.New("participation already in round")
	ErrRoundParticipationInvalid  = errors.New("invalid round or participation reference")
)

type RoundParticipationRepository interface {
	Insert(ctx context.Context, exec SQLExecutor, rp *models.RoundParticipation) error
	InsertIfAbsent(ctx context.Context, exec SQLExecutor, roundID, participationID int, qualifiedBy models.QualifiedBy, addedBy *int) (bool, error)
	EnrollBranch(ctx context.Context, exec SQLExecutor, roundID, competitionID, cityID int) (int64, error)
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.RoundParticipation, error)
	GetByRoundAndParticipation(ctx context.Context, exec SQLExecutor, roundID, participationID int) (*models.RoundParticipation, error)
	ListEntries(ctx context.Context, exec SQLExecutor, roundID int, byScore bool) ([]models.RoundEntry, error)
	TopScored(ctx context.Context, exec SQLExecutor, roundID, limit int) ([]models.RoundParticipation, error)
	FindByIdentifier(ctx context.Context, exec SQLExecutor, roundID int, identifier string) (*models.RoundParticipation, error)
	ListEligible(ctx context.Context, exec SQLExecutor, round *models.Round) ([]models.EligibleParticipant, error)
	Delete(ctx context.Context, exec SQLExecutor, id int) error
	DeleteByRound(ctx context.Context, exec SQLExecutor, roundID int) (int64, error)
}

type sqlRoundParticipationRepository struct {
	store *Store
}

func NewRoundParticipationRepository(store *Store) RoundParticipationRepository {
	return &sqlRoundParticipationRepository{store: store}
}

func (r *sqlRoundParticipationRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	return r.store.executor(exec)
}

const roundParticipationColumns = `rp.id, rp.round_id, rp.participation_id, rp.qualified_by, rp.added_by, rp.created_at`

func scanRoundParticipation(row rowScanner, rp *models.RoundParticipation) error {
	return row.Scan(&rp.ID, &rp.RoundID, &rp.ParticipationID, &rp.QualifiedBy, &rp.AddedBy, &rp.CreatedAt)
}

func (r *sqlRoundParticipationRepository) Insert(ctx context.Context, exec SQLExecutor, rp *models.RoundParticipation) error {
	rp.CreatedAt = now()
	query := `
		INSERT INTO round_participations (round_id, participation_id, qualified_by, added_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		rp.RoundID, rp.ParticipationID, rp.QualifiedBy, rp.AddedBy, rp.CreatedAt,
	).Scan(&rp.ID)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return ErrRoundParticipationConflict
		}
		if foreignKeyViolation(err) {
			return ErrRoundParticipationInvalid
		}
		return fmt.Errorf("insert round participation: %w", err)
	}
	return nil
}

// InsertIfAbsent reports whether a new row was written; an existing membership is not an error.
func (r *sqlRoundParticipationRepository) InsertIfAbsent(ctx context.Context, exec SQLExecutor, roundID, participationID int, qualifiedBy models.QualifiedBy, addedBy *int) (bool, error) {
	query := `
		INSERT INTO round_participations (round_id, participation_id, qualified_by, added_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (round_id, participation_id) DO NOTHING`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, roundID, participationID, qualifiedBy, addedBy, now())
	if err != nil {
		if foreignKeyViolation(err) {
			return false, ErrRoundParticipationInvalid
		}
		return false, fmt.Errorf("insert round participation: %w", err)
	}
	n, err := affectedRows(result)
	return n > 0, err
}

// EnrollBranch adds every participation of the branch to the round as AUTOMATIC.
func (r *sqlRoundParticipationRepository) EnrollBranch(ctx context.Context, exec SQLExecutor, roundID, competitionID, cityID int) (int64, error) {
	query := `
		INSERT INTO round_participations (round_id, participation_id, qualified_by, created_at)
		SELECT CAST(? AS INTEGER), p.id, CAST(? AS TEXT), CURRENT_TIMESTAMP
		FROM participations p
		WHERE p.competition_id = ? AND p.city_id = ?
		ORDER BY p.id
		ON CONFLICT (round_id, participation_id) DO NOTHING`

	result, err := r.getExecutor(exec).ExecContext(ctx, query,
		roundID, models.QualifiedAutomatic, competitionID, cityID)
	if err != nil {
		return 0, fmt.Errorf("enroll branch into round %d: %w", roundID, err)
	}
	return affectedRows(result)
}

func (r *sqlRoundParticipationRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.RoundParticipation, error) {
	rp := &models.RoundParticipation{}
	err := scanRoundParticipation(r.getExecutor(exec).QueryRowContext(ctx,
		`SELECT `+roundParticipationColumns+` FROM round_participations rp WHERE rp.id = ?`, id), rp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundParticipationNotFound
		}
		return nil, err
	}
	return rp, nil
}

func (r *sqlRoundParticipationRepository) GetByRoundAndParticipation(ctx context.Context, exec SQLExecutor, roundID, participationID int) (*models.RoundParticipation, error) {
	rp := &models.RoundParticipation{}
	err := scanRoundParticipation(r.getExecutor(exec).QueryRowContext(ctx,
		`SELECT `+roundParticipationColumns+` FROM round_participations rp WHERE rp.round_id = ? AND rp.participation_id = ?`,
		roundID, participationID), rp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundParticipationNotFound
		}
		return nil, err
	}
	return rp, nil
}

// TopScored returns the best scored members of the round. Equal scores keep enrollment order.
func (r *sqlRoundParticipationRepository) TopScored(ctx context.Context, exec SQLExecutor, roundID, limit int) ([]models.RoundParticipation, error) {
	return r.list(ctx, exec, `
		SELECT `+roundParticipationColumns+`
		FROM round_participations rp
		JOIN round_scores rs ON rs.round_participation_id = rp.id
		WHERE rp.round_id = ? AND rs.score IS NOT NULL
		ORDER BY rs.score DESC, rp.id ASC
		LIMIT ?`, roundID, limit)
}

func (r *sqlRoundParticipationRepository) list(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]models.RoundParticipation, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.RoundParticipation, 0)
	for rows.Next() {
		var rp models.RoundParticipation
		if err := scanRoundParticipation(rows, &rp); err != nil {
			return nil, err
		}
		items = append(items, rp)
	}
	return items, rows.Err()
}

func (r *sqlRoundParticipationRepository) ListEntries(ctx context.Context, exec SQLExecutor, roundID int, byScore bool) ([]models.RoundEntry, error) {
	query := `
		SELECT rp.id, rp.participation_id, rp.qualified_by, u.id, u.name, u.email, u.mi_id, p.city_id,
		       rs.score, rs.notes, rs.rank_in_round, COALESCE(rs.is_winner, FALSE), rs.winner_position
		FROM round_participations rp
		JOIN participations p ON p.id = rp.participation_id
		JOIN users u ON u.id = p.user_id
		LEFT JOIN round_scores rs ON rs.round_participation_id = rp.id
		WHERE rp.round_id = ?`
	if byScore {
		query += " ORDER BY rs.score DESC NULLS LAST, rp.id ASC"
	} else {
		query += " ORDER BY rp.id ASC"
	}

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.RoundEntry, 0)
	for rows.Next() {
		var e models.RoundEntry
		if err := rows.Scan(
			&e.RoundParticipationID, &e.ParticipationID, &e.QualifiedBy, &e.UserID, &e.UserName, &e.Email, &e.MiID, &e.CityID,
			&e.Score, &e.Notes, &e.RankInRound, &e.IsWinner, &e.WinnerPosition,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// FindByIdentifier resolves a score record identifier (mi_id or e-mail) to a member of the round.
func (r *sqlRoundParticipationRepository) FindByIdentifier(ctx context.Context, exec SQLExecutor, roundID int, identifier string) (*models.RoundParticipation, error) {
	rp := &models.RoundParticipation{}
	err := scanRoundParticipation(r.getExecutor(exec).QueryRowContext(ctx, `
		SELECT `+roundParticipationColumns+`
		FROM round_participations rp
		JOIN participations p ON p.id = rp.participation_id
		JOIN users u ON u.id = p.user_id
		WHERE rp.round_id = ? AND (u.mi_id = ? OR lower(u.email) = lower(?))
		ORDER BY rp.id
		LIMIT 1`, roundID, identifier, identifier), rp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundParticipationNotFound
		}
		return nil, err
	}
	return rp, nil
}

// ListEligible returns participations that may be added to the round manually.
// Round 1 draws from its own branch; later rounds from the whole competition,
// with the best earlier-round finishers of the same branch first.
func (r *sqlRoundParticipationRepository) ListEligible(ctx context.Context, exec SQLExecutor, round *models.Round) ([]models.EligibleParticipant, error) {
	query := `
		SELECT p.id, u.id, u.name, u.email, p.city_id,
		       (SELECT MIN(rs.rank_in_round)
		          FROM round_scores rs
		          JOIN round_participations prev ON prev.id = rs.round_participation_id
		          JOIN rounds pr ON pr.id = prev.round_id
		         WHERE prev.participation_id = p.id
		           AND pr.competition_id = ? AND pr.city_id = ? AND pr.round_number < ?) AS best_rank,
		       EXISTS (SELECT 1
		          FROM round_scores rs
		          JOIN round_participations prev ON prev.id = rs.round_participation_id
		          JOIN rounds pr ON pr.id = prev.round_id
		         WHERE prev.participation_id = p.id AND rs.is_winner = ?
		           AND pr.competition_id = ? AND pr.city_id = ? AND pr.round_number < ?) AS was_winner
		FROM participations p
		JOIN users u ON u.id = p.user_id
		WHERE p.competition_id = ?
		  AND NOT EXISTS (SELECT 1 FROM round_participations rp WHERE rp.round_id = ? AND rp.participation_id = p.id)`
	args := []interface{}{
		round.CompetitionID, round.CityID, round.RoundNumber,
		true, round.CompetitionID, round.CityID, round.RoundNumber,
		round.CompetitionID, round.ID,
	}
	if round.RoundNumber == 1 {
		query += " AND p.city_id = ?"
		args = append(args, round.CityID)
	}
	query += " ORDER BY was_winner DESC, best_rank ASC NULLS LAST, p.id ASC"

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	eligible := make([]models.EligibleParticipant, 0)
	for rows.Next() {
		var e models.EligibleParticipant
		if err := rows.Scan(&e.ParticipationID, &e.UserID, &e.UserName, &e.Email, &e.CityID, &e.BestRank, &e.WasWinner); err != nil {
			return nil, err
		}
		eligible = append(eligible, e)
	}
	return eligible, rows.Err()
}

func (r *sqlRoundParticipationRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	result, err := r.getExecutor(exec).ExecContext(ctx, `DELETE FROM round_participations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete round participation %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrRoundParticipationNotFound)
}

func (r *sqlRoundParticipationRepository) DeleteByRound(ctx context.Context, exec SQLExecutor, roundID int) (int64, error) {
	result, err := r.getExecutor(exec).ExecContext(ctx, `DELETE FROM round_participations WHERE round_id = ?`, roundID)
	if err != nil {
		return 0, fmt.Errorf("delete round %d participations: %w", roundID, err)
	}
	return affectedRows(result)
}
