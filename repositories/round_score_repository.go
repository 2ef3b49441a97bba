package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/city-competitions/models"
)

var ErrRoundScoreNotFound = errors.New("round score not found")

// FinaleWinner is a winner flag set on a finale round score.
type FinaleWinner struct {
	RoundParticipationID int
	ParticipationID      int
	Position             int
}

type RoundScoreRepository interface {
	InsertIfUnscored(ctx context.Context, exec SQLExecutor, roundParticipationID int, score float64, notes *string, updatedBy *int) (bool, error)
	Upsert(ctx context.Context, exec SQLExecutor, roundParticipationID int, score *float64, notes *string, updatedBy *int) error
	GetByRoundParticipation(ctx context.Context, exec SQLExecutor, roundParticipationID int) (*models.RoundScore, error)
	DeleteByRound(ctx context.Context, exec SQLExecutor, roundID int) (int64, error)
	DeleteByRoundParticipation(ctx context.Context, exec SQLExecutor, roundParticipationID int) error
	RecalculateRanks(ctx context.Context, exec SQLExecutor, roundID int) (int, error)
	ResetWinners(ctx context.Context, exec SQLExecutor, roundID int) error
	SetWinner(ctx context.Context, exec SQLExecutor, roundParticipationID, position int, updatedBy *int) error
	ListWinners(ctx context.Context, exec SQLExecutor, roundID int) ([]FinaleWinner, error)
}

type sqlRoundScoreRepository struct {
	store *Store
}

func NewRoundScoreRepository(store *Store) RoundScoreRepository {
	return &sqlRoundScoreRepository{store: store}
}

func (r *sqlRoundScoreRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	return r.store.executor(exec)
}

// InsertIfUnscored writes the score only when the member has none yet.
// A row without a score (created by winner selection) is filled in.
func (r *sqlRoundScoreRepository) InsertIfUnscored(ctx context.Context, exec SQLExecutor, roundParticipationID int, score float64, notes *string, updatedBy *int) (bool, error) {
	query := `
		INSERT INTO round_scores (round_participation_id, score, notes, updated_by, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (round_participation_id) DO UPDATE SET
			score = excluded.score,
			notes = excluded.notes,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
		WHERE round_scores.score IS NULL`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, roundParticipationID, score, notes, updatedBy, now())
	if err != nil {
		return false, fmt.Errorf("insert round score: %w", err)
	}
	n, err := affectedRows(result)
	return n > 0, err
}

func (r *sqlRoundScoreRepository) Upsert(ctx context.Context, exec SQLExecutor, roundParticipationID int, score *float64, notes *string, updatedBy *int) error {
	query := `
		INSERT INTO round_scores (round_participation_id, score, notes, updated_by, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (round_participation_id) DO UPDATE SET
			score = excluded.score,
			notes = excluded.notes,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at`

	if _, err := r.getExecutor(exec).ExecContext(ctx, query, roundParticipationID, score, notes, updatedBy, now()); err != nil {
		return fmt.Errorf("upsert round score: %w", err)
	}
	return nil
}

func (r *sqlRoundScoreRepository) GetByRoundParticipation(ctx context.Context, exec SQLExecutor, roundParticipationID int) (*models.RoundScore, error) {
	query := `
		SELECT id, round_participation_id, score, notes, rank_in_round, is_winner, winner_position, updated_by, updated_at
		FROM round_scores
		WHERE round_participation_id = ?`

	s := &models.RoundScore{}
	err := r.getExecutor(exec).QueryRowContext(ctx, query, roundParticipationID).Scan(
		&s.ID, &s.RoundParticipationID, &s.Score, &s.Notes, &s.RankInRound, &s.IsWinner, &s.WinnerPosition, &s.UpdatedBy, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundScoreNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *sqlRoundScoreRepository) DeleteByRound(ctx context.Context, exec SQLExecutor, roundID int) (int64, error) {
	result, err := r.getExecutor(exec).ExecContext(ctx, `
		DELETE FROM round_scores
		WHERE round_participation_id IN (SELECT id FROM round_participations WHERE round_id = ?)`, roundID)
	if err != nil {
		return 0, fmt.Errorf("delete round %d scores: %w", roundID, err)
	}
	return affectedRows(result)
}

func (r *sqlRoundScoreRepository) DeleteByRoundParticipation(ctx context.Context, exec SQLExecutor, roundParticipationID int) error {
	if _, err := r.getExecutor(exec).ExecContext(ctx,
		`DELETE FROM round_scores WHERE round_participation_id = ?`, roundParticipationID); err != nil {
		return fmt.Errorf("delete round score: %w", err)
	}
	return nil
}

// RecalculateRanks assigns ranks 1..N over the non-null scores of the round,
// ordered by score descending and then by enrollment. Equal scores still get
// distinct ranks. Rows without a score lose their rank. Returns N.
func (r *sqlRoundScoreRepository) RecalculateRanks(ctx context.Context, exec SQLExecutor, roundID int) (int, error) {
	executor := r.getExecutor(exec)

	rows, err := executor.QueryContext(ctx, `
		SELECT rs.id
		FROM round_scores rs
		JOIN round_participations rp ON rp.id = rs.round_participation_id
		WHERE rp.round_id = ? AND rs.score IS NOT NULL
		ORDER BY rs.score DESC, rp.id ASC`, roundID)
	if err != nil {
		return 0, fmt.Errorf("load round %d scores: %w", roundID, err)
	}
	ids := make([]int, 0)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for i, id := range ids {
		if _, err := executor.ExecContext(ctx, `UPDATE round_scores SET rank_in_round = ? WHERE id = ?`, i+1, id); err != nil {
			return 0, fmt.Errorf("update rank: %w", err)
		}
	}

	if _, err := executor.ExecContext(ctx, `
		UPDATE round_scores SET rank_in_round = NULL
		WHERE score IS NULL
		  AND round_participation_id IN (SELECT id FROM round_participations WHERE round_id = ?)`, roundID); err != nil {
		return 0, fmt.Errorf("clear unscored ranks: %w", err)
	}
	return len(ids), nil
}

func (r *sqlRoundScoreRepository) ResetWinners(ctx context.Context, exec SQLExecutor, roundID int) error {
	if _, err := r.getExecutor(exec).ExecContext(ctx, `
		UPDATE round_scores SET is_winner = ?, winner_position = NULL
		WHERE round_participation_id IN (SELECT id FROM round_participations WHERE round_id = ?)`,
		false, roundID); err != nil {
		return fmt.Errorf("reset round %d winners: %w", roundID, err)
	}
	return nil
}

func (r *sqlRoundScoreRepository) SetWinner(ctx context.Context, exec SQLExecutor, roundParticipationID, position int, updatedBy *int) error {
	query := `
		INSERT INTO round_scores (round_participation_id, is_winner, winner_position, updated_by, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (round_participation_id) DO UPDATE SET
			is_winner = excluded.is_winner,
			winner_position = excluded.winner_position,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at`

	if _, err := r.getExecutor(exec).ExecContext(ctx, query, roundParticipationID, true, position, updatedBy, now()); err != nil {
		return fmt.Errorf("set winner: %w", err)
	}
	return nil
}

func (r *sqlRoundScoreRepository) ListWinners(ctx context.Context, exec SQLExecutor, roundID int) ([]FinaleWinner, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, `
		SELECT rp.id, rp.participation_id, rs.winner_position
		FROM round_scores rs
		JOIN round_participations rp ON rp.id = rs.round_participation_id
		WHERE rp.round_id = ? AND rs.is_winner = ?
		ORDER BY rs.winner_position ASC, rp.id ASC`, roundID, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	winners := make([]FinaleWinner, 0)
	for rows.Next() {
		var w FinaleWinner
		if err := rows.Scan(&w.RoundParticipationID, &w.ParticipationID, &w.Position); err != nil {
			return nil, err
		}
		winners = append(winners, w)
	}
	return winners, rows.Err()
}
