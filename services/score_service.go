package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Dosada05/city-competitions/models"
	"github.com/Dosada05/city-competitions/repositories"
)

const maxReportErrors = 50

type ScoreRecord struct {
	Identifier string   `json:"identifier"`
	Score      *float64 `json:"score"`
	Notes      *string  `json:"notes"`
}

// UploadReport - итог пакетной загрузки очков.
type UploadReport struct {
	Success int      `json:"success"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

func (r *UploadReport) fail(format string, args ...interface{}) {
	r.Failed++
	if len(r.Errors) < maxReportErrors {
		r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	}
}

type ScoreService interface {
	UploadScores(ctx context.Context, roundID int, records []ScoreRecord, operatorID int) (*UploadReport, error)
	ClearScores(ctx context.Context, roundID int) (int, error)
	UpdateScore(ctx context.Context, roundParticipationID int, score *float64, notes *string, operatorID int) (*models.RoundScore, error)
}

type scoreService struct {
	tx         repositories.TxRunner
	roundRepo  repositories.RoundRepository
	rpRepo     repositories.RoundParticipationRepository
	scoreRepo  repositories.RoundScoreRepository
	maxRecords int
	logger     *slog.Logger
}

func NewScoreService(
	tx repositories.TxRunner,
	roundRepo repositories.RoundRepository,
	rpRepo repositories.RoundParticipationRepository,
	scoreRepo repositories.RoundScoreRepository,
	maxRecords int,
	logger *slog.Logger,
) ScoreService {
	return &scoreService{
		tx:         tx,
		roundRepo:  roundRepo,
		rpRepo:     rpRepo,
		scoreRepo:  scoreRepo,
		maxRecords: maxRecords,
		logger:     logger,
	}
}

// UploadScores записывает очки пачкой. Уже выставленные очки не перезаписываются,
// ошибки по отдельным строкам не прерывают загрузку. Места пересчитываются один раз в конце.
func (s *scoreService) UploadScores(ctx context.Context, roundID int, records []ScoreRecord, operatorID int) (*UploadReport, error) {
	if s.maxRecords > 0 && len(records) > s.maxRecords {
		return nil, fmt.Errorf("%w: %d records, limit %d", ErrTooManyRecords, len(records), s.maxRecords)
	}

	var report *UploadReport
	err := s.tx.WithinTx(ctx, roundLockKey(roundID), func(exec repositories.SQLExecutor) error {
		round, err := s.roundRepo.GetByID(ctx, exec, roundID)
		if err != nil {
			return handleRoundRepoError(err)
		}
		if round.IsArchived() {
			return ErrRoundArchived
		}

		rep := &UploadReport{Errors: []string{}}
		for i, rec := range records {
			line := i + 1
			identifier := strings.TrimSpace(rec.Identifier)
			if identifier == "" {
				rep.fail("record %d: identifier is empty", line)
				continue
			}
			if rec.Score == nil {
				rep.fail("record %d (%s): score is missing", line, identifier)
				continue
			}

			rp, err := s.rpRepo.FindByIdentifier(ctx, exec, roundID, identifier)
			if err != nil {
				if errors.Is(err, repositories.ErrRoundParticipationNotFound) {
					rep.fail("record %d (%s): participant not found in round", line, identifier)
					continue
				}
				return err
			}

			inserted, err := s.scoreRepo.InsertIfUnscored(ctx, exec, rp.ID, *rec.Score, trimmedPtr(rec.Notes), operatorRef(operatorID))
			if err != nil {
				return fmt.Errorf("failed to store score for %s: %w", identifier, err)
			}
			if inserted {
				rep.Success++
			} else {
				rep.Skipped++
			}
		}

		if _, err := s.scoreRepo.RecalculateRanks(ctx, exec, roundID); err != nil {
			return err
		}
		if rep.Success > 0 && round.Status == models.RoundPending {
			if err := s.roundRepo.UpdateStatus(ctx, exec, roundID, models.RoundInProgress); err != nil {
				return handleRoundRepoError(err)
			}
		}
		report = rep
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "scores uploaded",
		slog.Int("round_id", roundID), slog.Int("success", report.Success),
		slog.Int("skipped", report.Skipped), slog.Int("failed", report.Failed))
	return report, nil
}

func (s *scoreService) ClearScores(ctx context.Context, roundID int) (int, error) {
	var deleted int64
	err := s.tx.WithinTx(ctx, roundLockKey(roundID), func(exec repositories.SQLExecutor) error {
		round, err := s.roundRepo.GetByID(ctx, exec, roundID)
		if err != nil {
			return handleRoundRepoError(err)
		}
		if round.IsArchived() {
			return ErrRoundArchived
		}
		if deleted, err = s.scoreRepo.DeleteByRound(ctx, exec, roundID); err != nil {
			return err
		}
		_, err = s.scoreRepo.RecalculateRanks(ctx, exec, roundID)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "scores cleared", slog.Int("round_id", roundID), slog.Int64("deleted", deleted))
	return int(deleted), nil
}

func (s *scoreService) UpdateScore(ctx context.Context, roundParticipationID int, score *float64, notes *string, operatorID int) (*models.RoundScore, error) {
	rp, err := s.rpRepo.GetByID(ctx, nil, roundParticipationID)
	if err != nil {
		return nil, handleRoundRepoError(err)
	}

	var updated *models.RoundScore
	err = s.tx.WithinTx(ctx, roundLockKey(rp.RoundID), func(exec repositories.SQLExecutor) error {
		round, err := s.roundRepo.GetByID(ctx, exec, rp.RoundID)
		if err != nil {
			return handleRoundRepoError(err)
		}
		if round.IsArchived() {
			return ErrRoundArchived
		}
		if err := s.scoreRepo.Upsert(ctx, exec, rp.ID, score, trimmedPtr(notes), operatorRef(operatorID)); err != nil {
			return err
		}
		if _, err := s.scoreRepo.RecalculateRanks(ctx, exec, rp.RoundID); err != nil {
			return err
		}
		updated, err = s.scoreRepo.GetByRoundParticipation(ctx, exec, rp.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
