package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/city-competitions/models"
	"github.com/Dosada05/city-competitions/repositories"
)

type AssignResultInput struct {
	ParticipationID int                 `json:"participation_id"`
	Status          models.ResultStatus `json:"result_status"`
	Position        *int                `json:"position"`
}

type ListResultsFilter struct {
	CompetitionID *int
	CityID        *int
	Status        *models.ResultStatus
}

type assignOutcome int

const (
	assignWritten assignOutcome = iota
	assignUnchanged
)

// ResultService is the certificate gate: results can be assigned by hand
// and locked so that later manual edits are rejected.
type ResultService interface {
	AssignResult(ctx context.Context, input AssignResultInput) (*models.Result, error)
	BulkAssignResults(ctx context.Context, items []AssignResultInput) (*UploadReport, error)
	LockResult(ctx context.Context, participationID int) (*models.Result, error)
	UnlockResult(ctx context.Context, participationID int) (*models.Result, error)
	ListResults(ctx context.Context, filter ListResultsFilter) ([]models.Result, error)
}

type resultService struct {
	tx                repositories.TxRunner
	participationRepo repositories.ParticipationRepository
	resultRepo        repositories.ResultRepository
	logger            *slog.Logger
}

func NewResultService(
	tx repositories.TxRunner,
	participationRepo repositories.ParticipationRepository,
	resultRepo repositories.ResultRepository,
	logger *slog.Logger,
) ResultService {
	return &resultService{
		tx:                tx,
		participationRepo: participationRepo,
		resultRepo:        resultRepo,
		logger:            logger,
	}
}

func handleResultRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrResultNotFound):
		return ErrResultNotFound
	case errors.Is(err, repositories.ErrParticipationNotFound):
		return ErrParticipationNotFound
	}
	return err
}

func validateAssignment(input AssignResultInput) error {
	if !input.Status.Valid() {
		return ErrInvalidResultStatus
	}
	if input.Position != nil && *input.Position < 1 {
		return ErrInvalidResultPosition
	}
	return nil
}

func sameResult(existing *models.Result, input AssignResultInput) bool {
	if existing.Status != input.Status {
		return false
	}
	if existing.Position == nil || input.Position == nil {
		return existing.Position == nil && input.Position == nil
	}
	return *existing.Position == *input.Position
}

func (s *resultService) assign(ctx context.Context, exec repositories.SQLExecutor, input AssignResultInput) (*models.Result, assignOutcome, error) {
	participation, err := s.participationRepo.GetByID(ctx, exec, input.ParticipationID)
	if err != nil {
		return nil, 0, handleResultRepoError(err)
	}

	existing, err := s.resultRepo.GetByParticipation(ctx, exec, input.ParticipationID)
	switch {
	case err == nil:
		if existing.Locked {
			return nil, 0, ErrResultLocked
		}
		if sameResult(existing, input) {
			return existing, assignUnchanged, nil
		}
	case !errors.Is(err, repositories.ErrResultNotFound):
		return nil, 0, err
	}

	res := &models.Result{
		ParticipationID: participation.ID,
		CompetitionID:   participation.CompetitionID,
		CityID:          participation.CityID,
		Status:          input.Status,
		Position:        input.Position,
	}
	if err := s.resultRepo.Upsert(ctx, exec, res); err != nil {
		return nil, 0, err
	}
	return res, assignWritten, nil
}

func (s *resultService) AssignResult(ctx context.Context, input AssignResultInput) (*models.Result, error) {
	if err := validateAssignment(input); err != nil {
		return nil, err
	}

	var res *models.Result
	err := s.tx.WithinTx(ctx, resultLockKey(input.ParticipationID), func(exec repositories.SQLExecutor) error {
		var err error
		res, _, err = s.assign(ctx, exec, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// BulkAssignResults применяет каждую запись в отдельной транзакции и собирает отчет.
// Ошибки хранилища прерывают обработку.
func (s *resultService) BulkAssignResults(ctx context.Context, items []AssignResultInput) (*UploadReport, error) {
	report := &UploadReport{Errors: []string{}}

	for i, item := range items {
		line := i + 1
		if err := validateAssignment(item); err != nil {
			report.fail("item %d (participation %d): %v", line, item.ParticipationID, err)
			continue
		}

		var outcome assignOutcome
		err := s.tx.WithinTx(ctx, resultLockKey(item.ParticipationID), func(exec repositories.SQLExecutor) error {
			var err error
			_, outcome, err = s.assign(ctx, exec, item)
			return err
		})
		switch {
		case err == nil && outcome == assignUnchanged:
			report.Skipped++
		case err == nil:
			report.Success++
		case errors.Is(err, ErrResultLocked), errors.Is(err, ErrNotFound):
			report.fail("item %d (participation %d): %v", line, item.ParticipationID, err)
		default:
			return nil, fmt.Errorf("failed to assign result for participation %d: %w", item.ParticipationID, err)
		}
	}

	s.logger.InfoContext(ctx, "results assigned",
		slog.Int("success", report.Success), slog.Int("skipped", report.Skipped), slog.Int("failed", report.Failed))
	return report, nil
}

func (s *resultService) LockResult(ctx context.Context, participationID int) (*models.Result, error) {
	return s.setLocked(ctx, participationID, true)
}

func (s *resultService) UnlockResult(ctx context.Context, participationID int) (*models.Result, error) {
	return s.setLocked(ctx, participationID, false)
}

func (s *resultService) setLocked(ctx context.Context, participationID int, locked bool) (*models.Result, error) {
	var res *models.Result
	err := s.tx.WithinTx(ctx, resultLockKey(participationID), func(exec repositories.SQLExecutor) error {
		if err := s.resultRepo.SetLocked(ctx, exec, participationID, locked); err != nil {
			return handleResultRepoError(err)
		}
		var err error
		res, err = s.resultRepo.GetByParticipation(ctx, exec, participationID)
		return handleResultRepoError(err)
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "result lock changed",
		slog.Int("participation_id", participationID), slog.Bool("locked", locked))
	return res, nil
}

func (s *resultService) ListResults(ctx context.Context, filter ListResultsFilter) ([]models.Result, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, ErrInvalidResultStatus
	}
	return s.resultRepo.List(ctx, nil, repositories.ListResultsFilter{
		CompetitionID: filter.CompetitionID,
		CityID:        filter.CityID,
		Status:        filter.Status,
	})
}
