package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/city-competitions/models"
	"github.com/Dosada05/city-competitions/repositories"
	"golang.org/x/sync/errgroup"
)

type WinnerEntry struct {
	RoundParticipationID int `json:"round_participation_id"`
	Position             int `json:"position"`
}

type SelectWinnersResult struct {
	RoundID int `json:"round_id"`
	Winners int `json:"winners"`
	Results int `json:"results"`
}

type CityStatus struct {
	CompetitionID      int            `json:"competition_id"`
	CityID             int            `json:"city_id"`
	Rounds             []models.Round `json:"rounds"`
	HasFinale          bool           `json:"has_finale"`
	FinaleCompleted    bool           `json:"finale_completed"`
	AllRoundsCompleted bool           `json:"all_rounds_completed"`
	IsFinished         bool           `json:"is_finished"`
	CanMarkFinished    bool           `json:"can_mark_finished"`
}

type WinnerService interface {
	// Subscribe регистрирует наблюдателя завершения городов. Вызывается до начала обработки запросов.
	Subscribe(observer CompletionObserver)

	SelectWinners(ctx context.Context, roundID int, winners []WinnerEntry, operatorID int) (*SelectWinnersResult, error)
	MarkCompetitionCityFinished(ctx context.Context, competitionID, cityID int) (*CityStatus, error)
	ReopenCompetitionCity(ctx context.Context, competitionID, cityID int) (*CityStatus, error)
	CompetitionCityStatus(ctx context.Context, competitionID, cityID int) (*CityStatus, error)
}

type winnerService struct {
	tx         repositories.TxRunner
	branchRepo repositories.CompetitionCityRepository
	roundRepo  repositories.RoundRepository
	rpRepo     repositories.RoundParticipationRepository
	scoreRepo  repositories.RoundScoreRepository
	resultRepo repositories.ResultRepository
	logger     *slog.Logger

	mu        sync.RWMutex
	observers []CompletionObserver
}

func NewWinnerService(
	tx repositories.TxRunner,
	branchRepo repositories.CompetitionCityRepository,
	roundRepo repositories.RoundRepository,
	rpRepo repositories.RoundParticipationRepository,
	scoreRepo repositories.RoundScoreRepository,
	resultRepo repositories.ResultRepository,
	logger *slog.Logger,
) WinnerService {
	return &winnerService{
		tx:         tx,
		branchRepo: branchRepo,
		roundRepo:  roundRepo,
		rpRepo:     rpRepo,
		scoreRepo:  scoreRepo,
		resultRepo: resultRepo,
		logger:     logger,
	}
}

func (s *winnerService) Subscribe(observer CompletionObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

func (s *winnerService) subscribers() []CompletionObserver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]CompletionObserver(nil), s.observers...)
}

func validateWinners(winners []WinnerEntry) error {
	seen := make(map[int]struct{}, len(winners))
	for _, w := range winners {
		if w.Position < 1 {
			return ErrInvalidPosition
		}
		if _, ok := seen[w.RoundParticipationID]; ok {
			return fmt.Errorf("%w: round participation %d", ErrDuplicateWinner, w.RoundParticipationID)
		}
		seen[w.RoundParticipationID] = struct{}{}
	}
	return nil
}

// SelectWinners сбрасывает прежних победителей финала и выставляет новых,
// закрывает регистрацию в городе и пересобирает результаты города.
func (s *winnerService) SelectWinners(ctx context.Context, roundID int, winners []WinnerEntry, operatorID int) (*SelectWinnersResult, error) {
	if err := validateWinners(winners); err != nil {
		return nil, err
	}

	// Результаты города пишутся только под ключом города.
	target, err := s.roundRepo.GetByID(ctx, nil, roundID)
	if err != nil {
		return nil, handleRoundRepoError(err)
	}
	lockKeys := []string{branchLockKey(target.CompetitionID, target.CityID), roundLockKey(roundID)}

	var result *SelectWinnersResult
	err = s.tx.WithinTxLocks(ctx, lockKeys, func(exec repositories.SQLExecutor) error {
		round, err := s.roundRepo.GetByID(ctx, exec, roundID)
		if err != nil {
			return handleRoundRepoError(err)
		}
		if !round.IsFinale {
			return ErrNotFinale
		}
		if round.IsArchived() {
			return ErrRoundArchived
		}

		for _, w := range winners {
			rp, err := s.rpRepo.GetByID(ctx, exec, w.RoundParticipationID)
			if err != nil {
				if errors.Is(err, repositories.ErrRoundParticipationNotFound) {
					return fmt.Errorf("%w: round participation %d", ErrNotInRound, w.RoundParticipationID)
				}
				return err
			}
			if rp.RoundID != round.ID {
				return fmt.Errorf("%w: round participation %d", ErrNotInRound, w.RoundParticipationID)
			}
		}

		if err := s.scoreRepo.ResetWinners(ctx, exec, round.ID); err != nil {
			return err
		}
		for _, w := range winners {
			if err := s.scoreRepo.SetWinner(ctx, exec, w.RoundParticipationID, w.Position, operatorRef(operatorID)); err != nil {
				return err
			}
		}

		if round.Status != models.RoundCompleted {
			if err := s.roundRepo.UpdateStatus(ctx, exec, round.ID, models.RoundCompleted); err != nil {
				return handleRoundRepoError(err)
			}
		}
		if err := s.branchRepo.SetRegistrationOpen(ctx, exec, round.CompetitionID, round.CityID, false); err != nil {
			return handleBranchRepoError(err)
		}

		finaleWinners, err := s.scoreRepo.ListWinners(ctx, exec, round.ID)
		if err != nil {
			return err
		}
		written, err := s.replaceResults(ctx, exec, round.CompetitionID, round.CityID, finaleWinners)
		if err != nil {
			return err
		}

		result = &SelectWinnersResult{RoundID: round.ID, Winners: len(finaleWinners), Results: written}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "finale winners selected",
		slog.Int("round_id", roundID), slog.Int("winners", result.Winners), slog.Int("results", result.Results))
	return result, nil
}

// replaceResults rewrites the result rows of a branch from its finale winners.
// Locked rows are replaced as well.
func (s *winnerService) replaceResults(ctx context.Context, exec repositories.SQLExecutor, competitionID, cityID int, winners []repositories.FinaleWinner) (int, error) {
	locked, err := s.resultRepo.CountLockedByBranch(ctx, exec, competitionID, cityID)
	if err != nil {
		return 0, err
	}
	if locked > 0 {
		s.logger.WarnContext(ctx, "replacing locked results",
			slog.Int("competition_id", competitionID), slog.Int("city_id", cityID), slog.Int("locked", locked))
	}

	if _, err := s.resultRepo.DeleteByBranch(ctx, exec, competitionID, cityID); err != nil {
		return 0, err
	}
	ids := make([]int, 0, len(winners))
	for _, w := range winners {
		ids = append(ids, w.ParticipationID)
	}
	if _, err := s.resultRepo.DeleteByParticipations(ctx, exec, ids); err != nil {
		return 0, err
	}

	for _, w := range winners {
		position := w.Position
		res := &models.Result{
			ParticipationID: w.ParticipationID,
			CompetitionID:   competitionID,
			CityID:          cityID,
			Status:          models.ResultFinalist,
			Position:        &position,
		}
		if w.Position == 1 {
			res.Status = models.ResultWinner
		}
		if err := s.resultRepo.Insert(ctx, exec, res); err != nil {
			return 0, fmt.Errorf("failed to write result for participation %d: %w", w.ParticipationID, err)
		}
	}
	return len(winners), nil
}

// MarkCompetitionCityFinished закрывает город: все активные раунды должны быть завершены, финал решен.
// Когда завершен последний город, наблюдатели переводят соревнование в COMPLETED.
func (s *winnerService) MarkCompetitionCityFinished(ctx context.Context, competitionID, cityID int) (*CityStatus, error) {
	err := s.tx.WithinTx(ctx, branchLockKey(competitionID, cityID), func(exec repositories.SQLExecutor) error {
		branch, err := s.branchRepo.Get(ctx, exec, competitionID, cityID)
		if err != nil {
			return handleBranchRepoError(err)
		}
		if branch.IsFinished() {
			return ErrAlreadyFinished
		}

		rounds, err := s.roundRepo.ListByBranch(ctx, exec, competitionID, cityID, false)
		if err != nil {
			return err
		}
		var finale *models.Round
		for i := range rounds {
			if rounds[i].Status != models.RoundCompleted {
				return fmt.Errorf("%w: round %d is %s", ErrIncompleteRounds, rounds[i].RoundNumber, rounds[i].Status)
			}
			if rounds[i].IsFinale {
				finale = &rounds[i]
			}
		}
		if finale == nil {
			return ErrFinaleNotCompleted
		}

		if err := s.branchRepo.SetRegistrationOpen(ctx, exec, competitionID, cityID, false); err != nil {
			return handleBranchRepoError(err)
		}
		finishedAt := time.Now().UTC()
		if err := s.branchRepo.SetFinishedAt(ctx, exec, competitionID, cityID, &finishedAt); err != nil {
			return handleBranchRepoError(err)
		}

		winners, err := s.scoreRepo.ListWinners(ctx, exec, finale.ID)
		if err != nil {
			return err
		}
		if _, err := s.replaceResults(ctx, exec, competitionID, cityID, winners); err != nil {
			return err
		}

		finished, err := s.roundRepo.CountCitiesWithCompletedFinale(ctx, exec, competitionID)
		if err != nil {
			return err
		}
		total, err := s.branchRepo.CountByCompetition(ctx, exec, competitionID)
		if err != nil {
			return err
		}

		event := CityFinishedEvent{
			CompetitionID:  competitionID,
			CityID:         cityID,
			FinishedCities: finished,
			TotalCities:    total,
		}
		for _, o := range s.subscribers() {
			if err := o.CityFinished(ctx, exec, event); err != nil {
				return err
			}
		}

		s.logger.InfoContext(ctx, "competition city finished",
			slog.Int("competition_id", competitionID), slog.Int("city_id", cityID),
			slog.Int("finished_cities", finished), slog.Int("total_cities", total))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.CompetitionCityStatus(ctx, competitionID, cityID)
}

// ReopenCompetitionCity is the undo path for MarkCompetitionCityFinished.
func (s *winnerService) ReopenCompetitionCity(ctx context.Context, competitionID, cityID int) (*CityStatus, error) {
	err := s.tx.WithinTx(ctx, branchLockKey(competitionID, cityID), func(exec repositories.SQLExecutor) error {
		if _, err := s.branchRepo.Get(ctx, exec, competitionID, cityID); err != nil {
			return handleBranchRepoError(err)
		}
		if err := s.branchRepo.SetRegistrationOpen(ctx, exec, competitionID, cityID, true); err != nil {
			return handleBranchRepoError(err)
		}
		if err := s.branchRepo.SetFinishedAt(ctx, exec, competitionID, cityID, nil); err != nil {
			return handleBranchRepoError(err)
		}
		removed, err := s.resultRepo.DeleteByBranch(ctx, exec, competitionID, cityID)
		if err != nil {
			return err
		}
		for _, o := range s.subscribers() {
			if err := o.CityReopened(ctx, exec, competitionID, cityID); err != nil {
				return err
			}
		}

		s.logger.InfoContext(ctx, "competition city reopened",
			slog.Int("competition_id", competitionID), slog.Int("city_id", cityID), slog.Int64("results_removed", removed))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.CompetitionCityStatus(ctx, competitionID, cityID)
}

func (s *winnerService) CompetitionCityStatus(ctx context.Context, competitionID, cityID int) (*CityStatus, error) {
	var (
		branch *models.CompetitionCity
		rounds []models.Round
	)
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		branch, err = s.branchRepo.Get(gCtx, nil, competitionID, cityID)
		return handleBranchRepoError(err)
	})
	g.Go(func() error {
		var err error
		rounds, err = s.roundRepo.ListByBranch(gCtx, nil, competitionID, cityID, true)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summarizeCity(branch, rounds), nil
}

func summarizeCity(branch *models.CompetitionCity, rounds []models.Round) *CityStatus {
	status := &CityStatus{
		CompetitionID: branch.CompetitionID,
		CityID:        branch.CityID,
		Rounds:        rounds,
		IsFinished:    branch.IsFinished(),
	}
	if status.Rounds == nil {
		status.Rounds = []models.Round{}
	}

	active := 0
	completed := 0
	for _, r := range rounds {
		if r.IsArchived() {
			continue
		}
		active++
		if r.Status == models.RoundCompleted {
			completed++
		}
		if r.IsFinale {
			status.HasFinale = true
			status.FinaleCompleted = r.Status == models.RoundCompleted
		}
	}
	status.AllRoundsCompleted = active > 0 && completed == active
	status.CanMarkFinished = status.HasFinale && status.FinaleCompleted && status.AllRoundsCompleted && !status.IsFinished
	return status
}
