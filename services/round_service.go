package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dosada05/city-competitions/models"
	"github.com/Dosada05/city-competitions/repositories"
	"golang.org/x/sync/errgroup"
)

type CreateRoundInput struct {
	CompetitionID int        `json:"competition_id"`
	CityID        int        `json:"city_id"`
	RoundNumber   int        `json:"round_number"`
	Name          string     `json:"name"`
	RoundDate     *time.Time `json:"round_date"`
	IsFinale      bool       `json:"is_finale"`
}

type UpdateRoundInput struct {
	Name      *string    `json:"name"`
	RoundDate *time.Time `json:"round_date"`
	IsFinale  *bool      `json:"is_finale"`
}

type CreateRoundResult struct {
	Round    *models.Round `json:"round"`
	Created  bool          `json:"created"`
	Enrolled int           `json:"enrolled"`
}

type PromotionResult struct {
	RoundID     int `json:"round_id"`
	NextRoundID int `json:"next_round_id"`
	Promoted    int `json:"promoted"`
	Inserted    int `json:"inserted"`
}

type RoundDetails struct {
	Round        *models.Round       `json:"round"`
	Participants []models.RoundEntry `json:"participants"`
}

type RoundService interface {
	CreateRound(ctx context.Context, input CreateRoundInput) (*CreateRoundResult, error)
	SyncRoundOne(ctx context.Context, roundID int) (int, error)
	GetRound(ctx context.Context, roundID int) (*models.Round, error)
	UpdateRound(ctx context.Context, roundID int, input UpdateRoundInput) (*models.Round, error)
	DeleteRound(ctx context.Context, roundID int) error
	ArchiveRound(ctx context.Context, roundID int) (*models.Round, error)
	UnarchiveRound(ctx context.Context, roundID int) (*models.Round, error)

	PromoteToNextRound(ctx context.Context, roundID, count, operatorID int) (*PromotionResult, error)
	AddParticipantToRound(ctx context.Context, roundID, participationID, operatorID int) (*models.RoundParticipation, error)
	RemoveParticipantFromRound(ctx context.Context, roundID, participationID int) error
	RecalculateRanks(ctx context.Context, roundID int) (int, error)

	GetRoundDetails(ctx context.Context, roundID int) (*RoundDetails, error)
	Leaderboard(ctx context.Context, roundID int) ([]models.RoundEntry, error)
	ListRounds(ctx context.Context, competitionID, cityID int, includeArchived bool) ([]models.Round, error)
	EligibleParticipants(ctx context.Context, roundID int) ([]models.EligibleParticipant, error)
}

type roundService struct {
	tx                repositories.TxRunner
	competitionRepo   repositories.CompetitionRepository
	branchRepo        repositories.CompetitionCityRepository
	participationRepo repositories.ParticipationRepository
	roundRepo         repositories.RoundRepository
	rpRepo            repositories.RoundParticipationRepository
	scoreRepo         repositories.RoundScoreRepository
	logger            *slog.Logger
}

func NewRoundService(
	tx repositories.TxRunner,
	competitionRepo repositories.CompetitionRepository,
	branchRepo repositories.CompetitionCityRepository,
	participationRepo repositories.ParticipationRepository,
	roundRepo repositories.RoundRepository,
	rpRepo repositories.RoundParticipationRepository,
	scoreRepo repositories.RoundScoreRepository,
	logger *slog.Logger,
) RoundService {
	return &roundService{
		tx:                tx,
		competitionRepo:   competitionRepo,
		branchRepo:        branchRepo,
		participationRepo: participationRepo,
		roundRepo:         roundRepo,
		rpRepo:            rpRepo,
		scoreRepo:         scoreRepo,
		logger:            logger,
	}
}

func handleRoundRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrRoundNotFound):
		return ErrRoundNotFound
	case errors.Is(err, repositories.ErrRoundNumberConflict):
		return ErrRoundNumberConflict
	case errors.Is(err, repositories.ErrRoundFinaleConflict):
		return ErrDuplicateFinale
	case errors.Is(err, repositories.ErrRoundParticipationNotFound):
		return ErrRoundParticipationNotFound
	case errors.Is(err, repositories.ErrParticipationNotFound):
		return ErrParticipationNotFound
	}
	return err
}

// CreateRound создает раунд. Для первого раунда в него сразу записываются все участники города;
// повторное создание первого раунда только дозаписывает недостающих.
func (s *roundService) CreateRound(ctx context.Context, input CreateRoundInput) (*CreateRoundResult, error) {
	if input.RoundNumber < 1 {
		return nil, ErrInvalidRoundNumber
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = fmt.Sprintf("Round %d", input.RoundNumber)
	}

	var result *CreateRoundResult
	err := s.tx.WithinTx(ctx, branchLockKey(input.CompetitionID, input.CityID), func(exec repositories.SQLExecutor) error {
		if _, err := s.competitionRepo.GetByID(ctx, exec, input.CompetitionID); err != nil {
			return handleCompetitionRepoError(err)
		}
		branch, err := s.branchRepo.Get(ctx, exec, input.CompetitionID, input.CityID)
		if err != nil {
			return handleBranchRepoError(err)
		}

		if input.RoundNumber == 1 {
			existing, err := s.roundRepo.GetByNumber(ctx, exec, input.CompetitionID, input.CityID, 1)
			switch {
			case err == nil:
				added, err := s.rpRepo.EnrollBranch(ctx, exec, existing.ID, existing.CompetitionID, existing.CityID)
				if err != nil {
					return err
				}
				result = &CreateRoundResult{Round: existing, Created: false, Enrolled: int(added)}
				return nil
			case !errors.Is(err, repositories.ErrRoundNotFound):
				return err
			}
		}

		if input.IsFinale {
			if _, err := s.roundRepo.FindFinale(ctx, exec, input.CompetitionID, input.CityID); err == nil {
				return ErrDuplicateFinale
			} else if !errors.Is(err, repositories.ErrRoundNotFound) {
				return err
			}
		}

		round := &models.Round{
			CompetitionID: input.CompetitionID,
			CityID:        input.CityID,
			RoundNumber:   input.RoundNumber,
			Name:          name,
			RoundDate:     input.RoundDate,
			IsFinale:      input.IsFinale,
			Status:        models.RoundPending,
		}
		if round.RoundDate == nil {
			round.RoundDate = branch.EventDate
		}
		if err := s.roundRepo.Create(ctx, exec, round); err != nil {
			return handleRoundRepoError(err)
		}

		enrolled := int64(0)
		if round.RoundNumber == 1 {
			if enrolled, err = s.rpRepo.EnrollBranch(ctx, exec, round.ID, round.CompetitionID, round.CityID); err != nil {
				return err
			}
		}
		result = &CreateRoundResult{Round: round, Created: true, Enrolled: int(enrolled)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "round created",
		slog.Int("round_id", result.Round.ID), slog.Int("round_number", result.Round.RoundNumber),
		slog.Bool("created", result.Created), slog.Int("enrolled", result.Enrolled))
	return result, nil
}

// SyncRoundOne re-runs the automatic enrollment of the first round and returns the rows added.
func (s *roundService) SyncRoundOne(ctx context.Context, roundID int) (int, error) {
	round, err := s.GetRound(ctx, roundID)
	if err != nil {
		return 0, err
	}
	if round.RoundNumber != 1 {
		return 0, ErrNotRoundOne
	}

	var added int64
	err = s.tx.WithinTx(ctx, branchLockKey(round.CompetitionID, round.CityID), func(exec repositories.SQLExecutor) error {
		added, err = s.rpRepo.EnrollBranch(ctx, exec, round.ID, round.CompetitionID, round.CityID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(added), nil
}

func (s *roundService) GetRound(ctx context.Context, roundID int) (*models.Round, error) {
	round, err := s.roundRepo.GetByID(ctx, nil, roundID)
	if err != nil {
		return nil, handleRoundRepoError(err)
	}
	return round, nil
}

func (s *roundService) UpdateRound(ctx context.Context, roundID int, input UpdateRoundInput) (*models.Round, error) {
	var updated *models.Round
	err := s.tx.WithinTx(ctx, roundLockKey(roundID), func(exec repositories.SQLExecutor) error {
		round, err := s.roundRepo.GetByID(ctx, exec, roundID)
		if err != nil {
			return handleRoundRepoError(err)
		}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return ErrNameRequired
			}
			round.Name = name
		}
		if input.RoundDate != nil {
			round.RoundDate = input.RoundDate
		}
		if input.IsFinale != nil {
			if *input.IsFinale && !round.IsFinale {
				finale, err := s.roundRepo.FindFinale(ctx, exec, round.CompetitionID, round.CityID)
				if err == nil && finale.ID != round.ID {
					return ErrDuplicateFinale
				}
				if err != nil && !errors.Is(err, repositories.ErrRoundNotFound) {
					return err
				}
			}
			round.IsFinale = *input.IsFinale
		}
		if err := s.roundRepo.Update(ctx, exec, round); err != nil {
			return handleRoundRepoError(err)
		}
		updated = round
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteRound удаляет раунд вместе с результатами и составом. Удалять можно только последний раунд.
func (s *roundService) DeleteRound(ctx context.Context, roundID int) error {
	return s.tx.WithinTx(ctx, roundLockKey(roundID), func(exec repositories.SQLExecutor) error {
		round, err := s.roundRepo.GetByID(ctx, exec, roundID)
		if err != nil {
			return handleRoundRepoError(err)
		}
		hasNext, err := s.roundRepo.HasSubsequent(ctx, exec, round)
		if err != nil {
			return err
		}
		if hasNext {
			return ErrHasSubsequentRounds
		}

		scores, err := s.scoreRepo.DeleteByRound(ctx, exec, roundID)
		if err != nil {
			return err
		}
		members, err := s.rpRepo.DeleteByRound(ctx, exec, roundID)
		if err != nil {
			return err
		}
		if err := s.roundRepo.Delete(ctx, exec, roundID); err != nil {
			return handleRoundRepoError(err)
		}
		s.logger.InfoContext(ctx, "round deleted",
			slog.Int("round_id", roundID), slog.Int64("scores", scores), slog.Int64("participants", members))
		return nil
	})
}

func (s *roundService) ArchiveRound(ctx context.Context, roundID int) (*models.Round, error) {
	return s.setArchived(ctx, roundID, true)
}

func (s *roundService) UnarchiveRound(ctx context.Context, roundID int) (*models.Round, error) {
	return s.setArchived(ctx, roundID, false)
}

func (s *roundService) setArchived(ctx context.Context, roundID int, archive bool) (*models.Round, error) {
	var updated *models.Round
	err := s.tx.WithinTx(ctx, roundLockKey(roundID), func(exec repositories.SQLExecutor) error {
		round, err := s.roundRepo.GetByID(ctx, exec, roundID)
		if err != nil {
			return handleRoundRepoError(err)
		}
		if archive {
			if round.IsArchived() {
				return ErrAlreadyArchived
			}
			err = s.roundRepo.Archive(ctx, exec, roundID)
		} else {
			if !round.IsArchived() {
				return ErrNotArchived
			}
			err = s.roundRepo.Unarchive(ctx, exec, roundID)
		}
		if err != nil {
			return handleRoundRepoError(err)
		}
		updated, err = s.roundRepo.GetByID(ctx, exec, roundID)
		return handleRoundRepoError(err)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// PromoteToNextRound переводит count лучших по очкам в уже созданный следующий раунд.
// Равные очки упорядочиваются по порядку зачисления. Повторный вызов не создает дублей.
func (s *roundService) PromoteToNextRound(ctx context.Context, roundID, count, operatorID int) (*PromotionResult, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}

	var result *PromotionResult
	err := s.tx.WithinTx(ctx, roundLockKey(roundID), func(exec repositories.SQLExecutor) error {
		round, err := s.roundRepo.GetByID(ctx, exec, roundID)
		if err != nil {
			return handleRoundRepoError(err)
		}
		next, err := s.roundRepo.GetByNumber(ctx, exec, round.CompetitionID, round.CityID, round.RoundNumber+1)
		if err != nil {
			if errors.Is(err, repositories.ErrRoundNotFound) {
				return ErrNoNextRound
			}
			return err
		}

		qualifiers, err := s.rpRepo.TopScored(ctx, exec, round.ID, count)
		if err != nil {
			return fmt.Errorf("failed to select qualifiers: %w", err)
		}
		inserted := 0
		for _, q := range qualifiers {
			ok, err := s.rpRepo.InsertIfAbsent(ctx, exec, next.ID, q.ParticipationID, models.QualifiedAutomatic, operatorRef(operatorID))
			if err != nil {
				return err
			}
			if ok {
				inserted++
			}
		}

		if round.Status != models.RoundCompleted {
			if err := s.roundRepo.UpdateStatus(ctx, exec, round.ID, models.RoundCompleted); err != nil {
				return handleRoundRepoError(err)
			}
		}

		result = &PromotionResult{
			RoundID:     round.ID,
			NextRoundID: next.ID,
			Promoted:    len(qualifiers),
			Inserted:    inserted,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "participants promoted",
		slog.Int("round_id", roundID), slog.Int("next_round_id", result.NextRoundID),
		slog.Int("requested", count), slog.Int("promoted", result.Promoted), slog.Int("inserted", result.Inserted))
	return result, nil
}

func (s *roundService) AddParticipantToRound(ctx context.Context, roundID, participationID, operatorID int) (*models.RoundParticipation, error) {
	var rp *models.RoundParticipation
	err := s.tx.WithinTx(ctx, roundLockKey(roundID), func(exec repositories.SQLExecutor) error {
		round, err := s.roundRepo.GetByID(ctx, exec, roundID)
		if err != nil {
			return handleRoundRepoError(err)
		}
		participation, err := s.participationRepo.GetByID(ctx, exec, participationID)
		if err != nil {
			return handleRoundRepoError(err)
		}
		if participation.CompetitionID != round.CompetitionID {
			return ErrParticipationElsewhere
		}

		rp = &models.RoundParticipation{
			RoundID:         roundID,
			ParticipationID: participationID,
			QualifiedBy:     models.QualifiedManual,
			AddedBy:         operatorRef(operatorID),
		}
		if err := s.rpRepo.Insert(ctx, exec, rp); err != nil {
			if errors.Is(err, repositories.ErrRoundParticipationConflict) {
				return ErrAlreadyInRound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rp, nil
}

func (s *roundService) RemoveParticipantFromRound(ctx context.Context, roundID, participationID int) error {
	return s.tx.WithinTx(ctx, roundLockKey(roundID), func(exec repositories.SQLExecutor) error {
		if _, err := s.roundRepo.GetByID(ctx, exec, roundID); err != nil {
			return handleRoundRepoError(err)
		}
		rp, err := s.rpRepo.GetByRoundAndParticipation(ctx, exec, roundID, participationID)
		if err != nil {
			if errors.Is(err, repositories.ErrRoundParticipationNotFound) {
				return ErrNotInRound
			}
			return err
		}
		if err := s.scoreRepo.DeleteByRoundParticipation(ctx, exec, rp.ID); err != nil {
			return err
		}
		if err := s.rpRepo.Delete(ctx, exec, rp.ID); err != nil {
			return handleRoundRepoError(err)
		}
		_, err = s.scoreRepo.RecalculateRanks(ctx, exec, roundID)
		return err
	})
}

func (s *roundService) RecalculateRanks(ctx context.Context, roundID int) (int, error) {
	var ranked int
	err := s.tx.WithinTx(ctx, roundLockKey(roundID), func(exec repositories.SQLExecutor) error {
		if _, err := s.roundRepo.GetByID(ctx, exec, roundID); err != nil {
			return handleRoundRepoError(err)
		}
		var err error
		ranked, err = s.scoreRepo.RecalculateRanks(ctx, exec, roundID)
		return err
	})
	return ranked, err
}

func (s *roundService) GetRoundDetails(ctx context.Context, roundID int) (*RoundDetails, error) {
	details := &RoundDetails{}
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		round, err := s.roundRepo.GetByID(gCtx, nil, roundID)
		if err != nil {
			return handleRoundRepoError(err)
		}
		details.Round = round
		return nil
	})
	g.Go(func() error {
		entries, err := s.rpRepo.ListEntries(gCtx, nil, roundID, false)
		if err != nil {
			return fmt.Errorf("failed to load round %d participants: %w", roundID, err)
		}
		details.Participants = entries
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return details, nil
}

func (s *roundService) Leaderboard(ctx context.Context, roundID int) ([]models.RoundEntry, error) {
	if _, err := s.GetRound(ctx, roundID); err != nil {
		return nil, err
	}
	return s.rpRepo.ListEntries(ctx, nil, roundID, true)
}

func (s *roundService) ListRounds(ctx context.Context, competitionID, cityID int, includeArchived bool) ([]models.Round, error) {
	if _, err := s.branchRepo.Get(ctx, nil, competitionID, cityID); err != nil {
		return nil, handleBranchRepoError(err)
	}
	return s.roundRepo.ListByBranch(ctx, nil, competitionID, cityID, includeArchived)
}

func (s *roundService) EligibleParticipants(ctx context.Context, roundID int) ([]models.EligibleParticipant, error) {
	round, err := s.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return s.rpRepo.ListEligible(ctx, nil, round)
}
