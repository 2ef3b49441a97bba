package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/city-competitions/models"
	"github.com/Dosada05/city-competitions/repositories"
)

type ParticipationService interface {
	// Register - самостоятельная регистрация: открыты должны быть и соревнование, и город.
	Register(ctx context.Context, userID, competitionID, cityID int) (*models.Participation, error)
	// AdminAdd добавляет участника в обход флагов регистрации.
	AdminAdd(ctx context.Context, userID, competitionID, cityID int) (*models.Participation, error)
	ListParticipations(ctx context.Context, competitionID int, cityID *int) ([]models.Participation, error)
}

type participationService struct {
	tx                repositories.TxRunner
	userRepo          repositories.UserRepository
	competitionRepo   repositories.CompetitionRepository
	branchRepo        repositories.CompetitionCityRepository
	participationRepo repositories.ParticipationRepository
	roundRepo         repositories.RoundRepository
	rpRepo            repositories.RoundParticipationRepository
	logger            *slog.Logger
}

func NewParticipationService(
	tx repositories.TxRunner,
	userRepo repositories.UserRepository,
	competitionRepo repositories.CompetitionRepository,
	branchRepo repositories.CompetitionCityRepository,
	participationRepo repositories.ParticipationRepository,
	roundRepo repositories.RoundRepository,
	rpRepo repositories.RoundParticipationRepository,
	logger *slog.Logger,
) ParticipationService {
	return &participationService{
		tx:                tx,
		userRepo:          userRepo,
		competitionRepo:   competitionRepo,
		branchRepo:        branchRepo,
		participationRepo: participationRepo,
		roundRepo:         roundRepo,
		rpRepo:            rpRepo,
		logger:            logger,
	}
}

func (s *participationService) Register(ctx context.Context, userID, competitionID, cityID int) (*models.Participation, error) {
	return s.enroll(ctx, userID, competitionID, cityID, models.SourceUserSelf)
}

func (s *participationService) AdminAdd(ctx context.Context, userID, competitionID, cityID int) (*models.Participation, error) {
	return s.enroll(ctx, userID, competitionID, cityID, models.SourceAdminAdded)
}

func (s *participationService) enroll(ctx context.Context, userID, competitionID, cityID int, source models.ParticipationSource) (*models.Participation, error) {
	var created *models.Participation
	err := s.tx.WithinTx(ctx, branchLockKey(competitionID, cityID), func(exec repositories.SQLExecutor) error {
		if _, err := s.userRepo.GetByID(ctx, exec, userID); err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		competition, err := s.competitionRepo.GetByID(ctx, exec, competitionID)
		if err != nil {
			return handleCompetitionRepoError(err)
		}
		branch, err := s.branchRepo.Get(ctx, exec, competitionID, cityID)
		if err != nil {
			return handleBranchRepoError(err)
		}
		if source == models.SourceUserSelf && !(competition.RegistrationOpen && branch.RegistrationOpen) {
			return ErrRegistrationClosed
		}

		p := &models.Participation{
			UserID:        userID,
			CompetitionID: competitionID,
			CityID:        cityID,
			Source:        source,
		}
		if err := s.participationRepo.Create(ctx, exec, p); err != nil {
			if errors.Is(err, repositories.ErrParticipationConflict) {
				return ErrAlreadyRegistered
			}
			return fmt.Errorf("failed to create participation: %w", err)
		}

		// После создания первого раунда новые участники попадают в него сразу.
		roundOne, err := s.roundRepo.GetByNumber(ctx, exec, competitionID, cityID, 1)
		switch {
		case errors.Is(err, repositories.ErrRoundNotFound):
		case err != nil:
			return err
		default:
			if _, err := s.rpRepo.InsertIfAbsent(ctx, exec, roundOne.ID, p.ID, models.QualifiedAutomatic, nil); err != nil {
				return fmt.Errorf("failed to enroll into round 1: %w", err)
			}
		}

		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "participation created",
		slog.Int("participation_id", created.ID), slog.Int("user_id", userID),
		slog.Int("competition_id", competitionID), slog.Int("city_id", cityID), slog.String("source", string(source)))
	return created, nil
}

func (s *participationService) ListParticipations(ctx context.Context, competitionID int, cityID *int) ([]models.Participation, error) {
	if _, err := s.competitionRepo.GetByID(ctx, nil, competitionID); err != nil {
		return nil, handleCompetitionRepoError(err)
	}
	return s.participationRepo.List(ctx, competitionID, cityID)
}
