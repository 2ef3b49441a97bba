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
)

type AddCityInput struct {
	CityID    int        `json:"city_id"`
	EventDate *time.Time `json:"event_date"`
}

type CityService interface {
	CreateCity(ctx context.Context, name string) (*models.City, error)
	GetCity(ctx context.Context, id int) (*models.City, error)
	ListCities(ctx context.Context, status *models.CityStatus) ([]models.City, error)
	SetCityStatus(ctx context.Context, id int, status models.CityStatus) (*models.City, error)

	AddCityToCompetition(ctx context.Context, competitionID int, input AddCityInput) (*models.CompetitionCity, error)
	GetCompetitionCity(ctx context.Context, competitionID, cityID int) (*models.CompetitionCity, error)
	ListCompetitionCities(ctx context.Context, competitionID int) ([]models.CompetitionCity, error)
	UpdateCompetitionCity(ctx context.Context, competitionID, cityID int, eventDate *time.Time) (*models.CompetitionCity, error)
	ToggleCityRegistration(ctx context.Context, competitionID, cityID int, isOpen bool) (*models.CompetitionCity, error)
	RemoveCityFromCompetition(ctx context.Context, competitionID, cityID int) error
}

type cityService struct {
	tx                repositories.TxRunner
	cityRepo          repositories.CityRepository
	branchRepo        repositories.CompetitionCityRepository
	competitionRepo   repositories.CompetitionRepository
	participationRepo repositories.ParticipationRepository
	roundRepo         repositories.RoundRepository
	logger            *slog.Logger
}

func NewCityService(
	tx repositories.TxRunner,
	cityRepo repositories.CityRepository,
	branchRepo repositories.CompetitionCityRepository,
	competitionRepo repositories.CompetitionRepository,
	participationRepo repositories.ParticipationRepository,
	roundRepo repositories.RoundRepository,
	logger *slog.Logger,
) CityService {
	return &cityService{
		tx:                tx,
		cityRepo:          cityRepo,
		branchRepo:        branchRepo,
		competitionRepo:   competitionRepo,
		participationRepo: participationRepo,
		roundRepo:         roundRepo,
		logger:            logger,
	}
}

func handleBranchRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrCompetitionCityNotFound):
		return ErrCompetitionCityNotFound
	case errors.Is(err, repositories.ErrCompetitionCityConflict):
		return ErrCompetitionCityConflict
	case errors.Is(err, repositories.ErrCityNotFound):
		return ErrCityNotFound
	case errors.Is(err, repositories.ErrCompetitionNotFound):
		return ErrCompetitionNotFound
	}
	return err
}

func (s *cityService) CreateCity(ctx context.Context, name string) (*models.City, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	city := &models.City{Name: name, Status: models.CityActive}
	if err := s.cityRepo.Create(ctx, nil, city); err != nil {
		if errors.Is(err, repositories.ErrCityNameConflict) {
			return nil, ErrCityNameConflict
		}
		return nil, fmt.Errorf("failed to create city: %w", err)
	}
	return city, nil
}

func (s *cityService) GetCity(ctx context.Context, id int) (*models.City, error) {
	city, err := s.cityRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, handleBranchRepoError(err)
	}
	return city, nil
}

func (s *cityService) ListCities(ctx context.Context, status *models.CityStatus) ([]models.City, error) {
	if status != nil && !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.cityRepo.List(ctx, status)
}

func (s *cityService) SetCityStatus(ctx context.Context, id int, status models.CityStatus) (*models.City, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if err := s.cityRepo.UpdateStatus(ctx, nil, id, status); err != nil {
		return nil, handleBranchRepoError(err)
	}
	return s.GetCity(ctx, id)
}

// AddCityToCompetition создает филиал соревнования в городе. Регистрация в филиале закрыта по умолчанию.
func (s *cityService) AddCityToCompetition(ctx context.Context, competitionID int, input AddCityInput) (*models.CompetitionCity, error) {
	var branch *models.CompetitionCity
	err := s.tx.WithinTx(ctx, branchLockKey(competitionID, input.CityID), func(exec repositories.SQLExecutor) error {
		if _, err := s.competitionRepo.GetByID(ctx, exec, competitionID); err != nil {
			return handleBranchRepoError(err)
		}
		city, err := s.cityRepo.GetByID(ctx, exec, input.CityID)
		if err != nil {
			return handleBranchRepoError(err)
		}
		if city.Status != models.CityActive {
			return ErrCityInactive
		}

		cc := &models.CompetitionCity{
			CompetitionID: competitionID,
			CityID:        input.CityID,
			EventDate:     input.EventDate,
		}
		if err := s.branchRepo.Create(ctx, exec, cc); err != nil {
			return handleBranchRepoError(err)
		}
		cc.City = city
		branch = cc
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "city added to competition",
		slog.Int("competition_id", competitionID), slog.Int("city_id", input.CityID))
	return branch, nil
}

func (s *cityService) GetCompetitionCity(ctx context.Context, competitionID, cityID int) (*models.CompetitionCity, error) {
	cc, err := s.branchRepo.Get(ctx, nil, competitionID, cityID)
	if err != nil {
		return nil, handleBranchRepoError(err)
	}
	return cc, nil
}

func (s *cityService) ListCompetitionCities(ctx context.Context, competitionID int) ([]models.CompetitionCity, error) {
	if _, err := s.competitionRepo.GetByID(ctx, nil, competitionID); err != nil {
		return nil, handleBranchRepoError(err)
	}
	return s.branchRepo.ListByCompetition(ctx, nil, competitionID)
}

func (s *cityService) UpdateCompetitionCity(ctx context.Context, competitionID, cityID int, eventDate *time.Time) (*models.CompetitionCity, error) {
	if err := s.branchRepo.UpdateEventDate(ctx, nil, competitionID, cityID, eventDate); err != nil {
		return nil, handleBranchRepoError(err)
	}
	return s.GetCompetitionCity(ctx, competitionID, cityID)
}

// ToggleCityRegistration follows the same status gate as the competition-level flag.
func (s *cityService) ToggleCityRegistration(ctx context.Context, competitionID, cityID int, isOpen bool) (*models.CompetitionCity, error) {
	var branch *models.CompetitionCity
	err := s.tx.WithinTx(ctx, branchLockKey(competitionID, cityID), func(exec repositories.SQLExecutor) error {
		c, err := s.competitionRepo.GetByID(ctx, exec, competitionID)
		if err != nil {
			return handleBranchRepoError(err)
		}
		if !registrationToggleAllowed(c.Status) {
			return fmt.Errorf("%w (status %s)", ErrRegistrationToggleBlocked, c.Status)
		}
		if err := s.branchRepo.SetRegistrationOpen(ctx, exec, competitionID, cityID, isOpen); err != nil {
			return handleBranchRepoError(err)
		}
		branch, err = s.branchRepo.Get(ctx, exec, competitionID, cityID)
		return handleBranchRepoError(err)
	})
	if err != nil {
		return nil, err
	}
	return branch, nil
}

func (s *cityService) RemoveCityFromCompetition(ctx context.Context, competitionID, cityID int) error {
	return s.tx.WithinTx(ctx, branchLockKey(competitionID, cityID), func(exec repositories.SQLExecutor) error {
		if _, err := s.branchRepo.Get(ctx, exec, competitionID, cityID); err != nil {
			return handleBranchRepoError(err)
		}
		participants, err := s.participationRepo.CountByBranch(ctx, exec, competitionID, cityID)
		if err != nil {
			return err
		}
		rounds, err := s.roundRepo.CountByBranch(ctx, exec, competitionID, cityID)
		if err != nil {
			return err
		}
		if participants > 0 || rounds > 0 {
			return fmt.Errorf("%w (participants: %d, rounds: %d)", ErrBranchHasDependents, participants, rounds)
		}
		if err := s.branchRepo.Delete(ctx, exec, competitionID, cityID); err != nil {
			if errors.Is(err, repositories.ErrCompetitionCityInUse) {
				return ErrBranchHasDependents
			}
			return handleBranchRepoError(err)
		}
		s.logger.InfoContext(ctx, "city removed from competition",
			slog.Int("competition_id", competitionID), slog.Int("city_id", cityID))
		return nil
	})
}
