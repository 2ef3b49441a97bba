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

type CreateCompetitionInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type UpdateCompetitionInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type ListCompetitionsFilter struct {
	Status *models.CompetitionStatus
	Limit  int
	Offset int
}

type CompetitionService interface {
	CompletionObserver

	CreateCompetition(ctx context.Context, input CreateCompetitionInput) (*models.Competition, error)
	GetCompetition(ctx context.Context, id int) (*models.Competition, error)
	ListCompetitions(ctx context.Context, filter ListCompetitionsFilter) ([]models.Competition, error)
	UpdateCompetition(ctx context.Context, id int, input UpdateCompetitionInput) (*models.Competition, error)
	UpdateStatus(ctx context.Context, id int, status models.CompetitionStatus) (*models.Competition, error)
	ToggleRegistration(ctx context.Context, id int, isOpen bool) (*models.Competition, error)
	DeleteCompetition(ctx context.Context, id int) error
}

type competitionService struct {
	tx                repositories.TxRunner
	competitionRepo   repositories.CompetitionRepository
	branchRepo        repositories.CompetitionCityRepository
	participationRepo repositories.ParticipationRepository
	roundRepo         repositories.RoundRepository
	logger            *slog.Logger
}

func NewCompetitionService(
	tx repositories.TxRunner,
	competitionRepo repositories.CompetitionRepository,
	branchRepo repositories.CompetitionCityRepository,
	participationRepo repositories.ParticipationRepository,
	roundRepo repositories.RoundRepository,
	logger *slog.Logger,
) CompetitionService {
	return &competitionService{
		tx:                tx,
		competitionRepo:   competitionRepo,
		branchRepo:        branchRepo,
		participationRepo: participationRepo,
		roundRepo:         roundRepo,
		logger:            logger,
	}
}

func handleCompetitionRepoError(err error) error {
	if errors.Is(err, repositories.ErrCompetitionNotFound) {
		return ErrCompetitionNotFound
	}
	return err
}

func (s *competitionService) CreateCompetition(ctx context.Context, input CreateCompetitionInput) (*models.Competition, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	c := &models.Competition{
		Name:             name,
		Description:      trimmedPtr(input.Description),
		RegistrationOpen: false,
		Status:           models.CompetitionDraft,
	}
	if err := s.competitionRepo.Create(ctx, nil, c); err != nil {
		return nil, fmt.Errorf("failed to create competition: %w", err)
	}

	s.logger.InfoContext(ctx, "competition created", slog.Int("competition_id", c.ID))
	return c, nil
}

func (s *competitionService) GetCompetition(ctx context.Context, id int) (*models.Competition, error) {
	c, err := s.competitionRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, handleCompetitionRepoError(err)
	}
	return c, nil
}

func (s *competitionService) ListCompetitions(ctx context.Context, filter ListCompetitionsFilter) ([]models.Competition, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.competitionRepo.List(ctx, repositories.ListCompetitionsFilter{
		Status: filter.Status,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

func (s *competitionService) UpdateCompetition(ctx context.Context, id int, input UpdateCompetitionInput) (*models.Competition, error) {
	var updated *models.Competition
	err := s.tx.WithinTx(ctx, competitionLockKey(id), func(exec repositories.SQLExecutor) error {
		c, err := s.competitionRepo.GetByID(ctx, exec, id)
		if err != nil {
			return handleCompetitionRepoError(err)
		}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return ErrNameRequired
			}
			c.Name = name
		}
		if input.Description != nil {
			c.Description = trimmedPtr(input.Description)
		}
		if err := s.competitionRepo.Update(ctx, exec, c); err != nil {
			return handleCompetitionRepoError(err)
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateStatus двигает соревнование по графу статусов. Флаг регистрации не меняется.
func (s *competitionService) UpdateStatus(ctx context.Context, id int, status models.CompetitionStatus) (*models.Competition, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	var updated *models.Competition
	err := s.tx.WithinTx(ctx, competitionLockKey(id), func(exec repositories.SQLExecutor) error {
		c, err := s.competitionRepo.GetByID(ctx, exec, id)
		if err != nil {
			return handleCompetitionRepoError(err)
		}
		if !isValidStatusTransition(c.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, c.Status, status)
		}
		if err := s.competitionRepo.UpdateStatus(ctx, exec, id, status); err != nil {
			return handleCompetitionRepoError(err)
		}
		s.logger.InfoContext(ctx, "competition status changed",
			slog.Int("competition_id", id), slog.String("from", string(c.Status)), slog.String("to", string(status)))
		c.Status = status
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *competitionService) ToggleRegistration(ctx context.Context, id int, isOpen bool) (*models.Competition, error) {
	var updated *models.Competition
	err := s.tx.WithinTx(ctx, competitionLockKey(id), func(exec repositories.SQLExecutor) error {
		c, err := s.competitionRepo.GetByID(ctx, exec, id)
		if err != nil {
			return handleCompetitionRepoError(err)
		}
		if !registrationToggleAllowed(c.Status) {
			return fmt.Errorf("%w (status %s)", ErrRegistrationToggleBlocked, c.Status)
		}
		if err := s.competitionRepo.SetRegistrationOpen(ctx, exec, id, isOpen); err != nil {
			return handleCompetitionRepoError(err)
		}
		c.RegistrationOpen = isOpen
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteCompetition удаляет соревнование вместе с городами и раундами, если нет участников.
func (s *competitionService) DeleteCompetition(ctx context.Context, id int) error {
	return s.tx.WithinTx(ctx, competitionLockKey(id), func(exec repositories.SQLExecutor) error {
		if _, err := s.competitionRepo.GetByID(ctx, exec, id); err != nil {
			return handleCompetitionRepoError(err)
		}
		n, err := s.participationRepo.CountByCompetition(ctx, exec, id)
		if err != nil {
			return fmt.Errorf("failed to count participations: %w", err)
		}
		if n > 0 {
			return ErrHasParticipants
		}
		if err := s.roundRepo.DeleteByCompetition(ctx, exec, id); err != nil {
			return err
		}
		if err := s.branchRepo.DeleteByCompetition(ctx, exec, id); err != nil {
			return err
		}
		if err := s.competitionRepo.Delete(ctx, exec, id); err != nil {
			if errors.Is(err, repositories.ErrCompetitionInUse) {
				return ErrHasParticipants
			}
			return handleCompetitionRepoError(err)
		}
		s.logger.InfoContext(ctx, "competition deleted", slog.Int("competition_id", id))
		return nil
	})
}

// CityFinished completes an ACTIVE competition once every city has decided its finale.
func (s *competitionService) CityFinished(ctx context.Context, exec repositories.SQLExecutor, event CityFinishedEvent) error {
	if event.TotalCities == 0 || event.FinishedCities < event.TotalCities {
		return nil
	}

	c, err := s.competitionRepo.GetByID(ctx, exec, event.CompetitionID)
	if err != nil {
		return handleCompetitionRepoError(err)
	}
	switch c.Status {
	case models.CompetitionCompleted:
		return nil
	case models.CompetitionActive:
		if err := s.competitionRepo.UpdateStatus(ctx, exec, c.ID, models.CompetitionCompleted); err != nil {
			return handleCompetitionRepoError(err)
		}
		s.logger.InfoContext(ctx, "competition auto-completed",
			slog.Int("competition_id", c.ID), slog.Int("cities", event.TotalCities))
	default:
		s.logger.WarnContext(ctx, "all cities finished but competition is not active",
			slog.Int("competition_id", c.ID), slog.String("status", string(c.Status)))
	}
	return nil
}

// CityReopened is the only path from COMPLETED back to ACTIVE.
func (s *competitionService) CityReopened(ctx context.Context, exec repositories.SQLExecutor, competitionID, cityID int) error {
	c, err := s.competitionRepo.GetByID(ctx, exec, competitionID)
	if err != nil {
		return handleCompetitionRepoError(err)
	}
	if c.Status != models.CompetitionCompleted {
		return nil
	}
	if err := s.competitionRepo.UpdateStatus(ctx, exec, competitionID, models.CompetitionActive); err != nil {
		return handleCompetitionRepoError(err)
	}
	s.logger.InfoContext(ctx, "competition reverted to active after city reopen",
		slog.Int("competition_id", competitionID), slog.Int("city_id", cityID))
	return nil
}
