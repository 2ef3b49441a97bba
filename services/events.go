package services

import (
	"context"

	"github.com/Dosada05/city-competitions/repositories"
)

// CityFinishedEvent is raised after a competition city has been marked finished.
type CityFinishedEvent struct {
	CompetitionID  int
	CityID         int
	FinishedCities int
	TotalCities    int
}

// CompletionObserver reacts to branch completion inside the transaction that caused it.
type CompletionObserver interface {
	CityFinished(ctx context.Context, exec repositories.SQLExecutor, event CityFinishedEvent) error
	CityReopened(ctx context.Context, exec repositories.SQLExecutor, competitionID, cityID int) error
}
