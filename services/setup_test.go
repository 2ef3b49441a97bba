package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Dosada05/city-competitions/db"
	"github.com/Dosada05/city-competitions/models"
	"github.com/Dosada05/city-competitions/repositories"
)

type testEnv struct {
	store *repositories.Store

	users          repositories.UserRepository
	competitions   repositories.CompetitionRepository
	cities         repositories.CityRepository
	branches       repositories.CompetitionCityRepository
	participations repositories.ParticipationRepository
	rounds         repositories.RoundRepository
	members        repositories.RoundParticipationRepository
	scores         repositories.RoundScoreRepository
	results        repositories.ResultRepository

	competitionSvc   CompetitionService
	citySvc          CityService
	participationSvc ParticipationService
	roundSvc         RoundService
	scoreSvc         ScoreService
	winnerSvc        WinnerService
	resultSvc        ResultService

	userSeq int
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, driver, err := db.Connect("sqlite:"+filepath.Join(t.TempDir(), "test.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(context.Background(), conn, driver))

	dialect, err := repositories.DialectFor(driver)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repositories.NewStore(conn, dialect, logger)

	env := &testEnv{
		store:          store,
		users:          repositories.NewUserRepository(store),
		competitions:   repositories.NewCompetitionRepository(store),
		cities:         repositories.NewCityRepository(store),
		branches:       repositories.NewCompetitionCityRepository(store),
		participations: repositories.NewParticipationRepository(store),
		rounds:         repositories.NewRoundRepository(store),
		members:        repositories.NewRoundParticipationRepository(store),
		scores:         repositories.NewRoundScoreRepository(store),
		results:        repositories.NewResultRepository(store),
	}

	env.competitionSvc = NewCompetitionService(store, env.competitions, env.branches, env.participations, env.rounds, logger)
	env.citySvc = NewCityService(store, env.cities, env.branches, env.competitions, env.participations, env.rounds, logger)
	env.participationSvc = NewParticipationService(store, env.users, env.competitions, env.branches, env.participations, env.rounds, env.members, logger)
	env.roundSvc = NewRoundService(store, env.competitions, env.branches, env.participations, env.rounds, env.members, env.scores, logger)
	env.scoreSvc = NewScoreService(store, env.rounds, env.members, env.scores, 100, logger)
	env.winnerSvc = NewWinnerService(store, env.branches, env.rounds, env.members, env.scores, env.results, logger)
	env.resultSvc = NewResultService(store, env.participations, env.results, logger)
	env.winnerSvc.Subscribe(env.competitionSvc)

	return env
}

// activeCompetition creates an ACTIVE competition with open registration.
func (e *testEnv) activeCompetition(t *testing.T) *models.Competition {
	t.Helper()
	ctx := context.Background()

	c, err := e.competitionSvc.CreateCompetition(ctx, CreateCompetitionInput{Name: "City Cup"})
	require.NoError(t, err)
	_, err = e.competitionSvc.ToggleRegistration(ctx, c.ID, true)
	require.NoError(t, err)
	c, err = e.competitionSvc.UpdateStatus(ctx, c.ID, models.CompetitionActive)
	require.NoError(t, err)
	return c
}

// openBranch adds a new city to the competition and opens its registration.
func (e *testEnv) openBranch(t *testing.T, competitionID int, name string) *models.CompetitionCity {
	t.Helper()
	ctx := context.Background()

	city, err := e.citySvc.CreateCity(ctx, name)
	require.NoError(t, err)
	_, err = e.citySvc.AddCityToCompetition(ctx, competitionID, AddCityInput{CityID: city.ID})
	require.NoError(t, err)
	branch, err := e.citySvc.ToggleCityRegistration(ctx, competitionID, city.ID, true)
	require.NoError(t, err)
	return branch
}

func (e *testEnv) newUser(t *testing.T) *models.User {
	t.Helper()
	e.userSeq++
	miID := fmt.Sprintf("MI-%04d", e.userSeq)
	u := &models.User{
		Name:  fmt.Sprintf("User %d", e.userSeq),
		Email: fmt.Sprintf("user%d@example.com", e.userSeq),
		MiID:  &miID,
	}
	require.NoError(t, e.users.Create(context.Background(), nil, u))
	return u
}

// register signs up n new users into the branch and returns their participations in order.
func (e *testEnv) register(t *testing.T, competitionID, cityID, n int) []*models.Participation {
	t.Helper()
	out := make([]*models.Participation, 0, n)
	for i := 0; i < n; i++ {
		u := e.newUser(t)
		p, err := e.participationSvc.Register(context.Background(), u.ID, competitionID, cityID)
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func (e *testEnv) createRound(t *testing.T, competitionID, cityID, number int, finale bool) *models.Round {
	t.Helper()
	res, err := e.roundSvc.CreateRound(context.Background(), CreateRoundInput{
		CompetitionID: competitionID,
		CityID:        cityID,
		RoundNumber:   number,
		IsFinale:      finale,
	})
	require.NoError(t, err)
	require.True(t, res.Created)
	return res.Round
}

// memberID returns the round participation id of participationID in the round.
func (e *testEnv) memberID(t *testing.T, roundID, participationID int) int {
	t.Helper()
	rp, err := e.members.GetByRoundAndParticipation(context.Background(), nil, roundID, participationID)
	require.NoError(t, err)
	return rp.ID
}

func (e *testEnv) setScore(t *testing.T, roundID, participationID int, score float64) {
	t.Helper()
	_, err := e.scoreSvc.UpdateScore(context.Background(), e.memberID(t, roundID, participationID), &score, nil, 1)
	require.NoError(t, err)
}

// roundMembers lists the round's participations in enrollment order.
func (e *testEnv) roundMembers(t *testing.T, roundID int) []models.RoundParticipation {
	t.Helper()
	rows, err := e.store.DB().QueryContext(context.Background(),
		`SELECT id, round_id, participation_id, qualified_by, added_by FROM round_participations WHERE round_id = ? ORDER BY id`, roundID)
	require.NoError(t, err)
	defer rows.Close()

	members := make([]models.RoundParticipation, 0)
	for rows.Next() {
		var rp models.RoundParticipation
		require.NoError(t, rows.Scan(&rp.ID, &rp.RoundID, &rp.ParticipationID, &rp.QualifiedBy, &rp.AddedBy))
		members = append(members, rp)
	}
	require.NoError(t, rows.Err())
	return members
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
