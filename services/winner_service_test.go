package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/city-competitions/models"
	"github.com/Dosada05/city-competitions/repositories"
)

func TestValidateWinners(t *testing.T) {
	tests := []struct {
		name    string
		winners []WinnerEntry
		wantErr error
	}{
		{"empty", nil, nil},
		{"ok", []WinnerEntry{{1, 1}, {2, 2}, {3, 2}}, nil},
		{"zero position", []WinnerEntry{{1, 0}}, ErrInvalidPosition},
		{"duplicate participant", []WinnerEntry{{1, 1}, {1, 2}}, ErrDuplicateWinner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateWinners(tt.winners)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrValidationFailed)
		})
	}
}

type finaleFixture struct {
	competition *models.Competition
	branch      *models.CompetitionCity
	parts       []*models.Participation
	finale      *models.Round
}

// setupFinale builds a branch with a single finale round and n scored members.
func setupFinale(t *testing.T, env *testEnv, c *models.Competition, city string, n int) *finaleFixture {
	t.Helper()
	branch := env.openBranch(t, c.ID, city)
	parts := env.register(t, c.ID, branch.CityID, n)
	finale := env.createRound(t, c.ID, branch.CityID, 1, true)
	for i, p := range parts {
		env.setScore(t, finale.ID, p.ID, float64(100-i))
	}
	return &finaleFixture{competition: c, branch: branch, parts: parts, finale: finale}
}

func (f *finaleFixture) entry(t *testing.T, env *testEnv, idx, position int) WinnerEntry {
	return WinnerEntry{RoundParticipationID: env.memberID(t, f.finale.ID, f.parts[idx].ID), Position: position}
}

func TestWinnerService_SelectWinnersResetThenSet(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	c := env.activeCompetition(t)
	f := setupFinale(t, env, c, "Kazan", 4)

	res, err := env.winnerSvc.SelectWinners(ctx, f.finale.ID, []WinnerEntry{f.entry(t, env, 0, 1), f.entry(t, env, 1, 2)}, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Winners)
	assert.Equal(t, 2, res.Results)

	res, err = env.winnerSvc.SelectWinners(ctx, f.finale.ID, []WinnerEntry{f.entry(t, env, 2, 1), f.entry(t, env, 3, 2)}, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Winners)

	board, err := env.roundSvc.Leaderboard(ctx, f.finale.ID)
	require.NoError(t, err)
	winners := map[int]int{}
	for _, e := range board {
		if e.IsWinner {
			require.NotNil(t, e.WinnerPosition)
			winners[e.ParticipationID] = *e.WinnerPosition
		} else {
			assert.Nil(t, e.WinnerPosition)
		}
	}
	assert.Equal(t, map[int]int{f.parts[2].ID: 1, f.parts[3].ID: 2}, winners)

	round, err := env.roundSvc.GetRound(ctx, f.finale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundCompleted, round.Status)

	branch, err := env.citySvc.GetCompetitionCity(ctx, c.ID, f.branch.CityID)
	require.NoError(t, err)
	assert.False(t, branch.RegistrationOpen)

	results, err := env.resultSvc.ListResults(ctx, ListResultsFilter{CompetitionID: &c.ID, CityID: &f.branch.CityID})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, f.parts[2].ID, results[0].ParticipationID)
	assert.Equal(t, models.ResultWinner, results[0].Status)
	assert.Equal(t, f.parts[3].ID, results[1].ParticipationID)
	assert.Equal(t, models.ResultFinalist, results[1].Status)
}

func TestWinnerService_SelectWinnersErrors(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	c := env.activeCompetition(t)
	branch := env.openBranch(t, c.ID, "Kazan")
	ps := env.register(t, c.ID, branch.CityID, 2)
	first := env.createRound(t, c.ID, branch.CityID, 1, false)
	finale := env.createRound(t, c.ID, branch.CityID, 2, true)

	_, err := env.winnerSvc.SelectWinners(ctx, first.ID, nil, 1)
	assert.ErrorIs(t, err, ErrNotFinale)

	foreign := env.memberID(t, first.ID, ps[0].ID)
	_, err = env.winnerSvc.SelectWinners(ctx, finale.ID, []WinnerEntry{{RoundParticipationID: foreign, Position: 1}}, 1)
	assert.ErrorIs(t, err, ErrNotInRound)

	_, err = env.winnerSvc.SelectWinners(ctx, finale.ID, []WinnerEntry{{RoundParticipationID: 999, Position: 1}}, 1)
	assert.ErrorIs(t, err, ErrNotInRound)

	_, err = env.winnerSvc.SelectWinners(ctx, 999, nil, 1)
	assert.ErrorIs(t, err, ErrRoundNotFound)

	stored, err := env.roundSvc.GetRound(ctx, finale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundPending, stored.Status, "failed selection leaves no trace")
}

func TestWinnerService_SelectWinnersReplacesLockedResults(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	c := env.activeCompetition(t)
	f := setupFinale(t, env, c, "Kazan", 3)

	_, err := env.winnerSvc.SelectWinners(ctx, f.finale.ID, []WinnerEntry{f.entry(t, env, 0, 1)}, 1)
	require.NoError(t, err)
	_, err = env.resultSvc.LockResult(ctx, f.parts[0].ID)
	require.NoError(t, err)

	_, err = env.winnerSvc.SelectWinners(ctx, f.finale.ID, []WinnerEntry{f.entry(t, env, 1, 1)}, 1)
	require.NoError(t, err)

	results, err := env.resultSvc.ListResults(ctx, ListResultsFilter{CompetitionID: &c.ID})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, f.parts[1].ID, results[0].ParticipationID)
	assert.False(t, results[0].Locked)
}

func TestWinnerService_MarkFinishedCompletesCompetition(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	c := env.activeCompetition(t)
	kazan := setupFinale(t, env, c, "Kazan", 2)
	samara := setupFinale(t, env, c, "Samara", 2)

	_, err := env.winnerSvc.MarkCompetitionCityFinished(ctx, c.ID, kazan.branch.CityID)
	assert.ErrorIs(t, err, ErrIncompleteRounds)

	status, err := env.winnerSvc.CompetitionCityStatus(ctx, c.ID, kazan.branch.CityID)
	require.NoError(t, err)
	assert.True(t, status.HasFinale)
	assert.False(t, status.FinaleCompleted)
	assert.False(t, status.CanMarkFinished)

	_, err = env.winnerSvc.SelectWinners(ctx, kazan.finale.ID, []WinnerEntry{kazan.entry(t, env, 0, 1)}, 1)
	require.NoError(t, err)

	status, err = env.winnerSvc.MarkCompetitionCityFinished(ctx, c.ID, kazan.branch.CityID)
	require.NoError(t, err)
	assert.True(t, status.IsFinished)
	assert.False(t, status.CanMarkFinished)

	stored, err := env.competitionSvc.GetCompetition(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompetitionActive, stored.Status, "one city still open")

	_, err = env.winnerSvc.MarkCompetitionCityFinished(ctx, c.ID, kazan.branch.CityID)
	assert.ErrorIs(t, err, ErrAlreadyFinished)

	_, err = env.winnerSvc.SelectWinners(ctx, samara.finale.ID, []WinnerEntry{samara.entry(t, env, 1, 1), samara.entry(t, env, 0, 2)}, 1)
	require.NoError(t, err)

	status, err = env.winnerSvc.CompetitionCityStatus(ctx, c.ID, samara.branch.CityID)
	require.NoError(t, err)
	assert.True(t, status.CanMarkFinished)

	_, err = env.winnerSvc.MarkCompetitionCityFinished(ctx, c.ID, samara.branch.CityID)
	require.NoError(t, err)

	stored, err = env.competitionSvc.GetCompetition(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompetitionCompleted, stored.Status)

	results, err := env.resultSvc.ListResults(ctx, ListResultsFilter{CompetitionID: &c.ID})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestWinnerService_CompletionCountsOnlyFinishedCities(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	c := env.activeCompetition(t)
	kazan := setupFinale(t, env, c, "Kazan", 2)
	samara := setupFinale(t, env, c, "Samara", 2)
	for _, f := range []*finaleFixture{kazan, samara} {
		_, err := env.winnerSvc.SelectWinners(ctx, f.finale.ID, []WinnerEntry{f.entry(t, env, 0, 1)}, 1)
		require.NoError(t, err)
	}

	competitionStatus := func() models.CompetitionStatus {
		t.Helper()
		stored, err := env.competitionSvc.GetCompetition(ctx, c.ID)
		require.NoError(t, err)
		return stored.Status
	}

	_, err := env.winnerSvc.MarkCompetitionCityFinished(ctx, c.ID, kazan.branch.CityID)
	require.NoError(t, err)
	assert.Equal(t, models.CompetitionActive, competitionStatus(), "decided but unfinished city must not count")

	status, err := env.winnerSvc.CompetitionCityStatus(ctx, c.ID, samara.branch.CityID)
	require.NoError(t, err)
	assert.False(t, status.IsFinished)
	assert.True(t, status.CanMarkFinished)

	_, err = env.winnerSvc.MarkCompetitionCityFinished(ctx, c.ID, samara.branch.CityID)
	require.NoError(t, err)
	assert.Equal(t, models.CompetitionCompleted, competitionStatus())

	_, err = env.winnerSvc.ReopenCompetitionCity(ctx, c.ID, samara.branch.CityID)
	require.NoError(t, err)
	_, err = env.winnerSvc.ReopenCompetitionCity(ctx, c.ID, kazan.branch.CityID)
	require.NoError(t, err)
	assert.Equal(t, models.CompetitionActive, competitionStatus())

	_, err = env.winnerSvc.MarkCompetitionCityFinished(ctx, c.ID, kazan.branch.CityID)
	require.NoError(t, err)
	assert.Equal(t, models.CompetitionActive, competitionStatus(), "reopened city must not count")

	results, err := env.resultSvc.ListResults(ctx, ListResultsFilter{CompetitionID: &c.ID, CityID: &samara.branch.CityID})
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = env.winnerSvc.MarkCompetitionCityFinished(ctx, c.ID, samara.branch.CityID)
	require.NoError(t, err)
	assert.Equal(t, models.CompetitionCompleted, competitionStatus())
}

// lockRecorder records the lock keys each transaction asks for.
type lockRecorder struct {
	repositories.TxRunner
	calls [][]string
}

func (l *lockRecorder) WithinTx(ctx context.Context, lockKey string, fn func(exec repositories.SQLExecutor) error) error {
	l.calls = append(l.calls, []string{lockKey})
	return l.TxRunner.WithinTx(ctx, lockKey, fn)
}

func (l *lockRecorder) WithinTxLocks(ctx context.Context, lockKeys []string, fn func(exec repositories.SQLExecutor) error) error {
	l.calls = append(l.calls, lockKeys)
	return l.TxRunner.WithinTxLocks(ctx, lockKeys, fn)
}

func TestWinnerService_BranchResultWritersShareLock(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	c := env.activeCompetition(t)
	f := setupFinale(t, env, c, "Kazan", 2)

	recorder := &lockRecorder{TxRunner: env.store}
	svc := NewWinnerService(recorder, env.branches, env.rounds, env.members, env.scores, env.results, slog.New(slog.NewTextHandler(io.Discard, nil)))
	branchKey := branchLockKey(c.ID, f.branch.CityID)

	_, err := svc.SelectWinners(ctx, f.finale.ID, []WinnerEntry{f.entry(t, env, 0, 1)}, 1)
	require.NoError(t, err)
	require.Len(t, recorder.calls, 1)
	assert.Contains(t, recorder.calls[0], branchKey)
	assert.Contains(t, recorder.calls[0], roundLockKey(f.finale.ID))

	_, err = svc.MarkCompetitionCityFinished(ctx, c.ID, f.branch.CityID)
	require.NoError(t, err)
	require.Len(t, recorder.calls, 2)
	assert.Contains(t, recorder.calls[1], branchKey)
}

func TestWinnerService_MarkFinishedWithoutFinale(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	c := env.activeCompetition(t)
	branch := env.openBranch(t, c.ID, "Kazan")
	env.register(t, c.ID, branch.CityID, 3)
	first := env.createRound(t, c.ID, branch.CityID, 1, false)
	env.createRound(t, c.ID, branch.CityID, 2, false)

	_, err := env.winnerSvc.MarkCompetitionCityFinished(ctx, c.ID, branch.CityID)
	assert.ErrorIs(t, err, ErrIncompleteRounds)

	// Round 2 stays pending after promotion, archive it out of the way.
	_, err = env.roundSvc.PromoteToNextRound(ctx, first.ID, 1, 1)
	require.NoError(t, err)
	rounds, err := env.roundSvc.ListRounds(ctx, c.ID, branch.CityID, false)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	_, err = env.roundSvc.ArchiveRound(ctx, rounds[1].ID)
	require.NoError(t, err)

	_, err = env.winnerSvc.MarkCompetitionCityFinished(ctx, c.ID, branch.CityID)
	assert.ErrorIs(t, err, ErrFinaleNotCompleted)
}

func TestWinnerService_ReopenCompetitionCity(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	c := env.activeCompetition(t)
	f := setupFinale(t, env, c, "Kazan", 2)

	_, err := env.winnerSvc.SelectWinners(ctx, f.finale.ID, []WinnerEntry{f.entry(t, env, 0, 1)}, 1)
	require.NoError(t, err)
	_, err = env.winnerSvc.MarkCompetitionCityFinished(ctx, c.ID, f.branch.CityID)
	require.NoError(t, err)

	stored, err := env.competitionSvc.GetCompetition(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.CompetitionCompleted, stored.Status)

	status, err := env.winnerSvc.ReopenCompetitionCity(ctx, c.ID, f.branch.CityID)
	require.NoError(t, err)
	assert.False(t, status.IsFinished)
	assert.True(t, status.CanMarkFinished)

	stored, err = env.competitionSvc.GetCompetition(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompetitionActive, stored.Status)

	branch, err := env.citySvc.GetCompetitionCity(ctx, c.ID, f.branch.CityID)
	require.NoError(t, err)
	assert.True(t, branch.RegistrationOpen)
	assert.Nil(t, branch.FinishedAt)

	results, err := env.resultSvc.ListResults(ctx, ListResultsFilter{CompetitionID: &c.ID, CityID: &f.branch.CityID})
	require.NoError(t, err)
	assert.Empty(t, results)
}

type recordingObserver struct {
	finished []CityFinishedEvent
	reopened int
}

func (o *recordingObserver) CityFinished(_ context.Context, _ repositories.SQLExecutor, event CityFinishedEvent) error {
	o.finished = append(o.finished, event)
	return nil
}

func (o *recordingObserver) CityReopened(context.Context, repositories.SQLExecutor, int, int) error {
	o.reopened++
	return nil
}

func TestWinnerService_NotifiesObservers(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	observer := &recordingObserver{}
	env.winnerSvc.Subscribe(observer)

	c := env.activeCompetition(t)
	f := setupFinale(t, env, c, "Kazan", 1)
	env.openBranch(t, c.ID, "Samara")

	_, err := env.winnerSvc.SelectWinners(ctx, f.finale.ID, []WinnerEntry{f.entry(t, env, 0, 1)}, 1)
	require.NoError(t, err)
	_, err = env.winnerSvc.MarkCompetitionCityFinished(ctx, c.ID, f.branch.CityID)
	require.NoError(t, err)

	require.Len(t, observer.finished, 1)
	assert.Equal(t, CityFinishedEvent{
		CompetitionID:  c.ID,
		CityID:         f.branch.CityID,
		FinishedCities: 1,
		TotalCities:    2,
	}, observer.finished[0])

	_, err = env.winnerSvc.ReopenCompetitionCity(ctx, c.ID, f.branch.CityID)
	require.NoError(t, err)
	assert.Equal(t, 1, observer.reopened)
}
