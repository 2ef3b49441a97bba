package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/city-competitions/models"
)

func TestScoreService_UploadScores(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	c := env.activeCompetition(t)
	branch := env.openBranch(t, c.ID, "Kazan")
	ps := env.register(t, c.ID, branch.CityID, 3)
	round := env.createRound(t, c.ID, branch.CityID, 1, false)

	u0, err := env.users.GetByID(ctx, nil, ps[0].UserID)
	require.NoError(t, err)
	u1, err := env.users.GetByID(ctx, nil, ps[1].UserID)
	require.NoError(t, err)

	report, err := env.scoreSvc.UploadScores(ctx, round.ID, []ScoreRecord{
		{Identifier: *u0.MiID, Score: floatPtr(55)},
		{Identifier: "  USER2@EXAMPLE.COM ", Score: floatPtr(75)},
		{Identifier: "nobody@example.com", Score: floatPtr(10)},
		{Identifier: "", Score: floatPtr(10)},
		{Identifier: *u1.MiID},
	}, 9)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Success)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 3, report.Failed)
	assert.Len(t, report.Errors, 3)
	assert.Equal(t, "user2@example.com", u1.Email)

	stored, err := env.roundSvc.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundInProgress, stored.Status)

	board, err := env.roundSvc.Leaderboard(ctx, round.ID)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, ps[1].ID, board[0].ParticipationID)
	require.NotNil(t, board[0].RankInRound)
	assert.Equal(t, 1, *board[0].RankInRound)
	require.NotNil(t, board[1].RankInRound)
	assert.Equal(t, 2, *board[1].RankInRound)
}

func TestScoreService_UploadNeverOverwrites(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	c := env.activeCompetition(t)
	branch := env.openBranch(t, c.ID, "Kazan")
	ps := env.register(t, c.ID, branch.CityID, 1)
	round := env.createRound(t, c.ID, branch.CityID, 1, false)
	env.setScore(t, round.ID, ps[0].ID, 42)

	u, err := env.users.GetByID(ctx, nil, ps[0].UserID)
	require.NoError(t, err)

	report, err := env.scoreSvc.UploadScores(ctx, round.ID, []ScoreRecord{
		{Identifier: u.Email, Score: floatPtr(99)},
	}, 9)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Success)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)

	score, err := env.scores.GetByRoundParticipation(ctx, nil, env.memberID(t, round.ID, ps[0].ID))
	require.NoError(t, err)
	require.NotNil(t, score.Score)
	assert.Equal(t, 42.0, *score.Score)
}

func TestScoreService_UploadLimits(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	c := env.activeCompetition(t)
	branch := env.openBranch(t, c.ID, "Kazan")
	round := env.createRound(t, c.ID, branch.CityID, 1, false)

	records := make([]ScoreRecord, 101)
	for i := range records {
		records[i] = ScoreRecord{Identifier: "x", Score: floatPtr(1)}
	}
	_, err := env.scoreSvc.UploadScores(ctx, round.ID, records, 1)
	assert.ErrorIs(t, err, ErrTooManyRecords)

	report, err := env.scoreSvc.UploadScores(ctx, round.ID, records[:100], 1)
	require.NoError(t, err)
	assert.Equal(t, 100, report.Failed)
	assert.Len(t, report.Errors, maxReportErrors)

	_, err = env.scoreSvc.UploadScores(ctx, 999, nil, 1)
	assert.ErrorIs(t, err, ErrRoundNotFound)

	_, err = env.roundSvc.ArchiveRound(ctx, round.ID)
	require.NoError(t, err)
	_, err = env.scoreSvc.UploadScores(ctx, round.ID, records[:1], 1)
	assert.ErrorIs(t, err, ErrRoundArchived)
}

func TestScoreService_UpdateAndClearScores(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	c := env.activeCompetition(t)
	branch := env.openBranch(t, c.ID, "Kazan")
	ps := env.register(t, c.ID, branch.CityID, 2)
	round := env.createRound(t, c.ID, branch.CityID, 1, false)

	rpID := env.memberID(t, round.ID, ps[0].ID)
	notes := "late start"
	score, err := env.scoreSvc.UpdateScore(ctx, rpID, floatPtr(10), &notes, 4)
	require.NoError(t, err)
	require.NotNil(t, score.Score)
	assert.Equal(t, 10.0, *score.Score)

	score, err = env.scoreSvc.UpdateScore(ctx, rpID, floatPtr(30), nil, 4)
	require.NoError(t, err)
	assert.Equal(t, 30.0, *score.Score, "update always overwrites")
	require.NotNil(t, score.RankInRound)
	assert.Equal(t, 1, *score.RankInRound)
	require.NotNil(t, score.UpdatedBy)
	assert.Equal(t, 4, *score.UpdatedBy)

	env.setScore(t, round.ID, ps[1].ID, 20)

	_, err = env.scoreSvc.UpdateScore(ctx, 999, floatPtr(1), nil, 4)
	assert.ErrorIs(t, err, ErrRoundParticipationNotFound)

	deleted, err := env.scoreSvc.ClearScores(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	members := env.roundMembers(t, round.ID)
	assert.Len(t, members, 2, "clearing scores keeps round members")
}
