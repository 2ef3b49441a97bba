package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/city-competitions/db"
	"github.com/Dosada05/city-competitions/handlers"
	"github.com/Dosada05/city-competitions/models"
	"github.com/Dosada05/city-competitions/repositories"
	"github.com/Dosada05/city-competitions/services"
)

const testSecret = "routes-test-secret"

type apiClient struct {
	t      *testing.T
	router http.Handler
}

func newAPI(t *testing.T) (*apiClient, []*models.User) {
	t.Helper()

	conn, driver, err := db.Connect("sqlite:"+filepath.Join(t.TempDir(), "api.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(context.Background(), conn, driver))

	dialect, err := repositories.DialectFor(driver)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repositories.NewStore(conn, dialect, logger)

	userRepo := repositories.NewUserRepository(store)
	competitionRepo := repositories.NewCompetitionRepository(store)
	cityRepo := repositories.NewCityRepository(store)
	branchRepo := repositories.NewCompetitionCityRepository(store)
	participationRepo := repositories.NewParticipationRepository(store)
	roundRepo := repositories.NewRoundRepository(store)
	rpRepo := repositories.NewRoundParticipationRepository(store)
	scoreRepo := repositories.NewRoundScoreRepository(store)
	resultRepo := repositories.NewResultRepository(store)

	competitionService := services.NewCompetitionService(store, competitionRepo, branchRepo, participationRepo, roundRepo, logger)
	winnerService := services.NewWinnerService(store, branchRepo, roundRepo, rpRepo, scoreRepo, resultRepo, logger)
	winnerService.Subscribe(competitionService)

	router := chi.NewRouter()
	SetupRoutes(router, testSecret, []string{"*"}, Handlers{
		Competition:   handlers.NewCompetitionHandler(competitionService),
		City:          handlers.NewCityHandler(services.NewCityService(store, cityRepo, branchRepo, competitionRepo, participationRepo, roundRepo, logger)),
		Participation: handlers.NewParticipationHandler(services.NewParticipationService(store, userRepo, competitionRepo, branchRepo, participationRepo, roundRepo, rpRepo, logger)),
		Round:         handlers.NewRoundHandler(services.NewRoundService(store, competitionRepo, branchRepo, participationRepo, roundRepo, rpRepo, scoreRepo, logger)),
		Score:         handlers.NewScoreHandler(services.NewScoreService(store, roundRepo, rpRepo, scoreRepo, 10, logger)),
		Winner:        handlers.NewWinnerHandler(winnerService),
		Result:        handlers.NewResultHandler(services.NewResultService(store, participationRepo, resultRepo, logger)),
	})

	users := make([]*models.User, 0, 3)
	for i := 1; i <= 3; i++ {
		miID := fmt.Sprintf("MI-%04d", i)
		u := &models.User{Name: fmt.Sprintf("User %d", i), Email: fmt.Sprintf("user%d@example.com", i), MiID: &miID}
		require.NoError(t, userRepo.Create(context.Background(), nil, u))
		users = append(users, u)
	}

	return &apiClient{t: t, router: router}, users
}

func tokenFor(t *testing.T, userID int) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

// do sends a request and decodes the JSON envelope. An empty token sends no Authorization header.
func (c *apiClient) do(method, path, token string, body interface{}) (int, map[string]json.RawMessage) {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)

	env := map[string]json.RawMessage{}
	if rec.Body.Len() > 0 {
		require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestPublicAndProtectedRoutes(t *testing.T) {
	api, _ := newAPI(t)

	status, env := api.do(http.MethodGet, "/competitions", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, env, "competitions")

	status, _ = api.do(http.MethodPost, "/competitions", "", map[string]string{"name": "City Cup"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = api.do(http.MethodPost, "/cities", "not-a-token", map[string]string{"name": "Kazan"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = api.do(http.MethodGet, "/rounds/999", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, env, "error")

	status, _ = api.do(http.MethodGet, "/rounds/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCompetitionFlowOverHTTP(t *testing.T) {
	api, users := newAPI(t)
	admin := tokenFor(t, users[0].ID)

	status, env := api.do(http.MethodPost, "/competitions", admin, map[string]string{"name": "City Cup"})
	require.Equal(t, http.StatusCreated, status)
	competition := decode[models.Competition](t, env["competition"])
	assert.Equal(t, models.CompetitionDraft, competition.Status)
	base := fmt.Sprintf("/competitions/%d", competition.ID)

	status, _ = api.do(http.MethodPatch, base+"/registration", admin, map[string]bool{"is_open": true})
	require.Equal(t, http.StatusOK, status)
	status, _ = api.do(http.MethodPatch, base+"/status", admin, map[string]string{"status": "ACTIVE"})
	require.Equal(t, http.StatusOK, status)

	status, env = api.do(http.MethodPost, "/cities", admin, map[string]string{"name": "Kazan"})
	require.Equal(t, http.StatusCreated, status)
	city := decode[models.City](t, env["city"])

	status, _ = api.do(http.MethodPost, base+"/cities", admin, map[string]int{"city_id": city.ID})
	require.Equal(t, http.StatusCreated, status)
	branch := fmt.Sprintf("%s/cities/%d", base, city.ID)

	// Регистрация закрыта, пока город не открыт.
	status, _ = api.do(http.MethodPost, branch+"/participants", tokenFor(t, users[1].ID), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = api.do(http.MethodPatch, branch+"/registration", admin, map[string]bool{"is_open": true})
	require.Equal(t, http.StatusOK, status)
	for _, u := range users {
		status, _ = api.do(http.MethodPost, branch+"/participants", tokenFor(t, u.ID), nil)
		require.Equal(t, http.StatusCreated, status)
	}
	status, _ = api.do(http.MethodPost, branch+"/participants", tokenFor(t, users[0].ID), nil)
	assert.Equal(t, http.StatusConflict, status)

	status, env = api.do(http.MethodGet, base+"/participants?city_id="+fmt.Sprint(city.ID), "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.Participation](t, env["participations"]), 3)

	status, env = api.do(http.MethodPost, branch+"/rounds", admin, map[string]interface{}{"round_number": 1, "is_finale": true})
	require.Equal(t, http.StatusCreated, status)
	round := decode[models.Round](t, env["round"])
	assert.Equal(t, 3, decode[int](t, env["enrolled"]))
	roundPath := fmt.Sprintf("/rounds/%d", round.ID)

	status, env = api.do(http.MethodPost, roundPath+"/scores", admin, map[string]interface{}{
		"records": []map[string]interface{}{
			{"identifier": "MI-0001", "score": 10},
			{"identifier": "user2@example.com", "score": 20},
			{"identifier": "ghost", "score": 5},
		},
	})
	require.Equal(t, http.StatusOK, status)
	report := decode[services.UploadReport](t, env["report"])
	assert.Equal(t, 2, report.Success)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, report.Errors, 1)

	status, env = api.do(http.MethodGet, roundPath+"/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, status)
	leaderboard := decode[[]models.RoundEntry](t, env["leaderboard"])
	require.NotEmpty(t, leaderboard)
	top := leaderboard[0]
	assert.Equal(t, users[1].ID, top.UserID)
	require.NotNil(t, top.RankInRound)
	assert.Equal(t, 1, *top.RankInRound)

	status, _ = api.do(http.MethodPost, roundPath+"/winners", admin, map[string]interface{}{
		"winners": []services.WinnerEntry{{RoundParticipationID: top.RoundParticipationID, Position: 0}},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = api.do(http.MethodPost, roundPath+"/winners", admin, map[string]interface{}{
		"winners": []services.WinnerEntry{{RoundParticipationID: top.RoundParticipationID, Position: 1}},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, decode[services.SelectWinnersResult](t, env["selection"]).Winners)

	status, env = api.do(http.MethodPost, branch+"/finish", admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[services.CityStatus](t, env["status"]).IsFinished)

	status, _ = api.do(http.MethodPost, branch+"/finish", admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, env = api.do(http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.CompetitionCompleted, decode[models.Competition](t, env["competition"]).Status)

	status, env = api.do(http.MethodGet, fmt.Sprintf("/results?competition_id=%d&status=winner", competition.ID), "", nil)
	require.Equal(t, http.StatusOK, status)
	results := decode[[]models.Result](t, env["results"])
	require.Len(t, results, 1)
	assert.Equal(t, top.ParticipationID, results[0].ParticipationID)

	lockPath := fmt.Sprintf("/results/%d", top.ParticipationID)
	status, _ = api.do(http.MethodPost, lockPath+"/lock", admin, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = api.do(http.MethodPut, lockPath, admin, map[string]interface{}{"result_status": "FINALIST"})
	assert.Equal(t, http.StatusLocked, status)

	status, _ = api.do(http.MethodPost, roundPath+"/archive", admin, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = api.do(http.MethodDelete, roundPath+"/scores", admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}
