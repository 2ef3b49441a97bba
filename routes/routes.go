package routes

import (
	"github.com/Dosada05/city-competitions/handlers"
	"github.com/Dosada05/city-competitions/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handlers struct {
	Competition   *handlers.CompetitionHandler
	City          *handlers.CityHandler
	Participation *handlers.ParticipationHandler
	Round         *handlers.RoundHandler
	Score         *handlers.ScoreHandler
	Winner        *handlers.WinnerHandler
	Result        *handlers.ResultHandler
}

// SetupRoutes регистрирует все маршруты API. GET-запросы публичные, изменения требуют JWT.
func SetupRoutes(router chi.Router, jwtSecret string, allowedOrigins []string, h Handlers) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(jwtSecret)

	router.Route("/competitions", func(r chi.Router) {
		r.Get("/", h.Competition.ListCompetitions)
		r.With(authenticate).Post("/", h.Competition.CreateCompetition)

		r.Route("/{competitionID}", func(r chi.Router) {
			r.Get("/", h.Competition.GetCompetition)
			r.Get("/cities", h.City.ListCompetitionCities)
			r.Get("/participants", h.Participation.ListParticipations)

			r.Group(func(r chi.Router) {
				r.Use(authenticate)

				r.Put("/", h.Competition.UpdateCompetition)
				r.Delete("/", h.Competition.DeleteCompetition)
				r.Patch("/status", h.Competition.UpdateStatus)
				r.Patch("/registration", h.Competition.ToggleRegistration)
				r.Post("/cities", h.City.AddCityToCompetition)
			})

			r.Route("/cities/{cityID}", func(r chi.Router) {
				r.Get("/status", h.Winner.CityStatus)
				r.Get("/rounds", h.Round.ListRounds)

				r.Group(func(r chi.Router) {
					r.Use(authenticate)

					r.Put("/", h.City.UpdateCompetitionCity)
					r.Delete("/", h.City.RemoveCityFromCompetition)
					r.Patch("/registration", h.City.ToggleCityRegistration)
					r.Post("/finish", h.Winner.MarkCityFinished)
					r.Post("/reopen", h.Winner.ReopenCity)
					r.Post("/rounds", h.Round.CreateRound)
					r.Post("/participants", h.Participation.Register)
					r.Post("/participants/admin", h.Participation.AdminAdd)
				})
			})
		})
	})

	router.Route("/cities", func(r chi.Router) {
		r.Get("/", h.City.ListCities)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Post("/", h.City.CreateCity)
			r.Patch("/{cityID}/status", h.City.SetCityStatus)
		})
	})

	router.Route("/rounds/{roundID}", func(r chi.Router) {
		r.Get("/", h.Round.GetRoundDetails)
		r.Get("/leaderboard", h.Round.Leaderboard)
		r.Get("/eligible", h.Round.EligibleParticipants)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Put("/", h.Round.UpdateRound)
			r.Delete("/", h.Round.DeleteRound)
			r.Post("/archive", h.Round.ArchiveRound)
			r.Post("/unarchive", h.Round.UnarchiveRound)
			r.Post("/promote", h.Round.PromoteToNextRound)
			r.Post("/sync", h.Round.SyncRoundOne)
			r.Post("/ranks", h.Round.RecalculateRanks)
			r.Post("/participants", h.Round.AddParticipant)
			r.Delete("/participants/{participationID}", h.Round.RemoveParticipant)
			r.Post("/scores", h.Score.UploadScores)
			r.Delete("/scores", h.Score.ClearScores)
			r.Post("/winners", h.Winner.SelectWinners)
		})
	})

	router.With(authenticate).Put("/round-participations/{rpID}/score", h.Score.UpdateScore)

	router.Route("/results", func(r chi.Router) {
		r.Get("/", h.Result.ListResults)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Post("/bulk", h.Result.BulkAssignResults)
			r.Put("/{participationID}", h.Result.AssignResult)
			r.Post("/{participationID}/lock", h.Result.LockResult)
			r.Post("/{participationID}/unlock", h.Result.UnlockResult)
		})
	})
}
