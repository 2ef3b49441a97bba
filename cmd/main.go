package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/city-competitions/config"
	"github.com/Dosada05/city-competitions/db"
	"github.com/Dosada05/city-competitions/handlers"
	"github.com/Dosada05/city-competitions/repositories"
	api "github.com/Dosada05/city-competitions/routes"
	"github.com/Dosada05/city-competitions/services"
	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.Int("max_score_upload_records", cfg.MaxScoreUploadRecords))

	// Подключение к базе данных
	dbConn, driver, err := db.Connect(cfg.DatabaseURL, cfg.DBConnectTimeout)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established", slog.String("driver", driver))

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx, dbConn, driver)
	cancelMigrate()
	if err != nil {
		logger.Error("failed to apply schema", slog.Any("error", err))
		os.Exit(1)
	}

	dialect, err := repositories.DialectFor(driver)
	if err != nil {
		logger.Error("unsupported database dialect", slog.Any("error", err))
		os.Exit(1)
	}
	store := repositories.NewStore(dbConn, dialect, logger)

	// Инициализация репозиториев
	userRepo := repositories.NewUserRepository(store)
	competitionRepo := repositories.NewCompetitionRepository(store)
	cityRepo := repositories.NewCityRepository(store)
	branchRepo := repositories.NewCompetitionCityRepository(store)
	participationRepo := repositories.NewParticipationRepository(store)
	roundRepo := repositories.NewRoundRepository(store)
	roundParticipationRepo := repositories.NewRoundParticipationRepository(store)
	scoreRepo := repositories.NewRoundScoreRepository(store)
	resultRepo := repositories.NewResultRepository(store)
	logger.Info("Repositories initialized")

	// Инициализация сервисов
	competitionService := services.NewCompetitionService(store, competitionRepo, branchRepo, participationRepo, roundRepo, logger)
	cityService := services.NewCityService(store, cityRepo, branchRepo, competitionRepo, participationRepo, roundRepo, logger)
	participationService := services.NewParticipationService(store, userRepo, competitionRepo, branchRepo, participationRepo, roundRepo, roundParticipationRepo, logger)
	roundService := services.NewRoundService(store, competitionRepo, branchRepo, participationRepo, roundRepo, roundParticipationRepo, scoreRepo, logger)
	scoreService := services.NewScoreService(store, roundRepo, roundParticipationRepo, scoreRepo, cfg.MaxScoreUploadRecords, logger)
	winnerService := services.NewWinnerService(store, branchRepo, roundRepo, roundParticipationRepo, scoreRepo, resultRepo, logger)
	resultService := services.NewResultService(store, participationRepo, resultRepo, logger)

	// Соревнование завершается, когда все его города отмечены завершенными.
	winnerService.Subscribe(competitionService)
	logger.Info("Services initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(router, cfg.JWTSecretKey, cfg.AllowedOrigins, api.Handlers{
		Competition:   handlers.NewCompetitionHandler(competitionService),
		City:          handlers.NewCityHandler(cityService),
		Participation: handlers.NewParticipationHandler(participationService),
		Round:         handlers.NewRoundHandler(roundService),
		Score:         handlers.NewScoreHandler(scoreService),
		Winner:        handlers.NewWinnerHandler(winnerService),
		Result:        handlers.NewResultHandler(resultService),
	})
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
