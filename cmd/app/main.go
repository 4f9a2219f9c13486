package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/burenotti/go_vitals_backend/internal/adapter/api"
	"github.com/burenotti/go_vitals_backend/internal/adapter/storage"
	biometricservice "github.com/burenotti/go_vitals_backend/internal/app/biometrics"
	"github.com/burenotti/go_vitals_backend/internal/app/messagebus"
	patientservice "github.com/burenotti/go_vitals_backend/internal/app/patient"
	"github.com/burenotti/go_vitals_backend/internal/config"
	"github.com/burenotti/go_vitals_backend/internal/domain"
	"github.com/burenotti/go_vitals_backend/internal/domain/biometrics"
	"github.com/burenotti/go_vitals_backend/internal/domain/patient"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/leporo/sqlf"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)
	logger := initLogger(cfg)

	bus := messagebus.New(logger)
	bus.Register(patient.EventCreated, func(event domain.Event) error {
		logger.Info("patient created", "at", event.PublishedAt())
		return nil
	})
	bus.Register(biometrics.EventRecorded, func(event domain.Event) error {
		logger.Info("biometrics recorded", "at", event.PublishedAt())
		return nil
	})

	sqlf.SetDialect(sqlf.PostgreSQL)

	db, err := sql.Open("pgx", cfg.DB.DSN)
	if err != nil {
		panic("failed to connect database: " + err.Error())
	}

	server := api.NewServer(
		api.Addr(cfg.Server.Host, cfg.Server.Port),
		api.Logger(logger),
		api.PatientService(patientservice.New(logger)),
		api.BiometricService(biometricservice.New(logger)),
		api.DBContext(&storage.DB{DB: db}),
		api.MessageBus(bus),
	)

	ctx := context.Background()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error)

	go func() {
		defer close(errCh)
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server was not shutdown gracefully", "error", err)
		}
	case err := <-errCh:
		if err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server closed with unexpected error", "error", err)
			}
		}
	}
	logger.Info("server shutdown")
}

func initLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler
	switch cfg.App.Env {
	case config.Development:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: true,
			Level:     slog.LevelDebug,
		})
	case config.Production:
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: false,
			Level:     slog.LevelInfo,
		})
	default:
		panic("invalid env")
	}

	return slog.New(handler)
}
