package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/burenotti/go_vitals_backend/internal/adapter/etl"
	"github.com/burenotti/go_vitals_backend/internal/adapter/storage"
	biometricservice "github.com/burenotti/go_vitals_backend/internal/app/biometrics"
	"github.com/burenotti/go_vitals_backend/internal/app/messagebus"
	patientservice "github.com/burenotti/go_vitals_backend/internal/app/patient"
	"github.com/burenotti/go_vitals_backend/internal/config"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/leporo/sqlf"
)

func main() {
	var (
		configPath     string
		loadPatients   bool
		loadBiometrics bool
		runAnalytics   bool
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "path to config file")
	flag.BoolVar(&loadPatients, "patients", false, "load the patients file")
	flag.BoolVar(&loadBiometrics, "biometrics", false, "load the biometrics file")
	flag.BoolVar(&runAnalytics, "analytics", false, "recompute biometrics analytics")
	flag.Parse()

	cfg := config.MustLoad(configPath)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if !loadPatients && !loadBiometrics && !runAnalytics {
		logger.Error("nothing to do: pass -patients, -biometrics or -analytics")
		os.Exit(2)
	}

	sqlf.SetDialect(sqlf.PostgreSQL)

	db, err := sql.Open("pgx", cfg.DB.DSN)
	if err != nil {
		panic("failed to connect database: " + err.Error())
	}
	defer db.Close()

	bus := messagebus.New(logger)
	dbCtx := &storage.DB{DB: db}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if loadPatients {
		loader := etl.NewPatientLoader(dbCtx, bus, patientservice.New(logger), logger)
		if _, err := loader.Run(ctx, cfg.ETL.PatientsFile); err != nil {
			logger.Error("patients batch failed", "error", err)
			os.Exit(1)
		}
	}

	if loadBiometrics {
		loader := etl.NewBiometricsLoader(dbCtx, bus, biometricservice.New(logger), logger)
		if _, err := loader.Run(ctx, cfg.ETL.BiometricsFile); err != nil {
			logger.Error("biometrics batch failed", "error", err)
			os.Exit(1)
		}
	}

	if runAnalytics {
		job := etl.NewAnalyticsJob(dbCtx, bus, biometricservice.New(logger), logger)
		if err := job.Run(ctx); err != nil {
			logger.Error("analytics job failed", "error", err)
			os.Exit(1)
		}
	}

	bus.Close()
}
