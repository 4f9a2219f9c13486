package etl

import (
	"context"
	"log/slog"

	"github.com/burenotti/go_vitals_backend/internal/adapter/storage"
	biometricservice "github.com/burenotti/go_vitals_backend/internal/app/biometrics"
	"github.com/burenotti/go_vitals_backend/internal/app/unitofwork"
)

type AnalyticsJob struct {
	db      storage.DBContext
	bus     unitofwork.MessageBus
	service *biometricservice.Service
	logger  *slog.Logger
}

func NewAnalyticsJob(
	db storage.DBContext,
	bus unitofwork.MessageBus,
	service *biometricservice.Service,
	logger *slog.Logger,
) *AnalyticsJob {
	return &AnalyticsJob{
		db:      db,
		bus:     bus,
		service: service,
		logger:  logger,
	}
}

// Run recomputes the per-patient aggregates from the raw readings and
// upserts them. Safe to rerun at any time.
func (j *AnalyticsJob) Run(ctx context.Context) error {
	uow := unitofwork.New[*biometricservice.AtomicContext](
		j.db, biometricservice.NewAtomicContext, j.bus, j.logger,
	)

	if err := j.service.Aggregate(ctx, uow); err != nil {
		return err
	}

	j.logger.Info("biometrics analytics recomputed")
	return nil
}
