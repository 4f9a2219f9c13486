package biometricservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/burenotti/go_vitals_backend/internal/adapter/storage"
	biometricstorage "github.com/burenotti/go_vitals_backend/internal/adapter/storage/biometrics"
	"github.com/burenotti/go_vitals_backend/internal/domain"
	"github.com/burenotti/go_vitals_backend/internal/domain/biometrics"
	"github.com/burenotti/go_vitals_backend/internal/pagination"
)

type BiometricStorage interface {
	History(ctx context.Context, patientID int64, after pagination.HistoryCursor, limit int) ([]*biometrics.Biometrics, error)
	Add(ctx context.Context, list []*biometrics.Biometrics) error
	Update(ctx context.Context, list []*biometrics.Biometrics) error
	Upsert(ctx context.Context, list []*biometrics.Biometrics) error
	Delete(ctx context.Context, list []*biometrics.Biometrics) error
	Analytics(ctx context.Context, patientID int64) (*biometrics.Analytics, error)
	UpsertAnalytics(ctx context.Context, list []*biometrics.Analytics) error
	Export(ctx context.Context) ([]biometrics.Sample, error)
	CollectEvents() []domain.Event
	Close() error
}

type AtomicContext struct {
	ctx              context.Context
	db               storage.DBContext
	BiometricStorage BiometricStorage
}

func (a *AtomicContext) Context() context.Context {
	return a.ctx
}

func (a *AtomicContext) Commit() error {
	return a.db.Commit()
}

func (a *AtomicContext) Close() (err error) {
	if closeErr := a.BiometricStorage.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}

	if err != nil {
		err = errors.Join(fmt.Errorf("failed to close storage"), err)
	}

	return err
}

func (a *AtomicContext) CollectEvents() []domain.Event {
	return a.BiometricStorage.CollectEvents()
}

func NewAtomicContext(ctx context.Context, dbContext storage.DBContext) (*AtomicContext, error) {
	return &AtomicContext{
		ctx:              ctx,
		db:               dbContext,
		BiometricStorage: biometricstorage.NewPostgresStorage(dbContext),
	}, nil
}
