package patientservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/burenotti/go_vitals_backend/internal/adapter/storage"
	patientstorage "github.com/burenotti/go_vitals_backend/internal/adapter/storage/patients"
	"github.com/burenotti/go_vitals_backend/internal/domain"
	"github.com/burenotti/go_vitals_backend/internal/domain/patient"
)

type PatientStorage interface {
	List(ctx context.Context, afterID int64, limit int) ([]*patient.Patient, error)
	Add(ctx context.Context, patients []*patient.Patient) error
	Delete(ctx context.Context, patientID int64) error
	CollectEvents() []domain.Event
	Close() error
}

type AtomicContext struct {
	ctx            context.Context
	db             storage.DBContext
	PatientStorage PatientStorage
}

func (a *AtomicContext) Context() context.Context {
	return a.ctx
}

func (a *AtomicContext) Commit() error {
	return a.db.Commit()
}

func (a *AtomicContext) Close() (err error) {
	if closeErr := a.PatientStorage.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}

	if err != nil {
		err = errors.Join(fmt.Errorf("failed to close storage"), err)
	}

	return err
}

func (a *AtomicContext) CollectEvents() []domain.Event {
	return a.PatientStorage.CollectEvents()
}

func NewAtomicContext(ctx context.Context, dbContext storage.DBContext) (*AtomicContext, error) {
	return &AtomicContext{
		ctx:            ctx,
		db:             dbContext,
		PatientStorage: patientstorage.NewPostgresStorage(dbContext),
	}, nil
}
