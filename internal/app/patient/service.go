package patientservice

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/burenotti/go_vitals_backend/internal/app/unitofwork"
	"github.com/burenotti/go_vitals_backend/internal/domain"
	"github.com/burenotti/go_vitals_backend/internal/domain/patient"
)

// Record is the transport-agnostic shape of one inbound patient, shared by
// the API and the batch loaders.
type Record struct {
	PatientID   int64
	Name        string
	DateOfBirth time.Time
	Gender      string
	Address     string
	Email       string
	Phone       string
	Sex         string
}

// Reject pairs an invalid record with the validation error that set it
// aside. Rejects never abort a batch.
type Reject struct {
	Record Record
	Err    error
}

type Service struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Service {
	return &Service{logger: logger}
}

// ListPatients returns one page of patients ordered by id, resuming after
// afterID.
func (s *Service) ListPatients(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	afterID int64,
	limit int,
) (result []Record, outErr error) {
	outErr = uow.Atomic(ctx, func(ctx *AtomicContext) error {
		patients, err := ctx.PatientStorage.List(ctx.Context(), afterID, limit)
		if err != nil {
			return err
		}

		result = make([]Record, 0, len(patients))
		for _, p := range patients {
			result = append(result, Record{
				PatientID:   p.PatientID,
				Name:        p.Name,
				DateOfBirth: p.DateOfBirth,
				Gender:      p.Gender,
				Address:     p.Address,
				Email:       p.Email,
				Phone:       p.Phone,
				Sex:         p.Sex,
			})
		}
		return ctx.Commit()
	})
	return
}

// InsertPatients validates each record independently, persists the valid
// ones and returns the rejects. One malformed record never blocks the rest.
func (s *Service) InsertPatients(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	records []Record,
) (rejects []Reject, outErr error) {
	valid := make([]*patient.Patient, 0, len(records))

	for _, r := range records {
		p, err := patient.New(
			r.PatientID, r.Name, r.DateOfBirth,
			r.Gender, r.Address, r.Email, r.Phone, r.Sex,
		)
		if err != nil {
			var vErr *domain.ValidationError
			if !errors.As(err, &vErr) {
				return nil, err
			}
			rejects = append(rejects, Reject{Record: r, Err: err})
			continue
		}
		valid = append(valid, p)
	}

	if len(valid) == 0 {
		return rejects, nil
	}

	outErr = uow.Atomic(ctx, func(ctx *AtomicContext) error {
		if err := ctx.PatientStorage.Add(ctx.Context(), valid); err != nil {
			return err
		}
		return ctx.Commit()
	})
	return
}

// DeletePatient removes one patient by id. No route exposes it yet; the
// batch tooling keeps it for cleanups.
func (s *Service) DeletePatient(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	patientID int64,
) error {
	return uow.Atomic(ctx, func(ctx *AtomicContext) error {
		if err := ctx.PatientStorage.Delete(ctx.Context(), patientID); err != nil {
			return err
		}
		return ctx.Commit()
	})
}
