package patientstorage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/burenotti/go_vitals_backend/internal/adapter/storage"
	"github.com/burenotti/go_vitals_backend/internal/adapter/storage/pgutil"
	"github.com/burenotti/go_vitals_backend/internal/domain"
	"github.com/burenotti/go_vitals_backend/internal/domain/patient"
	"github.com/leporo/sqlf"
	"github.com/samber/lo"
)

type PostgresStorage struct {
	base *pgutil.BasePostgresStorage
}

func NewPostgresStorage(db storage.DBContext) *PostgresStorage {
	return &PostgresStorage{
		base: pgutil.NewBasePostgresStorage(db),
	}
}

// List returns up to limit patients with patient_id greater than afterID,
// ordered by patient_id. This is the keyset behind the patient cursor.
func (s *PostgresStorage) List(ctx context.Context, afterID int64, limit int) ([]*patient.Patient, error) {
	var row struct {
		PatientID   int64
		Name        string
		DateOfBirth time.Time
		Gender      string
		Address     string
		Email       string
		Phone       string
		Sex         string
	}

	q := sqlf.From("patients p").
		Select("p.patient_id").To(&row.PatientID).
		Select("p.name").To(&row.Name).
		Select("p.date_of_birth").To(&row.DateOfBirth).
		Select("p.gender").To(&row.Gender).
		Select("p.address").To(&row.Address).
		Select("p.email").To(&row.Email).
		Select("p.phone").To(&row.Phone).
		Select("p.sex").To(&row.Sex).
		Where("p.patient_id > ?", afterID).
		OrderBy("p.patient_id").
		Limit(limit)

	var result []*patient.Patient
	var rowErr error

	err := q.QueryAndClose(ctx, s.base.DB, func(rows *sql.Rows) {
		p, err := patient.FromStored(
			row.PatientID, row.Name, row.DateOfBirth,
			row.Gender, row.Address, row.Email, row.Phone, row.Sex,
		)
		if err != nil {
			rowErr = errors.Join(rowErr, err)
			return
		}
		result = append(result, p)
	})

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storage.InternalError(err)
	}
	if rowErr != nil {
		return nil, storage.InternalError(rowErr)
	}
	return result, nil
}

// Add inserts a batch of patients, page-sized chunks per statement.
func (s *PostgresStorage) Add(ctx context.Context, patients []*patient.Patient) error {
	for _, chunk := range lo.Chunk(patients, pgutil.PageSize) {
		q := sqlf.InsertInto("patients")
		for _, p := range chunk {
			q.NewRow().
				Set("name", p.Name).
				Set("date_of_birth", p.DateOfBirth).
				Set("gender", p.Gender).
				Set("address", p.Address).
				Set("email", p.Email).
				Set("phone", p.Phone).
				Set("sex", p.Sex)
		}

		if _, err := q.ExecAndClose(ctx, s.base.DB); err != nil {
			if pgutil.ViolatesConstraint(err, "patients_pkey") {
				return patient.ErrPatientExists
			}
			return storage.InternalError(err)
		}
	}

	for _, p := range patients {
		s.base.MarkSeen(p)
	}
	return nil
}

func (s *PostgresStorage) Delete(ctx context.Context, patientID int64) error {
	q := sqlf.DeleteFrom("patients").
		Where("patient_id = ?", patientID)

	res, err := q.ExecAndClose(ctx, s.base.DB)
	return pgutil.AssertUpdated(res, err, patient.ErrPatientNotFound)
}

func (s *PostgresStorage) CollectEvents() []domain.Event {
	return s.base.CollectEvents()
}

func (s *PostgresStorage) Close() error {
	s.base.Close()
	return nil
}
