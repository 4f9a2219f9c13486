// Package etl loads batch files of patients and biometrics into the store
// and runs the analytics aggregation job. Every row is validated on its own;
// rejects are logged and never abort the batch.
package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/burenotti/go_vitals_backend/internal/adapter/storage"
	patientservice "github.com/burenotti/go_vitals_backend/internal/app/patient"
	"github.com/burenotti/go_vitals_backend/internal/app/unitofwork"
	"github.com/samber/lo"
)

const dateOnly = "2006-01-02"

// isoDate unmarshals bare calendar dates ("1987-11-02") the way the patient
// files carry them.
type isoDate struct {
	time.Time
}

func (d *isoDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	t, err := time.Parse(dateOnly, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

type patientRow struct {
	PatientID   int64   `json:"patient_id"`
	Name        string  `json:"name"`
	DateOfBirth isoDate `json:"date_of_birth"`
	Gender      string  `json:"gender"`
	Address     string  `json:"address"`
	Email       string  `json:"email"`
	Phone       string  `json:"phone"`
	Sex         string  `json:"sex"`
}

type PatientLoader struct {
	db      storage.DBContext
	bus     unitofwork.MessageBus
	service *patientservice.Service
	logger  *slog.Logger
}

func NewPatientLoader(
	db storage.DBContext,
	bus unitofwork.MessageBus,
	service *patientservice.Service,
	logger *slog.Logger,
) *PatientLoader {
	return &PatientLoader{
		db:      db,
		bus:     bus,
		service: service,
		logger:  logger,
	}
}

// Run loads a JSON array of patient records from path. Returns the number of
// inserted records; rejected records are logged for later inspection.
func (l *PatientLoader) Run(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read patients file: %w", err)
	}

	var rows []patientRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("parse patients file: %w", err)
	}

	records := lo.Map(rows, func(r patientRow, _ int) patientservice.Record {
		return patientservice.Record{
			PatientID:   r.PatientID,
			Name:        r.Name,
			DateOfBirth: r.DateOfBirth.Time,
			Gender:      r.Gender,
			Address:     r.Address,
			Email:       r.Email,
			Phone:       r.Phone,
			Sex:         r.Sex,
		}
	})

	uow := unitofwork.New[*patientservice.AtomicContext](
		l.db, patientservice.NewAtomicContext, l.bus, l.logger,
	)

	rejects, err := l.service.InsertPatients(ctx, uow, records)
	if err != nil {
		return 0, err
	}

	for _, r := range rejects {
		l.logger.Warn("patient record rejected",
			"patient_id", r.Record.PatientID,
			"error", r.Err,
		)
	}

	inserted := len(records) - len(rejects)
	l.logger.Info("patients batch processed",
		"file", path,
		"inserted", inserted,
		"rejected", len(rejects),
	)
	return inserted, nil
}
