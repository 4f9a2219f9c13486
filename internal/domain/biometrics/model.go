package biometrics

import (
	"errors"
	"time"

	"github.com/burenotti/go_vitals_backend/internal/domain"
)

var (
	ErrAnalyticsNotFound = errors.New("biometrics analytics not found")
)

const (
	EventRecorded = "biometrics.recorded"
)

// Biometrics is a single vitals reading. Weight is always stored in grams;
// unit conversion happens at the service boundary.
type Biometrics struct {
	domain.Aggregate `validate:"-"`
	PatientID        int64     `validate:"required"`
	BiometricsID     *int64    `validate:"-"`
	TestDate         time.Time `validate:"required"`
	Glucose          *int      `validate:"omitempty,gt=54,lt=300"`
	Systolic         *int      `validate:"omitempty,gt=50,lt=230"`
	Diastolic        *int      `validate:"omitempty,gt=35,lt=210"`
	Weight           *int      `validate:"omitempty,gt=1000,lt=400000"`
}

// New validates and constructs a reading about to be persisted.
// BiometricsID is nil until the storage assigns one.
func New(
	patientID int64,
	biometricsID *int64,
	testDate time.Time,
	glucose, systolic, diastolic, weight *int,
) (*Biometrics, error) {
	b, err := FromStored(patientID, biometricsID, testDate, glucose, systolic, diastolic, weight)
	if err != nil {
		return nil, err
	}

	b.PushEvent(RecordedEvent{
		At:        time.Now().UTC(),
		PatientID: b.PatientID,
		TestDate:  b.TestDate,
	})
	return b, nil
}

// FromStored validates and constructs a reading from a storage row, applying
// the same checks as the write paths.
//
// The blood pressure pair is checked first: systolic and diastolic must be
// present together or absent together, and when both are present and in
// range, diastolic must not exceed systolic.
func FromStored(
	patientID int64,
	biometricsID *int64,
	testDate time.Time,
	glucose, systolic, diastolic, weight *int,
) (*Biometrics, error) {
	b := &Biometrics{
		PatientID:    patientID,
		BiometricsID: biometricsID,
		TestDate:     testDate,
		Glucose:      glucose,
		Systolic:     systolic,
		Diastolic:    diastolic,
		Weight:       weight,
	}

	violations := checkBloodPressurePresence(systolic, diastolic)
	fields := domain.Check(b)

	if len(violations) == 0 && systolic != nil && !rangeViolated(fields) {
		if *diastolic > *systolic {
			violations = append(violations, domain.Violation{
				Field:  "diastolic",
				Reason: "blood pressure values inconsistency (diastolic is greater than systolic)",
			})
		}
	}
	violations = append(violations, fields...)

	if len(violations) != 0 {
		return nil, &domain.ValidationError{Violations: violations}
	}
	return b, nil
}

func checkBloodPressurePresence(systolic, diastolic *int) []domain.Violation {
	if (systolic == nil) == (diastolic == nil) {
		return nil
	}

	provided, missing := "systolic", "diastolic"
	if systolic == nil {
		provided, missing = "diastolic", "systolic"
	}
	return []domain.Violation{{
		Field:  missing,
		Reason: provided + " was provided but " + missing + " is missing",
	}}
}

// rangeViolated reports whether either blood pressure field failed its own
// range check; the ordering rule only applies to individually valid values.
func rangeViolated(violations []domain.Violation) bool {
	for _, v := range violations {
		if v.Field == "systolic" || v.Field == "diastolic" {
			return true
		}
	}
	return false
}

type RecordedEvent struct {
	At        time.Time
	PatientID int64
	TestDate  time.Time
}

func (e RecordedEvent) Type() string {
	return EventRecorded
}

func (e RecordedEvent) PublishedAt() time.Time {
	return e.At
}
