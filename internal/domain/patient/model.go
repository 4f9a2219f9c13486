package patient

import (
	"errors"
	"time"

	"github.com/burenotti/go_vitals_backend/internal/domain"
)

var (
	ErrPatientExists   = errors.New("patient already exists")
	ErrPatientNotFound = errors.New("patient not found")
)

const (
	EventCreated = "patient.created"
)

type Patient struct {
	domain.Aggregate `validate:"-"`
	PatientID        int64     `validate:"-"`
	Name             string    `validate:"required,min=2"`
	DateOfBirth      time.Time `validate:"required"`
	Gender           string    `validate:"required,oneof=male female non-binary genderfluid transsexual"`
	Address          string    `validate:"required,min=5"`
	Email            string    `validate:"required,email"`
	Phone            string    `validate:"required"`
	Sex              string    `validate:"required,oneof=male female"`
}

// New validates and constructs a patient about to be persisted. PatientID
// may be zero: the storage assigns identities on insert.
func New(
	patientID int64,
	name string,
	dateOfBirth time.Time,
	gender, address, email, phone, sex string,
) (*Patient, error) {
	p, err := FromStored(patientID, name, dateOfBirth, gender, address, email, phone, sex)
	if err != nil {
		return nil, err
	}

	p.PushEvent(CreatedEvent{
		At:        time.Now().UTC(),
		PatientID: p.PatientID,
		Name:      p.Name,
	})
	return p, nil
}

// FromStored validates and constructs a patient from a storage row. Rows are
// checked against the same constraints as inbound records, so inconsistent
// stored data surfaces on read instead of leaking to callers.
func FromStored(
	patientID int64,
	name string,
	dateOfBirth time.Time,
	gender, address, email, phone, sex string,
) (*Patient, error) {
	p := &Patient{
		PatientID:   patientID,
		Name:        name,
		DateOfBirth: dateOfBirth,
		Gender:      gender,
		Address:     address,
		Email:       email,
		Phone:       phone,
		Sex:         sex,
	}

	if violations := domain.Check(p); len(violations) != 0 {
		return nil, &domain.ValidationError{Violations: violations}
	}
	return p, nil
}

type CreatedEvent struct {
	At        time.Time
	PatientID int64
	Name      string
}

func (e CreatedEvent) Type() string {
	return EventCreated
}

func (e CreatedEvent) PublishedAt() time.Time {
	return e.At
}
