package patient_test

import (
	"testing"
	"time"

	"github.com/burenotti/go_vitals_backend/internal/domain"
	"github.com/burenotti/go_vitals_backend/internal/domain/patient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validArgs() (int64, string, time.Time, string, string, string, string, string) {
	dob := time.Date(1987, 11, 2, 0, 0, 0, 0, time.UTC)
	return 0, "Jane Doe", dob, "female", "12 Main Street", "jane@example.com", "+1 555 0100", "female"
}

func TestNew_Valid(t *testing.T) {
	id, name, dob, gender, address, email, phone, sex := validArgs()

	p, err := patient.New(id, name, dob, gender, address, email, phone, sex)
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe", p.Name)
	assert.Equal(t, "female", p.Gender)

	events := p.PopEvents()
	require.Len(t, events, 1)
	assert.Equal(t, patient.EventCreated, events[0].Type())
}

func TestNew_Violations(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*args)
		wantField string
	}{
		{"short name", func(a *args) { a.name = "J" }, "name"},
		{"empty name", func(a *args) { a.name = "" }, "name"},
		{"zero birth date", func(a *args) { a.dob = time.Time{} }, "date_of_birth"},
		{"unknown gender", func(a *args) { a.gender = "other" }, "gender"},
		{"short address", func(a *args) { a.address = "x" }, "address"},
		{"bad email", func(a *args) { a.email = "not-an-email" }, "email"},
		{"missing phone", func(a *args) { a.phone = "" }, "phone"},
		{"unknown sex", func(a *args) { a.sex = "non-binary" }, "sex"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newArgs()
			tt.mutate(&a)

			_, err := patient.New(a.id, a.name, a.dob, a.gender, a.address, a.email, a.phone, a.sex)
			require.Error(t, err)

			var vErr *domain.ValidationError
			require.ErrorAs(t, err, &vErr)

			fields := make([]string, 0, len(vErr.Violations))
			for _, v := range vErr.Violations {
				fields = append(fields, v.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestNew_AllGendersAccepted(t *testing.T) {
	for _, gender := range []string{"male", "female", "non-binary", "genderfluid", "transsexual"} {
		a := newArgs()
		a.gender = gender

		_, err := patient.New(a.id, a.name, a.dob, a.gender, a.address, a.email, a.phone, a.sex)
		assert.NoError(t, err, "gender %q must be accepted", gender)
	}
}

func TestNew_CollectsEveryViolation(t *testing.T) {
	a := newArgs()
	a.name = "J"
	a.email = "nope"
	a.address = "x"

	_, err := patient.New(a.id, a.name, a.dob, a.gender, a.address, a.email, a.phone, a.sex)
	require.Error(t, err)

	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.Violations, 3)
}

type args struct {
	id                                 int64
	name                               string
	dob                                time.Time
	gender, address, email, phone, sex string
}

func newArgs() args {
	id, name, dob, gender, address, email, phone, sex := validArgs()
	return args{id, name, dob, gender, address, email, phone, sex}
}
