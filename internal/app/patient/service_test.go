package patientservice

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/burenotti/go_vitals_backend/internal/adapter/storage"
	"github.com/burenotti/go_vitals_backend/internal/app/unitofwork"
	"github.com/burenotti/go_vitals_backend/internal/domain"
	"github.com/burenotti/go_vitals_backend/internal/domain/patient"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	commits   int
	rollbacks int
}

func (f *fakeDB) Begin(ctx context.Context) (storage.DBContext, error) { return f, nil }
func (f *fakeDB) Commit() error                                        { f.commits++; return nil }
func (f *fakeDB) Rollback() error                                      { f.rollbacks++; return nil }

func (f *fakeDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}

func (f *fakeDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, nil
}

func (f *fakeDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

type fakePatientStorage struct {
	patients map[int64]*patient.Patient
	seen     []*patient.Patient
	addCalls int
}

func newFakePatientStorage() *fakePatientStorage {
	return &fakePatientStorage{patients: make(map[int64]*patient.Patient)}
}

func (f *fakePatientStorage) List(ctx context.Context, afterID int64, limit int) ([]*patient.Patient, error) {
	ids := lo.Keys(f.patients)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make([]*patient.Patient, 0, limit)
	for _, id := range ids {
		if id <= afterID {
			continue
		}
		if len(result) == limit {
			break
		}
		result = append(result, f.patients[id])
	}
	return result, nil
}

func (f *fakePatientStorage) Add(ctx context.Context, patients []*patient.Patient) error {
	f.addCalls++
	for _, p := range patients {
		if _, ok := f.patients[p.PatientID]; ok {
			return patient.ErrPatientExists
		}
	}
	for _, p := range patients {
		f.patients[p.PatientID] = p
	}
	f.seen = append(f.seen, patients...)
	return nil
}

func (f *fakePatientStorage) Delete(ctx context.Context, patientID int64) error {
	if _, ok := f.patients[patientID]; !ok {
		return patient.ErrPatientNotFound
	}
	delete(f.patients, patientID)
	return nil
}

func (f *fakePatientStorage) CollectEvents() []domain.Event {
	var events []domain.Event
	for _, p := range f.seen {
		events = append(events, p.PopEvents()...)
	}
	f.seen = nil
	return events
}

func (f *fakePatientStorage) Close() error { return nil }

type fakeBus struct {
	events []domain.Event
}

func (f *fakeBus) PublishEvents(events ...domain.Event) error {
	f.events = append(f.events, events...)
	return nil
}

type fixture struct {
	svc   *Service
	uow   *unitofwork.UnitOfWork[*AtomicContext]
	store *fakePatientStorage
	db    *fakeDB
	bus   *fakeBus
}

func newFixture() *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := &fakeDB{}
	store := newFakePatientStorage()
	bus := &fakeBus{}

	newCtx := func(ctx context.Context, dbCtx storage.DBContext) (*AtomicContext, error) {
		return &AtomicContext{ctx: ctx, db: dbCtx, PatientStorage: store}, nil
	}

	return &fixture{
		svc:   New(logger),
		uow:   unitofwork.New(db, newCtx, bus, logger),
		store: store,
		db:    db,
		bus:   bus,
	}
}

func validRecord(id int64) Record {
	return Record{
		PatientID:   id,
		Name:        "John Smith",
		DateOfBirth: time.Date(1985, 6, 1, 0, 0, 0, 0, time.UTC),
		Gender:      "male",
		Address:     "221B Baker Street, London",
		Email:       "john.smith@example.org",
		Phone:       "+15551234567",
		Sex:         "male",
	}
}

func (f *fixture) seed(t *testing.T, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		r := validRecord(id)
		p, err := patient.FromStored(
			r.PatientID, r.Name, r.DateOfBirth,
			r.Gender, r.Address, r.Email, r.Phone, r.Sex,
		)
		require.NoError(t, err)
		f.store.patients[id] = p
	}
}

func TestService_ListPatients_Pagination(t *testing.T) {
	f := newFixture()
	f.seed(t, 1, 2, 3, 4, 5)

	page := func(afterID int64) []int64 {
		result, err := f.svc.ListPatients(context.Background(), f.uow, afterID, 2)
		require.NoError(t, err)
		return lo.Map(result, func(r Record, _ int) int64 { return r.PatientID })
	}

	assert.Equal(t, []int64{1, 2}, page(0))
	assert.Equal(t, []int64{3, 4}, page(2))
	assert.Equal(t, []int64{5}, page(4))
	assert.Empty(t, page(5))
}

func TestService_InsertPatients_PartialFailure(t *testing.T) {
	f := newFixture()

	bad := validRecord(2)
	bad.Email = "not-an-email"

	rejects, err := f.svc.InsertPatients(context.Background(), f.uow, []Record{
		validRecord(1), bad, validRecord(3),
	})
	require.NoError(t, err)

	require.Len(t, rejects, 1)
	assert.Equal(t, int64(2), rejects[0].Record.PatientID)

	var vErr *domain.ValidationError
	require.ErrorAs(t, rejects[0].Err, &vErr)

	assert.Contains(t, f.store.patients, int64(1))
	assert.NotContains(t, f.store.patients, int64(2))
	assert.Contains(t, f.store.patients, int64(3))
}

func TestService_InsertPatients_PublishesEvents(t *testing.T) {
	f := newFixture()

	_, err := f.svc.InsertPatients(context.Background(), f.uow, []Record{
		validRecord(1), validRecord(2),
	})
	require.NoError(t, err)

	require.Len(t, f.bus.events, 2)
	for _, e := range f.bus.events {
		assert.Equal(t, patient.EventCreated, e.Type())
	}
}

func TestService_InsertPatients_AllRejectedSkipsStorage(t *testing.T) {
	f := newFixture()

	bad := validRecord(1)
	bad.Name = ""

	rejects, err := f.svc.InsertPatients(context.Background(), f.uow, []Record{bad})
	require.NoError(t, err)

	assert.Len(t, rejects, 1)
	assert.Zero(t, f.store.addCalls)
	assert.Zero(t, f.db.commits)
}

func TestService_InsertPatients_DuplicateRollsBack(t *testing.T) {
	f := newFixture()
	f.seed(t, 1)

	_, err := f.svc.InsertPatients(context.Background(), f.uow, []Record{validRecord(1)})
	require.ErrorIs(t, err, patient.ErrPatientExists)
	assert.Equal(t, 1, f.db.rollbacks)
}

func TestService_DeletePatient(t *testing.T) {
	f := newFixture()
	f.seed(t, 1)

	require.NoError(t, f.svc.DeletePatient(context.Background(), f.uow, 1))
	assert.Empty(t, f.store.patients)

	err := f.svc.DeletePatient(context.Background(), f.uow, 1)
	require.ErrorIs(t, err, patient.ErrPatientNotFound)
}
