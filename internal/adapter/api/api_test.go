package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/burenotti/go_vitals_backend/internal/adapter/storage"
	biometricservice "github.com/burenotti/go_vitals_backend/internal/app/biometrics"
	"github.com/burenotti/go_vitals_backend/internal/app/messagebus"
	patientservice "github.com/burenotti/go_vitals_backend/internal/app/patient"
	"github.com/burenotti/go_vitals_backend/internal/pagination"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	patientColumns = []string{
		"patient_id", "name", "date_of_birth", "gender", "address", "email", "phone", "sex",
	}
	historyColumns = []string{
		"patient_id", "biometrics_id", "test_date", "glucose", "systolic", "diastolic", "weight",
	}
)

func setupServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := NewServer(
		Addr("localhost", 0),
		Logger(logger),
		DBContext(&storage.DB{DB: db}),
		PatientService(patientservice.New(logger)),
		BiometricService(biometricservice.New(logger)),
		MessageBus(messagebus.New(logger)),
	)
	return s, mock
}

func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func addPatientRow(rows *sqlmock.Rows, id int64) *sqlmock.Rows {
	dob := time.Date(1985, 6, 1, 0, 0, 0, 0, time.UTC)
	return rows.AddRow(id, "John Smith", dob, "male",
		"221B Baker Street, London", "john.smith@example.org", "+15551234567", "male")
}

func expectPatientPage(mock sqlmock.Sqlmock, ids ...int64) {
	rows := sqlmock.NewRows(patientColumns)
	for _, id := range ids {
		addPatientRow(rows, id)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM patients p`).WillReturnRows(rows)
	mock.ExpectCommit()
}

func TestListPatients_PaginationWalk(t *testing.T) {
	s, mock := setupServer(t)

	expectPatientPage(mock, 1, 2)
	rec := doRequest(s, http.MethodGet, "/patients?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	page := decode[ListPatientsResponse](t, rec)
	require.Len(t, page.Patients, 2)
	assert.Equal(t, int64(1), page.Patients[0].PatientID)
	assert.Equal(t, "1985-06-01", page.Patients[0].DateOfBirth)
	assert.Equal(t, "2", page.NextPageToken)

	expectPatientPage(mock, 3, 4)
	rec = doRequest(s, http.MethodGet, "/patients?limit=2&next_page_token=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	page = decode[ListPatientsResponse](t, rec)
	require.Len(t, page.Patients, 2)
	assert.Equal(t, int64(3), page.Patients[0].PatientID)
	assert.Equal(t, "4", page.NextPageToken)

	// exhausted cursor: an empty page, not an error
	expectPatientPage(mock)
	rec = doRequest(s, http.MethodGet, "/patients?limit=2&next_page_token=4", "")
	require.Equal(t, http.StatusOK, rec.Code)

	page = decode[ListPatientsResponse](t, rec)
	assert.Empty(t, page.Patients)
	assert.Empty(t, page.NextPageToken)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPatients_EmptyFirstPage(t *testing.T) {
	s, mock := setupServer(t)

	expectPatientPage(mock)
	rec := doRequest(s, http.MethodGet, "/patients", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPatients_MalformedToken(t *testing.T) {
	s, mock := setupServer(t)

	rec := doRequest(s, http.MethodGet, "/patients?next_page_token=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// the cursor is rejected before any storage work starts
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPatients_InvalidLimit(t *testing.T) {
	s, _ := setupServer(t)

	rec := doRequest(s, http.MethodGet, "/patients?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func expectHistoryPage(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM biometrics b`).WillReturnRows(rows)
	mock.ExpectCommit()
}

func TestGetHistory(t *testing.T) {
	s, mock := setupServer(t)

	testDate := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows(historyColumns).
		AddRow(int64(1), int64(10), testDate, int64(110), int64(120), int64(80), int64(70000))
	expectHistoryPage(mock, rows)

	rec := doRequest(s, http.MethodGet, "/patient/1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)

	page := decode[HistoryResponse](t, rec)
	require.Len(t, page.BiometricsHistory, 1)

	entry := page.BiometricsHistory[0]
	require.NotNil(t, entry.Glucose)
	assert.Equal(t, 110, *entry.Glucose)
	require.NotNil(t, entry.Weight)
	assert.InDelta(t, 70.0, *entry.Weight, 0.001)

	next, err := pagination.ParseHistoryToken(page.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, int64(10), next.BiometricsID)
	assert.True(t, next.TestDate.Equal(testDate))
}

func TestGetHistory_FilterByProjectsColumns(t *testing.T) {
	all := []string{"glucose", "systolic", "diastolic", "weight"}

	tests := []struct {
		name  string
		query string
		keep  []string
	}{
		{
			name:  "subset keeps only the requested column",
			query: "filter_by=glucose",
			keep:  []string{"glucose"},
		},
		{
			name:  "superset with an unknown column keeps all four",
			query: "filter_by=glucose&filter_by=systolic&filter_by=diastolic&filter_by=weight&filter_by=foo",
			keep:  all,
		},
		{
			name:  "disjoint set drops all four",
			query: "filter_by=foo",
			keep:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := setupServer(t)

			testDate := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
			rows := sqlmock.NewRows(historyColumns).
				AddRow(int64(1), int64(10), testDate, int64(110), int64(120), int64(80), int64(70000))
			expectHistoryPage(mock, rows)

			rec := doRequest(s, http.MethodGet, "/patient/1/history?"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code)

			var body struct {
				BiometricsHistory []map[string]any `json:"biometrics_history"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Len(t, body.BiometricsHistory, 1)

			entry := body.BiometricsHistory[0]
			for _, col := range all {
				if lo.Contains(tt.keep, col) {
					assert.Contains(t, entry, col)
				} else {
					assert.NotContains(t, entry, col)
				}
			}
		})
	}
}

func TestGetHistory_EmptyFirstPage(t *testing.T) {
	s, mock := setupServer(t)

	expectHistoryPage(mock, sqlmock.NewRows(historyColumns))

	rec := doRequest(s, http.MethodGet, "/patient/1/history", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetHistory_ExhaustedCursor(t *testing.T) {
	s, mock := setupServer(t)

	expectHistoryPage(mock, sqlmock.NewRows(historyColumns))

	token := pagination.HistoryCursor{
		BiometricsID: 10,
		TestDate:     time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC),
	}.Token()

	rec := doRequest(s, http.MethodGet, "/patient/1/history?next_page_token="+token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	page := decode[HistoryResponse](t, rec)
	assert.Empty(t, page.BiometricsHistory)
	assert.Empty(t, page.NextPageToken)
}

func TestGetHistory_MalformedToken(t *testing.T) {
	s, mock := setupServer(t)

	rec := doRequest(s, http.MethodGet, "/patient/1/history?next_page_token=%21bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPatientMetrics(t *testing.T) {
	s, mock := setupServer(t)

	rows := sqlmock.NewRows([]string{
		"patient_id",
		"glucose_mean", "glucose_min", "glucose_max",
		"systolic_mean", "systolic_min", "systolic_max",
		"diastolic_mean", "diastolic_min", "diastolic_max",
		"weight_mean", "weight_min", "weight_max",
	}).AddRow(int64(1), 110, 90, 140, 120, 110, 135, 80, 70, 90, 70500, 69000, 72000)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM biometrics_analytics a`).WillReturnRows(rows)
	mock.ExpectCommit()

	rec := doRequest(s, http.MethodGet, "/patient/1/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[AnalyticsModel](t, rec)
	assert.Equal(t, float64(110), body.GlucoseMean)
	assert.InDelta(t, 70.5, body.WeightMean, 0.0001)
	assert.InDelta(t, 72.0, body.WeightMax, 0.0001)
}

func TestGetPatientMetrics_NotFound(t *testing.T) {
	s, mock := setupServer(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM biometrics_analytics a`).
		WillReturnRows(sqlmock.NewRows([]string{"patient_id"}))
	mock.ExpectRollback()

	rec := doRequest(s, http.MethodGet, "/patient/404/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddBiometrics(t *testing.T) {
	s, mock := setupServer(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO biometrics`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	body := `{"patient_id": 1, "test_date": "2024-01-15T09:30:00Z", "glucose": 110, "weight": 70.5}`
	rec := doRequest(s, http.MethodPost, "/biometrics", body)
	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddBiometrics_UnknownPatient(t *testing.T) {
	s, mock := setupServer(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO biometrics`).WillReturnError(&pgconn.PgError{
		Code:           pgerrcode.ForeignKeyViolation,
		ConstraintName: "biometrics_patient_id_fkey",
	})
	mock.ExpectRollback()

	body := `{"patient_id": 404, "test_date": "2024-01-15T09:30:00Z", "glucose": 110}`
	rec := doRequest(s, http.MethodPost, "/biometrics", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddBiometrics_InvalidRecord(t *testing.T) {
	s, mock := setupServer(t)

	body := `{"patient_id": 1, "test_date": "2024-01-15T09:30:00Z", "glucose": 40}`
	rec := doRequest(s, http.MethodPost, "/biometrics", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[JsonErrorModel](t, rec)
	assert.Contains(t, resp.Message, "glucose")

	// nothing reached the storage
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddBiometrics_IncompleteBloodPressure(t *testing.T) {
	s, _ := setupServer(t)

	body := `{"patient_id": 1, "test_date": "2024-01-15T09:30:00Z", "systolic": 120}`
	rec := doRequest(s, http.MethodPost, "/biometrics", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[JsonErrorModel](t, rec)
	assert.Contains(t, resp.Message, "diastolic is missing")
}

func TestUpsertBiometrics(t *testing.T) {
	s, mock := setupServer(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO biometrics .+ ON CONFLICT`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	body := `{"patient_id": 1, "biometrics_id": 10, "test_date": "2024-01-15T09:30:00Z", "glucose": 110}`
	rec := doRequest(s, http.MethodPut, "/biometrics", body)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteBiometrics(t *testing.T) {
	s, mock := setupServer(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM biometrics`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	body := `{"patient_id": 1, "biometrics_id": 10, "test_date": "2024-01-15T09:30:00Z"}`
	rec := doRequest(s, http.MethodDelete, "/biometrics", body)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
