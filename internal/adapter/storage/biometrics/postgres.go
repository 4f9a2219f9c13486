package biometricstorage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/burenotti/go_vitals_backend/internal/adapter/storage"
	"github.com/burenotti/go_vitals_backend/internal/adapter/storage/pgutil"
	"github.com/burenotti/go_vitals_backend/internal/domain"
	"github.com/burenotti/go_vitals_backend/internal/domain/biometrics"
	"github.com/burenotti/go_vitals_backend/internal/domain/patient"
	"github.com/burenotti/go_vitals_backend/internal/pagination"
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

// History returns up to limit readings of one patient, resuming after the
// (biometrics_id, test_date) tuple of the cursor.
func (s *PostgresStorage) History(
	ctx context.Context,
	patientID int64,
	after pagination.HistoryCursor,
	limit int,
) ([]*biometrics.Biometrics, error) {
	var row struct {
		PatientID    int64
		BiometricsID int64
		TestDate     time.Time
		Glucose      sql.NullInt64
		Systolic     sql.NullInt64
		Diastolic    sql.NullInt64
		Weight       sql.NullInt64
	}

	q := sqlf.From("biometrics b").
		Select("b.patient_id").To(&row.PatientID).
		Select("b.biometrics_id").To(&row.BiometricsID).
		Select("b.test_date").To(&row.TestDate).
		Select("b.glucose").To(&row.Glucose).
		Select("b.systolic").To(&row.Systolic).
		Select("b.diastolic").To(&row.Diastolic).
		Select("b.weight").To(&row.Weight).
		Where("b.patient_id = ?", patientID).
		Where("(b.biometrics_id, b.test_date) > (?, ?)", after.BiometricsID, after.TestDate).
		OrderBy("b.biometrics_id", "b.test_date").
		Limit(limit)

	var result []*biometrics.Biometrics
	var rowErr error

	err := q.QueryAndClose(ctx, s.base.DB, func(rows *sql.Rows) {
		id := row.BiometricsID
		b, err := biometrics.FromStored(
			row.PatientID, &id, row.TestDate,
			nullableInt(row.Glucose),
			nullableInt(row.Systolic),
			nullableInt(row.Diastolic),
			nullableInt(row.Weight),
		)
		if err != nil {
			rowErr = errors.Join(rowErr, err)
			return
		}
		result = append(result, b)
	})

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storage.InternalError(err)
	}
	if rowErr != nil {
		return nil, storage.InternalError(rowErr)
	}
	return result, nil
}

// Add inserts a batch of readings, page-sized chunks per statement.
// Identities are assigned by the storage and not reported back. A reading
// referencing an unknown patient fails the whole batch.
func (s *PostgresStorage) Add(ctx context.Context, list []*biometrics.Biometrics) error {
	for _, chunk := range lo.Chunk(list, pgutil.PageSize) {
		q := sqlf.InsertInto("biometrics")
		for _, b := range chunk {
			q.NewRow().
				Set("patient_id", b.PatientID).
				Set("test_date", b.TestDate).
				Set("glucose", b.Glucose).
				Set("systolic", b.Systolic).
				Set("diastolic", b.Diastolic).
				Set("weight", b.Weight)
		}

		if _, err := q.ExecAndClose(ctx, s.base.DB); err != nil {
			if pgutil.ViolatesConstraint(err, "biometrics_patient_id_fkey") {
				return patient.ErrPatientNotFound
			}
			return storage.InternalError(err)
		}
	}

	for _, b := range list {
		s.base.MarkSeen(b)
	}
	return nil
}

// Update overwrites the listed columns of each (patient_id, biometrics_id)
// row. Unmatched rows are silently skipped.
func (s *PostgresStorage) Update(ctx context.Context, list []*biometrics.Biometrics) error {
	for _, chunk := range lo.Chunk(list, pgutil.PageSize) {
		for _, b := range chunk {
			q := sqlf.Update("biometrics").
				Set("test_date", b.TestDate).
				Set("glucose", b.Glucose).
				Set("systolic", b.Systolic).
				Set("diastolic", b.Diastolic).
				Set("weight", b.Weight).
				Where("patient_id = ?", b.PatientID).
				Where("biometrics_id = ?", b.BiometricsID)

			if _, err := q.ExecAndClose(ctx, s.base.DB); err != nil {
				return storage.InternalError(err)
			}
		}
	}
	return nil
}

// Upsert matches on (patient_id, biometrics_id): matched rows are fully
// overwritten on the listed columns, unmatched rows are inserted. Readings
// without an id cannot match and always insert.
func (s *PostgresStorage) Upsert(ctx context.Context, list []*biometrics.Biometrics) error {
	for _, chunk := range lo.Chunk(list, pgutil.PageSize) {
		for _, b := range chunk {
			var q *sqlf.Stmt
			if b.BiometricsID == nil {
				q = sqlf.InsertInto("biometrics").
					Set("patient_id", b.PatientID).
					Set("test_date", b.TestDate).
					Set("glucose", b.Glucose).
					Set("systolic", b.Systolic).
					Set("diastolic", b.Diastolic).
					Set("weight", b.Weight)
			} else {
				q = sqlf.InsertInto("biometrics").
					Set("patient_id", b.PatientID).
					Set("biometrics_id", *b.BiometricsID).
					Set("test_date", b.TestDate).
					Set("glucose", b.Glucose).
					Set("systolic", b.Systolic).
					Set("diastolic", b.Diastolic).
					Set("weight", b.Weight).
					Clause(
						"ON CONFLICT (patient_id, biometrics_id) DO UPDATE SET "+
							"test_date = EXCLUDED.test_date, glucose = EXCLUDED.glucose, "+
							"systolic = EXCLUDED.systolic, diastolic = EXCLUDED.diastolic, "+
							"weight = EXCLUDED.weight")
			}

			if _, err := q.ExecAndClose(ctx, s.base.DB); err != nil {
				if pgutil.ViolatesConstraint(err, "biometrics_patient_id_fkey") {
					return patient.ErrPatientNotFound
				}
				return storage.InternalError(err)
			}
		}
	}
	return nil
}

// Delete removes readings by (patient_id, biometrics_id).
func (s *PostgresStorage) Delete(ctx context.Context, list []*biometrics.Biometrics) error {
	for _, chunk := range lo.Chunk(list, pgutil.PageSize) {
		for _, b := range chunk {
			q := sqlf.DeleteFrom("biometrics").
				Where("patient_id = ?", b.PatientID).
				Where("biometrics_id = ?", b.BiometricsID)

			if _, err := q.ExecAndClose(ctx, s.base.DB); err != nil {
				return storage.InternalError(err)
			}
		}
	}
	return nil
}

func (s *PostgresStorage) Analytics(ctx context.Context, patientID int64) (*biometrics.Analytics, error) {
	var tmp biometrics.Analytics

	q := sqlf.From("biometrics_analytics a").
		Select("a.patient_id").To(&tmp.PatientID).
		Select("a.glucose_mean").To(&tmp.GlucoseMean).
		Select("a.glucose_min").To(&tmp.GlucoseMin).
		Select("a.glucose_max").To(&tmp.GlucoseMax).
		Select("a.systolic_mean").To(&tmp.SystolicMean).
		Select("a.systolic_min").To(&tmp.SystolicMin).
		Select("a.systolic_max").To(&tmp.SystolicMax).
		Select("a.diastolic_mean").To(&tmp.DiastolicMean).
		Select("a.diastolic_min").To(&tmp.DiastolicMin).
		Select("a.diastolic_max").To(&tmp.DiastolicMax).
		Select("a.weight_mean").To(&tmp.WeightMean).
		Select("a.weight_min").To(&tmp.WeightMin).
		Select("a.weight_max").To(&tmp.WeightMax).
		Where("a.patient_id = ?", patientID)

	result := make(map[int64]*biometrics.Analytics)

	err := q.QueryAndClose(ctx, s.base.DB, func(rows *sql.Rows) {
		a := tmp
		result[a.PatientID] = &a
	})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storage.InternalError(err)
	}

	return pgutil.PeekOrErr(result, nil, biometrics.ErrAnalyticsNotFound)
}

// UpsertAnalytics matches on patient_id; the aggregate columns are fully
// overwritten on match, inserted otherwise.
func (s *PostgresStorage) UpsertAnalytics(ctx context.Context, list []*biometrics.Analytics) error {
	for _, chunk := range lo.Chunk(list, pgutil.PageSize) {
		for _, a := range chunk {
			q := sqlf.InsertInto("biometrics_analytics").
				Set("patient_id", a.PatientID).
				Set("glucose_mean", a.GlucoseMean).
				Set("glucose_min", a.GlucoseMin).
				Set("glucose_max", a.GlucoseMax).
				Set("systolic_mean", a.SystolicMean).
				Set("systolic_min", a.SystolicMin).
				Set("systolic_max", a.SystolicMax).
				Set("diastolic_mean", a.DiastolicMean).
				Set("diastolic_min", a.DiastolicMin).
				Set("diastolic_max", a.DiastolicMax).
				Set("weight_mean", a.WeightMean).
				Set("weight_min", a.WeightMin).
				Set("weight_max", a.WeightMax).
				Clause(
					"ON CONFLICT (patient_id) DO UPDATE SET " +
						"glucose_mean = EXCLUDED.glucose_mean, glucose_min = EXCLUDED.glucose_min, glucose_max = EXCLUDED.glucose_max, " +
						"systolic_mean = EXCLUDED.systolic_mean, systolic_min = EXCLUDED.systolic_min, systolic_max = EXCLUDED.systolic_max, " +
						"diastolic_mean = EXCLUDED.diastolic_mean, diastolic_min = EXCLUDED.diastolic_min, diastolic_max = EXCLUDED.diastolic_max, " +
						"weight_mean = EXCLUDED.weight_mean, weight_min = EXCLUDED.weight_min, weight_max = EXCLUDED.weight_max")

			if _, err := q.ExecAndClose(ctx, s.base.DB); err != nil {
				return storage.InternalError(err)
			}
		}
	}
	return nil
}

// Export streams the raw numeric columns for the aggregation job.
func (s *PostgresStorage) Export(ctx context.Context) ([]biometrics.Sample, error) {
	var row struct {
		PatientID int64
		Glucose   sql.NullInt64
		Systolic  sql.NullInt64
		Diastolic sql.NullInt64
		Weight    sql.NullInt64
	}

	q := sqlf.From("biometrics b").
		Select("b.patient_id").To(&row.PatientID).
		Select("b.glucose").To(&row.Glucose).
		Select("b.systolic").To(&row.Systolic).
		Select("b.diastolic").To(&row.Diastolic).
		Select("b.weight").To(&row.Weight)

	var result []biometrics.Sample

	err := q.QueryAndClose(ctx, s.base.DB, func(rows *sql.Rows) {
		result = append(result, biometrics.Sample{
			PatientID: row.PatientID,
			Glucose:   nullableInt(row.Glucose),
			Systolic:  nullableInt(row.Systolic),
			Diastolic: nullableInt(row.Diastolic),
			Weight:    nullableInt(row.Weight),
		})
	})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storage.InternalError(err)
	}
	return result, nil
}

func (s *PostgresStorage) CollectEvents() []domain.Event {
	return s.base.CollectEvents()
}

func (s *PostgresStorage) Close() error {
	s.base.Close()
	return nil
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
