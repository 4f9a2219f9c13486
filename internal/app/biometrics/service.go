package biometricservice

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/burenotti/go_vitals_backend/internal/app/unitofwork"
	"github.com/burenotti/go_vitals_backend/internal/domain"
	"github.com/burenotti/go_vitals_backend/internal/domain/biometrics"
	"github.com/burenotti/go_vitals_backend/internal/domain/units"
	"github.com/burenotti/go_vitals_backend/internal/pagination"
	"github.com/samber/lo"
)

// Record is the unit-bearing shape of one reading crossing the service
// boundary. Weight is in the caller's unit system; storage is always grams.
type Record struct {
	PatientID    int64
	BiometricsID *int64
	TestDate     time.Time
	Glucose      *int
	Systolic     *int
	Diastolic    *int
	Weight       *float64
}

// Reject pairs an invalid record with its validation error.
type Reject struct {
	Record Record
	Err    error
}

// AnalyticsRecord is the caller-facing aggregate snapshot. Weight fields are
// kilograms; the other columns keep their raw units.
type AnalyticsRecord struct {
	PatientID     int64
	GlucoseMean   float64
	GlucoseMin    float64
	GlucoseMax    float64
	SystolicMean  float64
	SystolicMin   float64
	SystolicMax   float64
	DiastolicMean float64
	DiastolicMin  float64
	DiastolicMax  float64
	WeightMean    float64
	WeightMin     float64
	WeightMax     float64
}

type Service struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Service {
	return &Service{logger: logger}
}

// History returns one page of a patient's readings resuming after the
// cursor, with weight converted into the requested unit system.
func (s *Service) History(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	patientID int64,
	unit units.System,
	after pagination.HistoryCursor,
	limit int,
) (result []Record, outErr error) {
	outErr = uow.Atomic(ctx, func(ctx *AtomicContext) error {
		list, err := ctx.BiometricStorage.History(ctx.Context(), patientID, after, limit)
		if err != nil {
			return err
		}

		result = make([]Record, 0, len(list))
		for _, b := range list {
			var weight *float64
			if b.Weight != nil {
				w := unit.FromGrams(*b.Weight)
				weight = &w
			}
			result = append(result, Record{
				PatientID:    b.PatientID,
				BiometricsID: b.BiometricsID,
				TestDate:     b.TestDate,
				Glucose:      b.Glucose,
				Systolic:     b.Systolic,
				Diastolic:    b.Diastolic,
				Weight:       weight,
			})
		}
		return ctx.Commit()
	})
	return
}

// InsertBiometrics validates and persists a batch, returning rejects for the
// records that failed validation.
func (s *Service) InsertBiometrics(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	unit units.System,
	records []Record,
) ([]Reject, error) {
	return s.write(ctx, uow, unit, records, func(ctx *AtomicContext, list []*biometrics.Biometrics) error {
		return ctx.BiometricStorage.Add(ctx.Context(), list)
	})
}

// UpdateBiometrics overwrites existing readings by (patient_id, biometrics_id).
func (s *Service) UpdateBiometrics(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	unit units.System,
	records []Record,
) ([]Reject, error) {
	return s.write(ctx, uow, unit, records, func(ctx *AtomicContext, list []*biometrics.Biometrics) error {
		return ctx.BiometricStorage.Update(ctx.Context(), list)
	})
}

// UpsertBiometrics inserts or fully overwrites readings matched on
// (patient_id, biometrics_id).
func (s *Service) UpsertBiometrics(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	unit units.System,
	records []Record,
) ([]Reject, error) {
	return s.write(ctx, uow, unit, records, func(ctx *AtomicContext, list []*biometrics.Biometrics) error {
		return ctx.BiometricStorage.Upsert(ctx.Context(), list)
	})
}

// DeleteBiometrics removes readings by (patient_id, biometrics_id). Records
// still pass full validation before the delete is attempted.
func (s *Service) DeleteBiometrics(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	unit units.System,
	records []Record,
) ([]Reject, error) {
	return s.write(ctx, uow, unit, records, func(ctx *AtomicContext, list []*biometrics.Biometrics) error {
		return ctx.BiometricStorage.Delete(ctx.Context(), list)
	})
}

// PatientAnalytics returns the aggregate snapshot of one patient. Only the
// weight aggregates are unit-converted, grams to kilograms.
func (s *Service) PatientAnalytics(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	patientID int64,
) (result *AnalyticsRecord, outErr error) {
	outErr = uow.Atomic(ctx, func(ctx *AtomicContext) error {
		a, err := ctx.BiometricStorage.Analytics(ctx.Context(), patientID)
		if err != nil {
			return err
		}

		result = &AnalyticsRecord{
			PatientID:     a.PatientID,
			GlucoseMean:   float64(a.GlucoseMean),
			GlucoseMin:    float64(a.GlucoseMin),
			GlucoseMax:    float64(a.GlucoseMax),
			SystolicMean:  float64(a.SystolicMean),
			SystolicMin:   float64(a.SystolicMin),
			SystolicMax:   float64(a.SystolicMax),
			DiastolicMean: float64(a.DiastolicMean),
			DiastolicMin:  float64(a.DiastolicMin),
			DiastolicMax:  float64(a.DiastolicMax),
			WeightMean:    units.GramsToKilograms(float64(a.WeightMean)),
			WeightMin:     units.GramsToKilograms(float64(a.WeightMin)),
			WeightMax:     units.GramsToKilograms(float64(a.WeightMax)),
		}
		return ctx.Commit()
	})
	return
}

// UpsertAnalytics persists aggregate rows keyed by patient_id, truncating
// the float means back to the stored integer columns.
func (s *Service) UpsertAnalytics(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	records []AnalyticsRecord,
) error {
	list := lo.Map(records, func(r AnalyticsRecord, _ int) *biometrics.Analytics {
		return &biometrics.Analytics{
			PatientID:     r.PatientID,
			GlucoseMean:   int(r.GlucoseMean),
			GlucoseMin:    int(r.GlucoseMin),
			GlucoseMax:    int(r.GlucoseMax),
			SystolicMean:  int(r.SystolicMean),
			SystolicMin:   int(r.SystolicMin),
			SystolicMax:   int(r.SystolicMax),
			DiastolicMean: int(r.DiastolicMean),
			DiastolicMin:  int(r.DiastolicMin),
			DiastolicMax:  int(r.DiastolicMax),
			WeightMean:    int(r.WeightMean),
			WeightMin:     int(r.WeightMin),
			WeightMax:     int(r.WeightMax),
		}
	})

	return uow.Atomic(ctx, func(ctx *AtomicContext) error {
		if err := ctx.BiometricStorage.UpsertAnalytics(ctx.Context(), list); err != nil {
			return err
		}
		return ctx.Commit()
	})
}

// Aggregate recomputes mean/min/max per patient from the raw readings and
// upserts the result. Rerunning over the same data yields the same rows.
func (s *Service) Aggregate(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
) error {
	return uow.Atomic(ctx, func(ctx *AtomicContext) error {
		samples, err := ctx.BiometricStorage.Export(ctx.Context())
		if err != nil {
			return err
		}

		groups := lo.GroupBy(samples, func(s biometrics.Sample) int64 {
			return s.PatientID
		})

		ids := lo.Keys(groups)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		list := make([]*biometrics.Analytics, 0, len(ids))
		for _, id := range ids {
			list = append(list, aggregateGroup(id, groups[id]))
		}

		if err := ctx.BiometricStorage.UpsertAnalytics(ctx.Context(), list); err != nil {
			return err
		}
		return ctx.Commit()
	})
}

func aggregateGroup(patientID int64, samples []biometrics.Sample) *biometrics.Analytics {
	glucose := newColumnStats()
	systolic := newColumnStats()
	diastolic := newColumnStats()
	weight := newColumnStats()

	for _, s := range samples {
		glucose.observe(s.Glucose)
		systolic.observe(s.Systolic)
		diastolic.observe(s.Diastolic)
		weight.observe(s.Weight)
	}

	return &biometrics.Analytics{
		PatientID:     patientID,
		GlucoseMean:   glucose.mean(),
		GlucoseMin:    glucose.min,
		GlucoseMax:    glucose.max,
		SystolicMean:  systolic.mean(),
		SystolicMin:   systolic.min,
		SystolicMax:   systolic.max,
		DiastolicMean: diastolic.mean(),
		DiastolicMin:  diastolic.min,
		DiastolicMax:  diastolic.max,
		WeightMean:    weight.mean(),
		WeightMin:     weight.min,
		WeightMax:     weight.max,
	}
}

// columnStats accumulates one numeric column, skipping absent values the way
// the aggregation job always has.
type columnStats struct {
	sum   int
	count int
	min   int
	max   int
}

func newColumnStats() *columnStats {
	return &columnStats{}
}

func (c *columnStats) observe(v *int) {
	if v == nil {
		return
	}
	if c.count == 0 || *v < c.min {
		c.min = *v
	}
	if c.count == 0 || *v > c.max {
		c.max = *v
	}
	c.sum += *v
	c.count++
}

func (c *columnStats) mean() int {
	if c.count == 0 {
		return 0
	}
	return c.sum / c.count
}

// write maps inbound records to validated entities, converts weight to
// grams, collects rejects and hands the valid batch to op.
func (s *Service) write(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	unit units.System,
	records []Record,
	op func(*AtomicContext, []*biometrics.Biometrics) error,
) (rejects []Reject, outErr error) {
	valid := make([]*biometrics.Biometrics, 0, len(records))

	for _, r := range records {
		var weight *int
		if r.Weight != nil {
			g := unit.ToGrams(*r.Weight)
			weight = &g
		}

		b, err := biometrics.New(
			r.PatientID, r.BiometricsID, r.TestDate,
			r.Glucose, r.Systolic, r.Diastolic, weight,
		)
		if err != nil {
			var vErr *domain.ValidationError
			if !errors.As(err, &vErr) {
				return nil, err
			}
			rejects = append(rejects, Reject{Record: r, Err: err})
			continue
		}
		valid = append(valid, b)
	}

	if len(valid) == 0 {
		return rejects, nil
	}

	outErr = uow.Atomic(ctx, func(ctx *AtomicContext) error {
		if err := op(ctx, valid); err != nil {
			return err
		}
		return ctx.Commit()
	})
	return
}
