package etl

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/burenotti/go_vitals_backend/internal/adapter/storage"
	biometricservice "github.com/burenotti/go_vitals_backend/internal/app/biometrics"
	"github.com/burenotti/go_vitals_backend/internal/app/unitofwork"
	"github.com/burenotti/go_vitals_backend/internal/domain/units"
)

var testDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	dateOnly,
}

type BiometricsLoader struct {
	db      storage.DBContext
	bus     unitofwork.MessageBus
	service *biometricservice.Service
	logger  *slog.Logger
}

func NewBiometricsLoader(
	db storage.DBContext,
	bus unitofwork.MessageBus,
	service *biometricservice.Service,
	logger *slog.Logger,
) *BiometricsLoader {
	return &BiometricsLoader{
		db:      db,
		bus:     bus,
		service: service,
		logger:  logger,
	}
}

// Run loads a CSV of biometric readings from path. The file carries metric
// weights. Unparseable and invalid rows are logged and skipped.
func (l *BiometricsLoader) Run(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open biometrics file: %w", err)
	}
	defer f.Close()

	records, parseFailures, err := readBiometricsCSV(f)
	if err != nil {
		return 0, err
	}

	for _, fail := range parseFailures {
		l.logger.Warn("biometrics row unparseable", "line", fail.line, "error", fail.err)
	}

	uow := unitofwork.New[*biometricservice.AtomicContext](
		l.db, biometricservice.NewAtomicContext, l.bus, l.logger,
	)

	rejects, err := l.service.InsertBiometrics(ctx, uow, units.Metric, records)
	if err != nil {
		return 0, err
	}

	for _, r := range rejects {
		l.logger.Warn("biometrics record rejected",
			"patient_id", r.Record.PatientID,
			"test_date", r.Record.TestDate,
			"error", r.Err,
		)
	}

	inserted := len(records) - len(rejects)
	l.logger.Info("biometrics batch processed",
		"file", path,
		"inserted", inserted,
		"rejected", len(rejects),
		"unparseable", len(parseFailures),
	)
	return inserted, nil
}

type parseFailure struct {
	line int
	err  error
}

// readBiometricsCSV parses the header-led CSV into service records. Rows
// that cannot be parsed at all are collected separately from validation
// rejects: both kinds are skipped, neither aborts the batch.
func readBiometricsCSV(r io.Reader) ([]biometricservice.Record, []parseFailure, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}
	for _, required := range []string{"patient_id", "test_date"} {
		if _, ok := columns[required]; !ok {
			return nil, nil, fmt.Errorf("csv header misses column %q", required)
		}
	}

	var records []biometricservice.Record
	var failures []parseFailure

	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			failures = append(failures, parseFailure{line: line, err: err})
			continue
		}

		record, err := parseBiometricsRow(columns, row)
		if err != nil {
			failures = append(failures, parseFailure{line: line, err: err})
			continue
		}
		records = append(records, record)
	}

	return records, failures, nil
}

func parseBiometricsRow(columns map[string]int, row []string) (biometricservice.Record, error) {
	var record biometricservice.Record

	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	patientID, err := strconv.ParseInt(field("patient_id"), 10, 64)
	if err != nil {
		return record, fmt.Errorf("invalid patient_id: %w", err)
	}
	record.PatientID = patientID

	record.TestDate, err = parseTestDate(field("test_date"))
	if err != nil {
		return record, err
	}

	if record.Glucose, err = optionalInt(field("glucose")); err != nil {
		return record, fmt.Errorf("invalid glucose: %w", err)
	}
	if record.Systolic, err = optionalInt(field("systolic")); err != nil {
		return record, fmt.Errorf("invalid systolic: %w", err)
	}
	if record.Diastolic, err = optionalInt(field("diastolic")); err != nil {
		return record, fmt.Errorf("invalid diastolic: %w", err)
	}

	if raw := field("weight"); raw != "" {
		w, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return record, fmt.Errorf("invalid weight: %w", err)
		}
		record.Weight = &w
	}

	return record, nil
}

func parseTestDate(raw string) (time.Time, error) {
	for _, layout := range testDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid test_date %q", raw)
}

func optionalInt(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
