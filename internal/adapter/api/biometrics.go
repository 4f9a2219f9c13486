package api

import (
	"net/http"
	"time"

	biometricservice "github.com/burenotti/go_vitals_backend/internal/app/biometrics"
	"github.com/burenotti/go_vitals_backend/internal/app/unitofwork"
	"github.com/burenotti/go_vitals_backend/internal/domain/biometrics"
	"github.com/burenotti/go_vitals_backend/internal/domain/patient"
	"github.com/burenotti/go_vitals_backend/internal/domain/units"
	"github.com/burenotti/go_vitals_backend/internal/pagination"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

func (s *Server) MountBiometrics() {
	s.handler.GET("/patient/:patient_id/history", s.GetHistory)
	s.handler.GET("/patient/:patient_id/metrics", s.GetPatientMetrics)
	s.handler.POST("/biometrics", s.AddBiometrics)
	s.handler.PUT("/biometrics", s.UpsertBiometrics)
	s.handler.DELETE("/biometrics", s.DeleteBiometrics)
}

func (s *Server) getBiometricUoW() *unitofwork.UnitOfWork[*biometricservice.AtomicContext] {
	return unitofwork.New[*biometricservice.AtomicContext](
		s.db,
		biometricservice.NewAtomicContext,
		s.msgBus,
		s.logger,
	)
}

// filterableColumns is the set of history columns filter_by projects on.
var filterableColumns = []string{"glucose", "systolic", "diastolic", "weight"}

type GetHistoryRequest struct {
	PatientID     int64    `param:"patient_id" validate:"required"`
	NextPageToken string   `query:"next_page_token"`
	Limit         int      `query:"limit" validate:"omitempty,gt=0"`
	FilterBy      []string `query:"filter_by"`
}

type BiometricsModel struct {
	PatientID    int64     `json:"patient_id"`
	BiometricsID *int64    `json:"biometrics_id,omitempty"`
	TestDate     time.Time `json:"test_date"`
	Glucose      *int      `json:"glucose,omitempty"`
	Systolic     *int      `json:"systolic,omitempty"`
	Diastolic    *int      `json:"diastolic,omitempty"`
	Weight       *float64  `json:"weight,omitempty"`
}

type HistoryResponse struct {
	BiometricsHistory []BiometricsModel `json:"biometrics_history"`
	NextPageToken     string            `json:"next_page_token"`
}

// GetHistory serves one page of a patient's readings. filter_by keeps the
// requested subset of the filterable columns: the dropped set is the
// symmetric difference of the full set and the request.
func (s *Server) GetHistory(c echo.Context) error {
	var req GetHistoryRequest
	if err := s.bind(c, &req); err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}
	if req.Limit == 0 {
		req.Limit = defaultPageLimit
	}

	after, err := pagination.ParseHistoryToken(req.NextPageToken)
	if err != nil {
		return serviceError(c, err)
	}

	uow := s.getBiometricUoW()
	ctx := c.Request().Context()

	records, err := s.biometricService.History(ctx, uow, req.PatientID, units.Metric, after, req.Limit)
	if err != nil {
		return serviceError(c, err)
	}

	if len(records) == 0 {
		if req.NextPageToken == "" {
			return JsonError(c, http.StatusNotFound, "no biometrics found")
		}
		return c.JSON(http.StatusOK, HistoryResponse{BiometricsHistory: []BiometricsModel{}})
	}

	last := records[len(records)-1]
	next := pagination.HistoryCursor{TestDate: last.TestDate}
	if last.BiometricsID != nil {
		next.BiometricsID = *last.BiometricsID
	}

	models := lo.Map(records, func(r biometricservice.Record, _ int) BiometricsModel {
		return BiometricsModel{
			PatientID:    r.PatientID,
			BiometricsID: r.BiometricsID,
			TestDate:     r.TestDate,
			Glucose:      r.Glucose,
			Systolic:     r.Systolic,
			Diastolic:    r.Diastolic,
			Weight:       r.Weight,
		}
	})

	if len(req.FilterBy) != 0 {
		drop := symmetricDifference(filterableColumns, req.FilterBy)
		for i := range models {
			dropColumns(&models[i], drop)
		}
	}

	return c.JSON(http.StatusOK, HistoryResponse{
		BiometricsHistory: models,
		NextPageToken:     next.Token(),
	})
}

// symmetricDifference returns the elements present in exactly one of the two
// sets. Requesting a superset or a disjoint set therefore drops the
// complement, matching the documented filter_by contract.
func symmetricDifference(a, b []string) []string {
	inA := lo.SliceToMap(a, func(s string) (string, struct{}) { return s, struct{}{} })
	inB := lo.SliceToMap(b, func(s string) (string, struct{}) { return s, struct{}{} })

	var result []string
	for _, s := range a {
		if _, ok := inB[s]; !ok {
			result = append(result, s)
		}
	}
	for _, s := range b {
		if _, ok := inA[s]; !ok {
			result = append(result, s)
		}
	}
	return result
}

func dropColumns(m *BiometricsModel, drop []string) {
	for _, col := range drop {
		switch col {
		case "glucose":
			m.Glucose = nil
		case "systolic":
			m.Systolic = nil
		case "diastolic":
			m.Diastolic = nil
		case "weight":
			m.Weight = nil
		}
	}
}

type MetricsRequest struct {
	PatientID int64 `param:"patient_id" validate:"required"`
}

type AnalyticsModel struct {
	PatientID     int64   `json:"patient_id"`
	GlucoseMean   float64 `json:"glucose_mean"`
	GlucoseMin    float64 `json:"glucose_min"`
	GlucoseMax    float64 `json:"glucose_max"`
	SystolicMean  float64 `json:"systolic_mean"`
	SystolicMin   float64 `json:"systolic_min"`
	SystolicMax   float64 `json:"systolic_max"`
	DiastolicMean float64 `json:"diastolic_mean"`
	DiastolicMin  float64 `json:"diastolic_min"`
	DiastolicMax  float64 `json:"diastolic_max"`
	WeightMean    float64 `json:"weight_mean"`
	WeightMin     float64 `json:"weight_min"`
	WeightMax     float64 `json:"weight_max"`
}

func (s *Server) GetPatientMetrics(c echo.Context) error {
	var req MetricsRequest
	if err := s.bind(c, &req); err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	uow := s.getBiometricUoW()
	ctx := c.Request().Context()

	a, err := s.biometricService.PatientAnalytics(ctx, uow, req.PatientID)
	if err != nil {
		return serviceError(c, err, biometrics.ErrAnalyticsNotFound)
	}

	return c.JSON(http.StatusOK, AnalyticsModel{
		PatientID:     a.PatientID,
		GlucoseMean:   a.GlucoseMean,
		GlucoseMin:    a.GlucoseMin,
		GlucoseMax:    a.GlucoseMax,
		SystolicMean:  a.SystolicMean,
		SystolicMin:   a.SystolicMin,
		SystolicMax:   a.SystolicMax,
		DiastolicMean: a.DiastolicMean,
		DiastolicMin:  a.DiastolicMin,
		DiastolicMax:  a.DiastolicMax,
		WeightMean:    a.WeightMean,
		WeightMin:     a.WeightMin,
		WeightMax:     a.WeightMax,
	})
}

type BiometricsRequest struct {
	PatientID    int64     `json:"patient_id" validate:"required"`
	BiometricsID *int64    `json:"biometrics_id"`
	TestDate     time.Time `json:"test_date" validate:"required"`
	Glucose      *int      `json:"glucose"`
	Systolic     *int      `json:"systolic"`
	Diastolic    *int      `json:"diastolic"`
	Weight       *float64  `json:"weight"`
}

func (r BiometricsRequest) record() biometricservice.Record {
	return biometricservice.Record{
		PatientID:    r.PatientID,
		BiometricsID: r.BiometricsID,
		TestDate:     r.TestDate,
		Glucose:      r.Glucose,
		Systolic:     r.Systolic,
		Diastolic:    r.Diastolic,
		Weight:       r.Weight,
	}
}

// AddBiometrics records one reading. The API always speaks metric; imperial
// input only occurs on the batch side.
func (s *Server) AddBiometrics(c echo.Context) error {
	var req BiometricsRequest
	if err := s.bind(c, &req); err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	uow := s.getBiometricUoW()
	ctx := c.Request().Context()

	rejects, err := s.biometricService.InsertBiometrics(
		ctx, uow, units.Metric, []biometricservice.Record{req.record()},
	)
	if err != nil {
		return serviceError(c, err, patient.ErrPatientNotFound)
	}
	if len(rejects) != 0 {
		return JsonError(c, http.StatusBadRequest, rejects[0].Err)
	}

	return c.NoContent(http.StatusCreated)
}

func (s *Server) UpsertBiometrics(c echo.Context) error {
	var req BiometricsRequest
	if err := s.bind(c, &req); err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	uow := s.getBiometricUoW()
	ctx := c.Request().Context()

	rejects, err := s.biometricService.UpsertBiometrics(
		ctx, uow, units.Metric, []biometricservice.Record{req.record()},
	)
	if err != nil {
		return serviceError(c, err, patient.ErrPatientNotFound)
	}
	if len(rejects) != 0 {
		return JsonError(c, http.StatusBadRequest, rejects[0].Err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) DeleteBiometrics(c echo.Context) error {
	var req BiometricsRequest
	if err := s.bind(c, &req); err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	uow := s.getBiometricUoW()
	ctx := c.Request().Context()

	rejects, err := s.biometricService.DeleteBiometrics(
		ctx, uow, units.Metric, []biometricservice.Record{req.record()},
	)
	if err != nil {
		return serviceError(c, err)
	}
	if len(rejects) != 0 {
		return JsonError(c, http.StatusBadRequest, rejects[0].Err)
	}

	return c.NoContent(http.StatusNoContent)
}
