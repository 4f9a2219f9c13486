package api

import (
	"net/http"

	patientservice "github.com/burenotti/go_vitals_backend/internal/app/patient"
	"github.com/burenotti/go_vitals_backend/internal/app/unitofwork"
	"github.com/burenotti/go_vitals_backend/internal/pagination"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

const dateOnly = "2006-01-02"

func (s *Server) MountPatients() {
	s.handler.GET("/patients", s.ListPatients)
}

func (s *Server) getPatientUoW() *unitofwork.UnitOfWork[*patientservice.AtomicContext] {
	return unitofwork.New[*patientservice.AtomicContext](
		s.db,
		patientservice.NewAtomicContext,
		s.msgBus,
		s.logger,
	)
}

type ListPatientsRequest struct {
	NextPageToken string `query:"next_page_token"`
	Limit         int    `query:"limit" validate:"omitempty,gt=0"`
}

type PatientModel struct {
	PatientID   int64  `json:"patient_id"`
	Name        string `json:"name"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
	Address     string `json:"address"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Sex         string `json:"sex"`
}

type ListPatientsResponse struct {
	Patients      []PatientModel `json:"patients"`
	NextPageToken string         `json:"next_page_token"`
}

// ListPatients serves one page of the patient list. The first page of an
// empty collection is a 404; an exhausted cursor is an empty 200 page with
// no next token, so the end of pagination stays distinguishable.
func (s *Server) ListPatients(c echo.Context) error {
	var req ListPatientsRequest
	if err := s.bind(c, &req); err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}
	if req.Limit == 0 {
		req.Limit = defaultPageLimit
	}

	afterID, err := pagination.ParsePatientToken(req.NextPageToken)
	if err != nil {
		return serviceError(c, err)
	}

	uow := s.getPatientUoW()
	ctx := c.Request().Context()

	records, err := s.patientService.ListPatients(ctx, uow, afterID, req.Limit)
	if err != nil {
		return serviceError(c, err)
	}

	if len(records) == 0 {
		if afterID == 0 {
			return JsonError(c, http.StatusNotFound, "no patients found")
		}
		return c.JSON(http.StatusOK, ListPatientsResponse{Patients: []PatientModel{}})
	}

	return c.JSON(http.StatusOK, ListPatientsResponse{
		Patients: lo.Map(records, func(r patientservice.Record, _ int) PatientModel {
			return PatientModel{
				PatientID:   r.PatientID,
				Name:        r.Name,
				DateOfBirth: r.DateOfBirth.Format(dateOnly),
				Gender:      r.Gender,
				Address:     r.Address,
				Email:       r.Email,
				Phone:       r.Phone,
				Sex:         r.Sex,
			}
		}),
		NextPageToken: pagination.PatientToken(records[len(records)-1].PatientID),
	})
}
