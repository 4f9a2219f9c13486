package api

import (
	"log/slog"
	"net"
	"strconv"

	"github.com/burenotti/go_vitals_backend/internal/adapter/storage"
	biometricservice "github.com/burenotti/go_vitals_backend/internal/app/biometrics"
	patientservice "github.com/burenotti/go_vitals_backend/internal/app/patient"
	"github.com/burenotti/go_vitals_backend/internal/app/unitofwork"
)

type Option func(*Server)

func Addr(host string, port int) Option {
	return func(s *Server) {
		s.addr = net.JoinHostPort(host, strconv.Itoa(port))
	}
}

func Logger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func DBContext(db storage.DBContext) Option {
	return func(s *Server) {
		s.db = db
	}
}

func PatientService(service *patientservice.Service) Option {
	return func(s *Server) {
		s.patientService = service
	}
}

func BiometricService(service *biometricservice.Service) Option {
	return func(s *Server) {
		s.biometricService = service
	}
}

func MessageBus(bus unitofwork.MessageBus) Option {
	return func(s *Server) {
		s.msgBus = bus
	}
}
