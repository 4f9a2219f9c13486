package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/burenotti/go_vitals_backend/internal/domain"
	"github.com/burenotti/go_vitals_backend/internal/pagination"
	"github.com/labstack/echo/v4"
)

type JsonErrorModel struct {
	Message string `json:"message"`
}

func JsonError(c echo.Context, status int, content any) error {
	data := &JsonErrorModel{Message: fmt.Sprintf("%v", content)}
	return c.JSON(status, data)
}

// serviceError maps the error taxonomy onto the uniform error body:
// malformed cursors and validation failures are client errors, everything
// else is a storage failure.
func serviceError(c echo.Context, err error, notFound ...error) error {
	var vErr *domain.ValidationError
	switch {
	case errors.Is(err, pagination.ErrMalformedCursor):
		return JsonError(c, http.StatusBadRequest, err)
	case errors.As(err, &vErr):
		return JsonError(c, http.StatusBadRequest, err)
	}

	for _, nf := range notFound {
		if errors.Is(err, nf) {
			return JsonError(c, http.StatusNotFound, err)
		}
	}
	return JsonError(c, http.StatusInternalServerError, err)
}
