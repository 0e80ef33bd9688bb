package presenter

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arxiv/relations"
	"github.com/arxiv/relations/internal/domain"
)

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

func Created(c echo.Context, payload any) error {
	return c.JSON(http.StatusCreated, payload)
}

func BadRequest(c echo.Context, err error) error {
	return BadRequestMessage(c, err.Error())
}

func BadRequestMessage(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, relations.ErrorResponse{Error: msg})
}

func Unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, relations.ErrorResponse{Error: msg})
}

func NotFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, relations.ErrorResponse{Error: msg})
}

func Conflict(c echo.Context, err error) error {
	return c.JSON(http.StatusConflict, relations.ErrorResponse{Error: err.Error()})
}

func InternalError(c echo.Context, err error) error {
	return c.JSON(http.StatusInternalServerError, relations.ErrorResponse{Error: err.Error()})
}

func Unavailable(c echo.Context, err error) error {
	return c.JSON(http.StatusServiceUnavailable, relations.ErrorResponse{Error: err.Error()})
}

// StatusOf maps a lineage or query error to its HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInactivePredecessor):
		return http.StatusConflict
	case errors.Is(err, domain.ErrLookup):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err with the status StatusOf assigns to it.
func Error(c echo.Context, err error) error {
	return c.JSON(StatusOf(err), relations.ErrorResponse{Error: err.Error()})
}

func Relations(rels []domain.Relation) []relations.Relation {
	result := make([]relations.Relation, 0, len(rels))
	for _, rel := range rels {
		result = append(result, rel.ToWire())
	}
	return result
}

func LineageEntries(entries []domain.LineageEntry) []relations.LineageEntry {
	result := make([]relations.LineageEntry, 0, len(entries))
	for _, entry := range entries {
		result = append(result, entry.ToWire())
	}
	return result
}
