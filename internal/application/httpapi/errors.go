package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ersonp/relgraph/internal/application/handlers"
	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/services"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// errorBody is the JSON envelope of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
	// Report accompanies a rejected atomic batch.
	Report *handlers.BulkReport `json:"report,omitempty"`
}

type errorDetail struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Field      string                 `json:"field,omitempty"`
	Violations []entities.Violation   `json:"violations,omitempty"`
	Current    *entities.Relationship `json:"current,omitempty"`
}

// classify maps an error to its HTTP status and response detail.
func classify(err error) (int, errorDetail) {
	detail := errorDetail{Message: err.Error()}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		detail.Code = "http_error"
		if he.Code == http.StatusNotFound {
			detail.Code = "not_found"
		}
		detail.Message = fmt.Sprint(he.Message)
		return he.Code, detail
	}

	var malformed *entities.MalformedRecordError
	if errors.As(err, &malformed) {
		detail.Field = malformed.Field
	}
	var invalid *entities.ValidationError
	if errors.As(err, &invalid) {
		detail.Violations = invalid.Violations
	}
	var conflict *entities.ConflictError
	if errors.As(err, &conflict) {
		detail.Current = conflict.Current
	}

	switch {
	case errors.Is(err, entities.ErrMalformedRecord):
		detail.Code = "malformed_record"
		return http.StatusBadRequest, detail
	case errors.Is(err, entities.ErrTenantMismatch):
		detail.Code = "tenant_mismatch"
		return http.StatusBadRequest, detail
	case errors.Is(err, services.ErrDefaultType):
		detail.Code = "default_type"
		return http.StatusBadRequest, detail
	case errors.Is(err, entities.ErrDepthExceeded):
		detail.Code = "depth_exceeded"
		return http.StatusUnprocessableEntity, detail
	case errors.Is(err, entities.ErrValidationFailure):
		detail.Code = "validation_failure"
		return http.StatusUnprocessableEntity, detail
	case errors.Is(err, entities.ErrNotFound):
		detail.Code = "not_found"
		return http.StatusNotFound, detail
	case errors.Is(err, entities.ErrConflict):
		detail.Code = "conflict"
		return http.StatusConflict, detail
	case errors.Is(err, services.ErrTypeExists):
		detail.Code = "type_exists"
		return http.StatusConflict, detail
	case errors.Is(err, entities.ErrStorageUnavailable):
		detail.Code = "storage_unavailable"
		return http.StatusServiceUnavailable, detail
	case errors.Is(err, entities.ErrScoringTimeout):
		detail.Code = "scoring_timeout"
		return http.StatusGatewayTimeout, detail
	case errors.Is(err, handlers.ErrIndexDisabled):
		detail.Code = "search_disabled"
		return http.StatusNotImplemented, detail
	}

	detail.Code = "internal"
	detail.Message = http.StatusText(http.StatusInternalServerError)
	return http.StatusInternalServerError, detail
}

func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, detail := classify(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request error",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err),
			)
		}

		body := errorBody{Error: detail}
		var rejected *batchRejected
		if errors.As(err, &rejected) {
			body.Report = rejected.report
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Warn("writing error response", zap.Error(writeErr))
		}
	}
}

// batchRejected carries the per-item report of a rejected atomic batch to
// the error handler.
type batchRejected struct {
	err    error
	report *handlers.BulkReport
}

func (e *batchRejected) Error() string { return e.err.Error() }

func (e *batchRejected) Unwrap() error { return e.err }

// bindError turns echo binding failures into malformed-record errors.
func bindError(err error) error {
	if err == nil {
		return nil
	}
	var be *echo.BindingError
	if errors.As(err, &be) {
		return entities.Malformed(be.Field, "invalid value %v", be.Values)
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return entities.Malformed("body", "%v", he.Message)
	}
	return entities.Malformed("body", "%v", err)
}
