package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

// mapError translates engine and storage failures into ServiceErrors. Errors
// that are already ServiceErrors pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}

	switch {
	case errors.Is(err, domain.ErrCycleDetected):
		return newServiceError(http.StatusUnprocessableEntity, "ELECTORAL_CYCLE_DETECTED", "hierarchy contains a cycle", err)
	case errors.Is(err, domain.ErrMultipleRoots):
		return newServiceError(http.StatusUnprocessableEntity, "ELECTORAL_INVALID_ROOT", "hierarchy root is invalid", err)
	case errors.Is(err, domain.ErrUnknownNode),
		errors.Is(err, domain.ErrUnknownParent),
		errors.Is(err, domain.ErrDuplicateNode),
		errors.Is(err, domain.ErrInvalidLevel),
		errors.Is(err, domain.ErrInvalidLevelOrder):
		return newServiceError(http.StatusUnprocessableEntity, "ELECTORAL_INVALID_HIERARCHY", "hierarchy is invalid", err)
	case errors.Is(err, domain.ErrInvalidRecord),
		errors.Is(err, domain.ErrInvalidEstimate):
		return newServiceError(http.StatusUnprocessableEntity, "ELECTORAL_INVALID_INPUT", "input records are invalid", err)
	case errors.Is(err, domain.ErrInvalidTrialCount):
		return newServiceError(http.StatusBadRequest, "ELECTORAL_INVALID_PARAMS", "invalid simulation parameters", err)
	case errors.Is(err, domain.ErrAggregationInconsistency):
		return newServiceError(http.StatusConflict, "ELECTORAL_INCONSISTENT", "aggregates violate the child-sum invariant", err)
	case errors.Is(err, domain.ErrScopeMismatch):
		return newServiceError(http.StatusUnprocessableEntity, "ELECTORAL_SCOPE_MISMATCH", "projection and outcome scopes differ", err)
	case errors.Is(err, domain.ErrDivisionUndefined):
		return newServiceError(http.StatusUnprocessableEntity, "ELECTORAL_DIVISION_UNDEFINED", "metric undefined for zero denominator", err)
	case errors.Is(err, domain.ErrReportExists):
		return newServiceError(http.StatusConflict, "ELECTORAL_REPORT_EXISTS", "accuracy report already exists", err)
	case errors.Is(err, domain.ErrNotFound):
		return newServiceError(http.StatusNotFound, "ELECTORAL_NOT_FOUND", "not found", err)
	}
	return mapPgError(err)
}

func mapPgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return newServiceError(http.StatusNotFound, "ELECTORAL_NOT_FOUND", "not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		if pgErr.ConstraintName == "accuracy_reports_pkey" {
			return newServiceError(http.StatusConflict, "ELECTORAL_REPORT_EXISTS", "accuracy report already exists", err)
		}
		return newServiceError(http.StatusConflict, "ELECTORAL_CONFLICT", "unique constraint violated", err)
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		return newServiceError(http.StatusUnprocessableEntity, "ELECTORAL_REFERENCE_NOT_FOUND", "foreign key violation", err)
	case "23514": // check_violation
		recordWriteConflict("check")
		return newServiceError(http.StatusUnprocessableEntity, "ELECTORAL_INVALID_INPUT", "check constraint violated", err)
	default:
		return newServiceError(http.StatusInternalServerError, "ELECTORAL_INTERNAL", fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}
