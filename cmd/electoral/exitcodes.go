package main

import (
	"errors"

	"github.com/iota-uz/iota-electoral/modules/electoral/services"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK          = 0
	exitValidation  = 2
	exitUsage       = 3
	exitDB          = 4
	exitDBWrite     = 5
	exitConsistency = 6
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}

// classify attaches an exit code to a service error by its code. Errors that
// already carry one pass through; anything else is a storage failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return err
	}
	var se *services.ServiceError
	if !errors.As(err, &se) {
		return withCode(exitDB, err)
	}
	switch se.Code {
	case "ELECTORAL_INCONSISTENT":
		return withCode(exitConsistency, err)
	case "ELECTORAL_REPORT_EXISTS", "ELECTORAL_CONFLICT", "ELECTORAL_REFERENCE_NOT_FOUND":
		return withCode(exitDBWrite, err)
	case "ELECTORAL_INTERNAL":
		return withCode(exitDB, err)
	case "ELECTORAL_INVALID_PARAMS":
		return withCode(exitUsage, err)
	default:
		return withCode(exitValidation, err)
	}
}
