package main

import (
	"errors"
	"fmt"

	"github.com/BaSui01/crewcheck/types"
)

// Process exit codes.
const (
	exitOK          = 0
	exitFailures    = 1 // a task failed or errored
	exitInvalid     = 2 // bad flags, config or scenario data
	exitPersistence = 3 // a report could not be written
)

// exitError carries the process exit code up to main.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func withExit(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// errTasksFailed is returned by run when every report was written but at
// least one task did not pass.
var errTasksFailed = errors.New("one or more tasks failed")

// exitCode maps an error from the command tree to a process exit code.
// Errors without an explicit code are treated as usage errors.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	switch {
	case errors.Is(err, errTasksFailed):
		return exitFailures
	case types.IsCode(err, types.ErrPersistence):
		return exitPersistence
	}
	return exitInvalid
}

// invalidf is a usage or definition error.
func invalidf(format string, args ...any) error {
	return withExit(exitInvalid, fmt.Errorf(format, args...))
}
