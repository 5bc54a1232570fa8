package main

import (
	"errors"
	"fmt"
)

// ExitError carries the process exit status to main. Err may be nil when the
// command already printed everything worth saying.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func fail(err error) error { return &ExitError{Code: 1, Err: err} }

func failf(format string, args ...any) error { return fail(fmt.Errorf(format, args...)) }

// exitCode maps any error returned by a command to a process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}
