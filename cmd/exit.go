// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
)

// Exit codes shared by the link test commands
const (
	exitOK         = 0
	exitFailed     = 1 // timeout or missing reply
	exitConnection = 2
)

// ExitError carries a process exit code out of a command. A nil Err means
// the command already reported the failure itself.
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

func (e *ExitError) Unwrap() error {
	return e.Err
}

func connectionError(err error) error {
	return &ExitError{Code: exitConnection, Err: fmt.Errorf("connection error: %w", err)}
}

// ExitCode maps an error returned by Execute to a process exit code
func ExitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return exitFailed
}
