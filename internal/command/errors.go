package command

import (
	"fmt"
	"strings"
	"time"
)

// Failure reports a command that ran but did not succeed.
type Failure struct {
	Command  string
	ExitCode int
	Stderr   string
	// Err is set when the process could not be started or waited on.
	Err error
}

func (f *Failure) Error() string {
	if msg := strings.TrimSpace(f.Stderr); msg != "" {
		return msg
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Command, f.Err)
	}
	return fmt.Sprintf("%s exited with code %d", f.Command, f.ExitCode)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// TimeoutError reports a command killed after exceeding its time budget.
type TimeoutError struct {
	Command string
	Timeout time.Duration
	Stderr  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Command, e.Timeout)
}
