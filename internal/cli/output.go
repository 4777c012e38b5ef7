package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"mailorder/internal"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the pipeline or a mailbox call failed
	ExitCommandError = 2 // bad flags, missing files, unknown ids
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// pipelineExitError maps a pipeline error to an exit code. Invalid input is
// the caller's fault; everything else is a runtime failure.
func pipelineExitError(message string, err error) *ExitError {
	if errors.Is(err, internal.ErrInvalidInput) {
		return WrapExitError(ExitCommandError, message, err)
	}
	return WrapExitError(ExitFailure, message, err)
}

// GetExitCode returns ExitFailure for errors that carry no code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or as a JSON envelope.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the JSON envelope of every command result.
type CLIResponse struct {
	Status  string    `json:"status"`
	Data    any       `json:"data,omitempty"`
	Error   *CLIError `json:"error,omitempty"`
	TraceID string    `json:"traceId,omitempty"`
}

type CLIError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Success prints data. Text output relies on data implementing fmt.Stringer.
func (f *OutputFormatter) Success(data any) error {
	return f.SuccessWithTrace(data, "")
}

func (f *OutputFormatter) SuccessWithTrace(data any, traceID string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data, TraceID: traceID})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Failure reports err with its pipeline error kind.
func (f *OutputFormatter) Failure(err error, traceID string) error {
	kind := internal.ErrorKind(err)
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status:  "error",
			Error:   &CLIError{Kind: kind, Message: err.Error()},
			TraceID: traceID,
		})
	}
	if traceID != "" {
		_, werr := fmt.Fprintf(f.Writer, "Error [%s] trace=%s: %v\n", kind, traceID, err)
		return werr
	}
	_, werr := fmt.Fprintf(f.Writer, "Error [%s]: %v\n", kind, err)
	return werr
}
