package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes. Success is 0.
const (
	ExitFailure      = 1 // pipeline fault, cancelled run or failed scenarios
	ExitCommandError = 2 // unreadable file, bad config, bad flags
)

// Codes carried in JSON error responses.
const (
	CodeFault      = "E_FAULT"
	CodeCancelled  = "E_CANCELLED"
	CodeTestFailed = "E_TEST_FAILED"
)

// ExitError carries the process exit code for a command error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// withExit attaches code to err, prefixed with msg. A nil err yields an
// error reading msg alone.
func withExit(code int, msg string, err error) error {
	if err == nil {
		return &ExitError{Code: code, Err: errors.New(msg)}
	}
	return &ExitError{Code: code, Err: fmt.Errorf("%s: %w", msg, err)}
}

// ExitCode maps a command error to a process exit code: 0 for nil, the
// attached code for an ExitError, ExitFailure otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitFailure
}

// Response is the envelope of every --format json result.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failed command in a Response.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// printer writes command results as text or JSON envelopes. Bus messages
// go to diag when verbose.
type printer struct {
	json    bool
	out     io.Writer
	diag    io.Writer
	verbose bool
}

// ok prints data; text mode relies on its String method.
func (p *printer) ok(data any) error {
	if p.json {
		return p.encode(Response{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(p.out, data)
	return err
}

// fail prints an error response. Text mode shows details only when verbose.
func (p *printer) fail(code, message string, details any) error {
	if p.json {
		return p.encode(Response{Status: "error", Error: &ResponseError{Code: code, Message: message, Details: details}})
	}
	if _, err := fmt.Fprintf(p.out, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if p.verbose && details != nil {
		_, err := fmt.Fprintf(p.out, "Details: %v\n", details)
		return err
	}
	return nil
}

func (p *printer) logf(format string, args ...any) {
	if p.verbose {
		fmt.Fprintf(p.diag, format+"\n", args...)
	}
}

func (p *printer) encode(resp Response) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
