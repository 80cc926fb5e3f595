package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"invitation-app/internal/contacts"
	"invitation-app/internal/events"
	"invitation-app/internal/storage"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // command ran but failed, e.g. some invitations not delivered
	ExitCommandError = 2 // bad flags, arguments or format
)

// Error codes used in JSON error responses.
const (
	ErrCodeGeneric    = "E001"
	ErrCodeNotFound   = "E002"
	ErrCodeValidation = "E003"
	ErrCodeStorage    = "E004"
	ErrCodeDelivery   = "E005"
	ErrCodeUsage      = "E006"
)

// ExitError carries a process exit code alongside the error.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
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

// GetExitCode maps err to a process exit code.
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

// errorCode classifies err for JSON output.
func errorCode(err error) string {
	var exitErr *ExitError
	switch {
	case errors.Is(err, contacts.ErrNotFound), errors.Is(err, events.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, contacts.ErrNameRequired), errors.Is(err, contacts.ErrEmailRequired),
		errors.Is(err, contacts.ErrInvalidCSV), errors.Is(err, events.ErrInvalidStatus),
		errors.Is(err, events.ErrInvalidSendMethod), errors.Is(err, events.ErrTitleRequired),
		errors.Is(err, events.ErrDateRequired), errors.Is(err, errInvalidPhoto):
		return ErrCodeValidation
	case errors.Is(err, storage.ErrCorruptDocument), errors.Is(err, storage.ErrStorage),
		errors.Is(err, storage.ErrLock):
		return ErrCodeStorage
	case errors.Is(err, errDeliveryFailed):
		return ErrCodeDelivery
	case errors.As(err, &exitErr) && exitErr.Code == ExitCommandError:
		return ErrCodeUsage
	}
	return ErrCodeGeneric
}

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command's output.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes data. In text mode render prints it; a nil render prints
// data with fmt.
func (f *OutputFormatter) Success(data any, render func(w io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	if render != nil {
		render(f.Writer)
		return nil
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes an error. Text goes to ErrWriter, JSON to Writer.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	_, err := fmt.Fprintf(f.errWriter(), "Error: %s\n", message)
	return err
}

// VerboseLog prints diagnostics in verbose text mode.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose || f.Format == "json" {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
