package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitCheckFailed = 1 // replay differs, BFS/DFS disagree, scenarios fail, ops left pending
	ExitUsage       = 2 // bad flags or config, missing database or container, rejected edit
)

// Machine-readable failure codes in JSON output.
const (
	CodeDatabase     = "E_DATABASE"
	CodeConfig       = "E_CONFIG"
	CodeUsage        = "E_USAGE"
	CodeDeterminism  = "E_DETERMINISM"
	CodeDisagreement = "E_FRONTIER_DISAGREE"
	CodeTestFailed   = "E_TEST_FAILED"
	CodeRejected     = "E_REJECTED"
	CodePending      = "E_PENDING"
)

// ExitError is a command failure with the exit code main should use.
type ExitError struct {
	Exit    int
	Code    string
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// usageError reports a command that could not run. err may be nil.
func usageError(code string, err error, format string, args ...any) *ExitError {
	return &ExitError{Exit: ExitUsage, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// checkFailed reports a command that ran and found a problem.
func checkFailed(code, message string) *ExitError {
	return &ExitError{Exit: ExitCheckFailed, Code: code, Message: message}
}

// ExitCode maps err to a process exit code. Errors that are not an
// ExitError, such as cobra flag errors, count as check failures.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var e *ExitError
	if errors.As(err, &e) {
		return e.Exit
	}
	return ExitCheckFailed
}

// Response is the JSON envelope every command writes with --format json.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failure inside a Response.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// printer writes command output. Results go to out; diagnostics go to diag
// so they never corrupt JSON.
type printer struct {
	json    bool
	verbose bool
	out     io.Writer
	diag    io.Writer
}

func (o *RootOptions) printer(cmd *cobra.Command) *printer {
	return &printer{
		json:    o.Format == "json",
		verbose: o.Verbose,
		out:     cmd.OutOrStdout(),
		diag:    cmd.ErrOrStderr(),
	}
}

// emit writes data as a JSON envelope, or hands out to text. A non-nil
// failure marks the envelope as an error and is returned, so the command
// exits with its code after the result is printed.
func (p *printer) emit(data any, failure *ExitError, text func(w io.Writer)) error {
	if p.json {
		resp := Response{Status: "ok", Data: data}
		if failure != nil {
			resp.Status = "error"
			resp.Error = &ResponseError{Code: failure.Code, Message: failure.Message}
		}
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	} else if text != nil {
		text(p.out)
	}
	if failure != nil {
		return failure
	}
	return nil
}

// debugf prints to diag under --verbose.
func (p *printer) debugf(format string, args ...any) {
	if p.verbose {
		fmt.Fprintf(p.diag, format+"\n", args...)
	}
}
