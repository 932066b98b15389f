// Package sandbox loads untrusted candidate source into a fresh Python
// interpreter and reports how far it got: compiled, loaded, found the
// requested symbol, and what invoking it returned.
//
// Every Run uses a new interpreter process and a new scratch directory, so
// nothing a candidate defines or mutates survives into the next run. This
// isolates namespaces only; the local runner applies no resource limits.
package sandbox

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

//go:embed driver.py
var driverScript []byte

// File names inside a run's scratch directory.
const (
	driverFile    = "driver.py"
	candidateFile = "candidate.py"
	requestFile   = "request.json"
	resultFile    = "result.json"
)

// Status is the furthest point a candidate reached inside the interpreter.
type Status string

const (
	StatusOK           Status = "ok"
	StatusSyntaxError  Status = "syntax_error"
	StatusLoadError    Status = "load_error"
	StatusMissing      Status = "missing"
	StatusRuntimeError Status = "runtime_error"
)

// Runner loads a candidate and invokes one function in it.
type Runner interface {
	// Run returns an error only when the runner itself could not do its
	// job (no interpreter, no container daemon, unwritable scratch dir).
	// Faults caused by the candidate are reported through Outcome.
	Run(ctx context.Context, req Request) (Outcome, error)
	// Name identifies the runtime in logs and reports.
	Name() string
}

// Request describes one load-and-invoke.
type Request struct {
	Source   string             `json:"-"`
	Symbol   string             `json:"symbol"`
	Input    string             `json:"input"`
	Expected map[string]float64 `json:"expected"`
	// Timeout bounds the interpreter's wall time. Zero means no limit.
	Timeout time.Duration `json:"-"`
}

// Outcome is the decoded result of one Run.
type Outcome struct {
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Equal    bool          `json:"equal,omitempty"`
	Result   string        `json:"result,omitempty"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ErrNoInterpreter is returned when the configured Python executable
// cannot be found.
var ErrNoInterpreter = errors.New("python interpreter not found")

// Unavailable returns a Runner whose every Run fails with err. It stands
// in when the configured runtime could not be set up, so candidates still
// get a diagnostic instead of aborting the run.
func Unavailable(name string, err error) Runner {
	return unavailable{name: name, err: err}
}

type unavailable struct {
	name string
	err  error
}

func (u unavailable) Run(context.Context, Request) (Outcome, error) { return Outcome{}, u.err }
func (u unavailable) Name() string                                  { return u.name }

// workspace is the scratch directory shared between the host and the
// interpreter for one run.
type workspace struct {
	dir string
}

// newWorkspace writes the driver, the candidate and the request into a
// fresh temporary directory.
func newWorkspace(req Request) (*workspace, error) {
	dir, err := os.MkdirTemp("", "promptbench-run-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	ws := &workspace{dir: dir}

	payload, err := json.Marshal(req)
	if err != nil {
		ws.remove()
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	files := map[string][]byte{
		driverFile:    driverScript,
		candidateFile: []byte(req.Source),
		requestFile:   payload,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			ws.remove()
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}

	// Containers may run as a different uid and still need to write the result.
	if err := os.Chmod(dir, 0o777); err != nil {
		ws.remove()
		return nil, fmt.Errorf("chmod scratch dir: %w", err)
	}

	return ws, nil
}

func (w *workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

func (w *workspace) remove() {
	_ = os.RemoveAll(w.dir)
}

// outcome reads the driver's report. When the interpreter died before
// writing one, the exit code and stderr describe the fault instead.
func (w *workspace) outcome(exitCode int, stdout, stderr string) Outcome {
	out := Outcome{ExitCode: exitCode, Stdout: stdout, Stderr: stderr}

	data, err := os.ReadFile(w.path(resultFile))
	if err != nil {
		out.Status = StatusRuntimeError
		out.Message = abnormalExit(exitCode, stderr)
		return out
	}

	report, err := decodeReport(data)
	if err != nil {
		out.Status = StatusRuntimeError
		out.Message = fmt.Sprintf("unreadable interpreter report: %v", err)
		return out
	}

	out.Status = report.Status
	out.Message = report.Message
	out.Equal = report.Equal
	out.Result = report.Result
	return out
}

func abnormalExit(exitCode int, stderr string) string {
	msg := fmt.Sprintf("interpreter exited with status %d before reporting", exitCode)
	if tail := lastLine(stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func lastLine(s string) string {
	end := len(s)
	for end > 0 && (s[end-1] == '\n' || s[end-1] == '\r' || s[end-1] == ' ') {
		end--
	}
	s = s[:end]
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			return s[i+1:]
		}
	}
	return s
}

func timedOut(timeout time.Duration) Outcome {
	return Outcome{
		Status:   StatusRuntimeError,
		Message:  fmt.Sprintf("timed out after %s", timeout),
		ExitCode: -1,
		TimedOut: true,
	}
}
