package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// LocalConfig configures a LocalRunner.
type LocalConfig struct {
	// Python is the interpreter executable, looked up on PATH.
	Python string
	Logger zerolog.Logger
}

// LocalRunner runs candidates with a Python interpreter on the host.
type LocalRunner struct {
	python string
	logger zerolog.Logger
}

// NewLocalRunner resolves the interpreter and returns a runner for it.
func NewLocalRunner(cfg LocalConfig) (*LocalRunner, error) {
	python := cfg.Python
	if python == "" {
		python = "python3"
	}

	path, err := exec.LookPath(python)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoInterpreter, python)
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &LocalRunner{python: path, logger: logger}, nil
}

func (r *LocalRunner) Name() string {
	return "local"
}

// Run executes driver.py in isolated mode (-I) so the candidate sees
// neither PYTHON* environment variables nor the user's site-packages.
func (r *LocalRunner) Run(parent context.Context, req Request) (Outcome, error) {
	ws, err := newWorkspace(req)
	if err != nil {
		return Outcome{}, err
	}
	defer ws.remove()

	ctx := parent
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.python, "-I",
		ws.path(driverFile), ws.path(candidateFile), ws.path(requestFile), ws.path(resultFile))
	cmd.Dir = ws.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if req.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		r.logger.Warn().Dur("timeout", req.Timeout).Msg("candidate exceeded execution timeout")
		out := timedOut(req.Timeout)
		out.Duration = duration
		return out, nil
	}
	if err := parent.Err(); err != nil {
		return Outcome{}, err
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return Outcome{}, fmt.Errorf("start interpreter: %w", runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	out := ws.outcome(exitCode, stdout.String(), stderr.String())
	out.Duration = duration

	r.logger.Debug().
		Str("status", string(out.Status)).
		Int("exit_code", exitCode).
		Dur("duration", duration).
		Msg("candidate run finished")

	return out, nil
}
