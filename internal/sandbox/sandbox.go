package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Log stream names used when reporting captured output lines.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// LineFunc receives one captured output line. The stream argument is either
// StreamStdout or StreamStderr. Implementations must be safe for concurrent
// calls because both streams are scanned in parallel.
type LineFunc func(stream, line string)

// Runner is the interface implemented by skill execution sandboxes.
type Runner interface {
	// Execute runs one invocation and blocks until the process exits or the
	// context is done. The returned Invocation is only meaningful when err is
	// nil. Scratch state survives Execute so artifacts can be collected from
	// Invocation.Workdir; callers must release it with Cleanup afterwards.
	Execute(ctx context.Context, spec InvocationSpec) (Invocation, error)

	// Cleanup removes scratch state left behind for the given run. It is safe
	// to call for runs that failed before producing any, and to call twice.
	Cleanup(ctx context.Context, runID string) error
}

// InvocationSpec describes a single sandboxed process invocation.
type InvocationSpec struct {
	RunID string
	Argv  []string

	// Env holds extra environment variables layered on top of the restricted
	// base environment.
	Env map[string]string

	// Input is serialized to a JSON file whose path the process receives via
	// the OPEN_SKILLS_INPUT environment variable.
	Input map[string]any

	// Timeout bounds execution measured from process start. Zero means no
	// limit beyond the caller's context.
	Timeout time.Duration

	// AllowNetwork leaves the host network reachable. When false the process
	// runs in an empty network namespace.
	AllowNetwork bool

	// LogFunc, if set, is invoked for every stdout and stderr line.
	LogFunc LineFunc
}

// Invocation is the outcome of a successfully completed invocation.
type Invocation struct {
	Root     string // scratch directory for the run, released by Cleanup
	Workdir  string // process working directory, where artifacts are written
	Envelope *Envelope
	ExitCode int
	Duration time.Duration
}

// Envelope is the result document an entrypoint writes to the path given in
// OPEN_SKILLS_RESULT before exiting. Artifact entries are paths relative to
// the working directory.
type Envelope struct {
	Outputs   map[string]any `json:"outputs"`
	Artifacts []string       `json:"artifacts"`
}

// ParseEnvelope decodes and validates a result envelope. Outputs is never nil
// on success.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode result envelope: %w", err)
	}
	for _, p := range env.Artifacts {
		if p == "" {
			return nil, errors.New("result envelope lists an empty artifact path")
		}
	}
	if env.Outputs == nil {
		env.Outputs = make(map[string]any)
	}
	return &env, nil
}

// TimeoutError reports that an invocation exceeded its execution time limit
// and was terminated.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timed out after %s", e.Limit)
}

// ExecutionError reports an entrypoint that ran but failed: it exited
// non-zero, or exited cleanly without leaving a usable result envelope.
type ExecutionError struct {
	ExitCode int
	Stderr   string // tail of captured stderr
	Detail   string // set when the failure is not an exit code
}

func (e *ExecutionError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Stderr != "" {
		return fmt.Sprintf("process exited with code %d: %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("process exited with code %d", e.ExitCode)
}

// SetupError reports a failure to prepare the sandbox before the entrypoint
// could start.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("sandbox setup: %s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }
