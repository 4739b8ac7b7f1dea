package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// DefaultGracePeriod is how long a process group gets between SIGTERM
	// and SIGKILL when an invocation is stopped.
	DefaultGracePeriod = 3 * time.Second

	// maxLineBytes caps the length of a single captured output line.
	maxLineBytes = 1 << 20

	// stderrTailLines is how many trailing stderr lines are kept for error
	// reports.
	stderrTailLines = 20

	inputFileName  = "input.json"
	resultFileName = "result.json"
)

// Environment variables injected into every invocation. EnvAllowNetwork
// carries the run's declared network policy ("1" or "0") so entrypoints can
// see it even when namespace isolation is unavailable.
const (
	EnvRunID        = "OPEN_SKILLS_RUN_ID"
	EnvInput        = "OPEN_SKILLS_INPUT"
	EnvResult       = "OPEN_SKILLS_RESULT"
	EnvAllowNetwork = "OPEN_SKILLS_ALLOW_NETWORK"
)

// passthroughEnv lists the host environment variables forwarded into the
// sandbox. Everything else is stripped.
var passthroughEnv = []string{"PATH", "HOME", "LANG", "LC_ALL", "TZ"}

// Config holds the settings for a ProcessRunner.
type Config struct {
	// ScratchRoot is the directory under which per-run scratch directories
	// are created. Empty means the system temp directory.
	ScratchRoot string

	// GracePeriod is the delay between SIGTERM and SIGKILL when stopping a
	// run. Zero selects DefaultGracePeriod.
	GracePeriod time.Duration

	// DisableNetNS turns off network-namespace isolation for runs that deny
	// network access. Intended for hosts without user-namespace support.
	DisableNetNS bool
}

// ProcessRunner executes skill invocations as host subprocesses.
type ProcessRunner struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]string // run ID → scratch directory
}

var _ Runner = (*ProcessRunner)(nil)

// NewProcessRunner creates a process runner rooted at cfg.ScratchRoot,
// creating the directory if needed.
func NewProcessRunner(cfg Config, logger *slog.Logger) (*ProcessRunner, error) {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.ScratchRoot != "" {
		if err := os.MkdirAll(cfg.ScratchRoot, 0o700); err != nil {
			return nil, fmt.Errorf("create scratch root: %w", err)
		}
	}
	if cfg.DisableNetNS {
		logger.Warn("network namespace isolation disabled",
			"detail", "runs that deny network access get the "+EnvAllowNetwork+" marker only")
	}
	return &ProcessRunner{
		cfg:    cfg,
		logger: logger,
		active: make(map[string]string),
	}, nil
}

// Execute runs the invocation described by spec and blocks until the process
// exits, the timeout fires, or ctx is cancelled.
func (r *ProcessRunner) Execute(ctx context.Context, spec InvocationSpec) (Invocation, error) {
	if len(spec.Argv) == 0 {
		return Invocation{}, &SetupError{Op: "validate spec", Err: errors.New("empty argv")}
	}

	// 1. Create the per-run scratch layout. root/work is the process working
	// directory; root/io holds the control files, so they cannot collide with
	// artifacts the entrypoint writes.
	root, err := os.MkdirTemp(r.cfg.ScratchRoot, "run-"+spec.RunID+"-")
	if err != nil {
		return Invocation{}, &SetupError{Op: "create scratch dir", Err: err}
	}
	r.track(spec.RunID, root)

	workdir := filepath.Join(root, "work")
	iodir := filepath.Join(root, "io")
	for _, dir := range []string{workdir, iodir} {
		if err := os.Mkdir(dir, 0o700); err != nil {
			return Invocation{}, &SetupError{Op: "create scratch dir", Err: err}
		}
	}

	// 2. Write the input payload.
	payload := spec.Input
	if payload == nil {
		payload = make(map[string]any)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Invocation{}, &SetupError{Op: "encode input", Err: err}
	}
	inputPath := filepath.Join(iodir, inputFileName)
	if err := os.WriteFile(inputPath, data, 0o600); err != nil {
		return Invocation{}, &SetupError{Op: "write input", Err: err}
	}
	resultPath := filepath.Join(iodir, resultFileName)

	// 3. Assemble the command. The process gets its own group so teardown
	// signals reach children the entrypoint spawned.
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = workdir
	cmd.Env = r.environ(spec, inputPath, resultPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if !spec.AllowNetwork && !r.cfg.DisableNetNS {
		// A fresh network namespace has no interfaces, so outbound
		// connections fail immediately. The user namespace lets an
		// unprivileged host create it.
		cmd.SysProcAttr.Cloneflags = syscall.CLONE_NEWUSER | syscall.CLONE_NEWNET
		cmd.SysProcAttr.UidMappings = []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getuid(), Size: 1},
		}
		cmd.SysProcAttr.GidMappings = []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getgid(), Size: 1},
		}
		cmd.SysProcAttr.GidMappingsEnableSetgroups = false
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Invocation{}, &SetupError{Op: "open stdout pipe", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Invocation{}, &SetupError{Op: "open stderr pipe", Err: err}
	}

	if err := cmd.Start(); err != nil {
		return Invocation{}, &SetupError{Op: "start process", Err: err}
	}
	start := time.Now()

	// The execution time limit is measured from process start, not from
	// submission, so queueing delay never eats into a run's budget.
	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	// 4. Stream output lines until both pipes close, then reap the process.
	tail := newTailBuffer(stderrTailLines)
	var scanners sync.WaitGroup
	scanners.Add(2)
	go func() {
		defer scanners.Done()
		scanLines(stdout, StreamStdout, spec.LogFunc, nil)
	}()
	go func() {
		defer scanners.Done()
		scanLines(stderr, StreamStderr, spec.LogFunc, tail)
	}()

	waitCh := make(chan error, 1)
	go func() {
		scanners.Wait()
		waitCh <- cmd.Wait()
	}()

	// 5. Wait for exit, the deadline, or cancellation. On interruption the
	// whole group gets SIGTERM, then SIGKILL after the grace period.
	var waitErr error
	interrupted := false
	select {
	case waitErr = <-waitCh:
	case <-runCtx.Done():
		interrupted = true
		r.signalGroup(cmd, syscall.SIGTERM, spec.RunID)
		select {
		case waitErr = <-waitCh:
		case <-time.After(r.cfg.GracePeriod):
			r.signalGroup(cmd, syscall.SIGKILL, spec.RunID)
			waitErr = <-waitCh
		}
	}
	duration := time.Since(start)

	if interrupted {
		cause := context.Cause(runCtx)
		if errors.Is(cause, context.DeadlineExceeded) && ctx.Err() == nil {
			return Invocation{}, &TimeoutError{Limit: spec.Timeout}
		}
		return Invocation{}, cause
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return Invocation{}, &ExecutionError{ExitCode: exitErr.ExitCode(), Stderr: tail.String()}
		}
		return Invocation{}, &ExecutionError{ExitCode: -1, Detail: fmt.Sprintf("wait for process: %v", waitErr)}
	}

	// 6. Read the result envelope the entrypoint wrote.
	raw, err := os.ReadFile(resultPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Invocation{}, &ExecutionError{Detail: "entrypoint exited without writing a result envelope"}
		}
		return Invocation{}, &ExecutionError{Detail: fmt.Sprintf("read result envelope: %v", err)}
	}
	env, err := ParseEnvelope(raw)
	if err != nil {
		return Invocation{}, &ExecutionError{Detail: err.Error()}
	}

	return Invocation{
		Root:     root,
		Workdir:  workdir,
		Envelope: env,
		ExitCode: 0,
		Duration: duration,
	}, nil
}

// Cleanup removes the scratch directory for the given run, if any remains.
func (r *ProcessRunner) Cleanup(ctx context.Context, runID string) error {
	r.mu.Lock()
	root, ok := r.active[runID]
	delete(r.active, runID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("remove scratch dir: %w", err)
	}
	return nil
}

func (r *ProcessRunner) track(runID, root string) {
	r.mu.Lock()
	r.active[runID] = root
	r.mu.Unlock()
}

// environ builds the restricted environment for an invocation: the
// passthrough allowlist, spec extras in sorted order, then the control
// variables.
func (r *ProcessRunner) environ(spec InvocationSpec, inputPath, resultPath string) []string {
	allowNet := "0"
	if spec.AllowNetwork {
		allowNet = "1"
	}
	env := make([]string, 0, len(passthroughEnv)+len(spec.Env)+4)
	for _, key := range passthroughEnv {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	extras := make([]string, 0, len(spec.Env))
	for key := range spec.Env {
		extras = append(extras, key)
	}
	slices.Sort(extras)
	for _, key := range extras {
		env = append(env, key+"="+spec.Env[key])
	}
	env = append(env,
		EnvRunID+"="+spec.RunID,
		EnvInput+"="+inputPath,
		EnvResult+"="+resultPath,
		EnvAllowNetwork+"="+allowNet,
	)
	return env
}

// signalGroup delivers sig to the whole process group.
func (r *ProcessRunner) signalGroup(cmd *exec.Cmd, sig syscall.Signal, runID string) {
	if cmd.Process == nil {
		return
	}
	// Setpgid made the child the group leader, so its pid is the pgid.
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		r.logger.Debug("signal process group failed", "run_id", runID, "signal", sig.String(), "error", err)
	}
}

// scanLines delivers each line read from r to fn and, when tail is non-nil,
// records it there. Oversized lines abort scanning; the remainder is drained
// so the child is never blocked on a full pipe.
func scanLines(r io.Reader, stream string, fn LineFunc, tail *tailBuffer) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := sc.Text()
		if tail != nil {
			tail.append(line)
		}
		if fn != nil {
			fn(stream, line)
		}
	}
	if sc.Err() != nil {
		io.Copy(io.Discard, r)
	}
}

// tailBuffer keeps the last few lines written to it.
type tailBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}
