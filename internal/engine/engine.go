package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rscheiwe/open-skills/internal/artifact"
	"github.com/rscheiwe/open-skills/internal/model"
	"github.com/rscheiwe/open-skills/internal/sandbox"
	"github.com/rscheiwe/open-skills/internal/skill"
	"github.com/rscheiwe/open-skills/internal/store"
)

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultTimeoutS          = 60
	DefaultMaxTimeoutS       = 300
	DefaultMaxConcurrentRuns = 8
	DefaultPythonBin         = "python3"
)

var (
	// ErrRunCancelled is the cancellation cause recorded when a run is
	// stopped by request.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrRunFinished is returned by Cancel for runs that already reached a
	// terminal status.
	ErrRunFinished = errors.New("run already finished")

	// ErrInvalidStrategy is returned for composition strategies other than
	// parallel and chain.
	ErrInvalidStrategy = errors.New("invalid strategy")

	// ErrEmptyGroup is returned when an execution request names no runs.
	ErrEmptyGroup = errors.New("execution request contains no runs")

	// ErrShuttingDown is returned for requests submitted after Shutdown.
	ErrShuttingDown = errors.New("engine is shutting down")
)

// Config holds the engine's execution policy.
type Config struct {
	DefaultTimeoutS   int    // applied when neither caller nor skill sets a timeout
	MaxTimeoutS       int    // upper bound on any effective timeout
	MaxConcurrentRuns int    // sandbox executions allowed at once
	PythonBin         string // interpreter used for Python entrypoints
}

// RunRequest describes one requested skill invocation. Skill is a "name" or
// "name@version" reference; TimeoutS, when positive, may only tighten the
// skill's own limit.
type RunRequest struct {
	Skill    string         `json:"skill"`
	Input    map[string]any `json:"input"`
	TimeoutS int            `json:"timeout_seconds"`
}

// Engine orchestrates skill run execution: it resolves versions, validates
// inputs, drives the sandbox, persists every state change, and mirrors the
// run lifecycle onto the event bus.
type Engine struct {
	store     store.Store
	runner    sandbox.Runner
	collector *artifact.Collector
	bus       *Bus
	cfg       Config
	logger    *slog.Logger
	wg        sync.WaitGroup
	sem       chan struct{}
	closed    atomic.Bool

	mu      sync.Mutex
	cancels map[string]context.CancelCauseFunc
}

// NewEngine creates an execution engine.
func NewEngine(s store.Store, runner sandbox.Runner, collector *artifact.Collector, cfg Config, logger *slog.Logger) *Engine {
	if cfg.DefaultTimeoutS <= 0 {
		cfg.DefaultTimeoutS = DefaultTimeoutS
	}
	if cfg.MaxTimeoutS <= 0 {
		cfg.MaxTimeoutS = DefaultMaxTimeoutS
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = DefaultMaxConcurrentRuns
	}
	if cfg.PythonBin == "" {
		cfg.PythonBin = DefaultPythonBin
	}
	return &Engine{
		store:     s,
		runner:    runner,
		collector: collector,
		bus:       NewBus(),
		cfg:       cfg,
		logger:    logger,
		sem:       make(chan struct{}, cfg.MaxConcurrentRuns),
		cancels:   make(map[string]context.CancelCauseFunc),
	}
}

// Bus returns the engine's event bus for SSE subscription.
func (e *Engine) Bus() *Bus {
	return e.bus
}

// Wait blocks until all in-flight run goroutines complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Shutdown stops accepting new work and waits for in-flight runs to finish,
// or for ctx to expire. Runs still executing after an expired ctx keep their
// goroutines; callers typically Cancel them first.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.closed.Store(true)
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecuteOne resolves, validates, and executes a single run synchronously.
// Skill failures are reported through the returned run's status; the error
// return covers request-level problems such as unknown skills or invalid
// input, none of which create a run record.
func (e *Engine) ExecuteOne(ctx context.Context, req RunRequest) (*model.Run, error) {
	runs, err := e.ExecuteMany(ctx, "", []RunRequest{req})
	if err != nil {
		return nil, err
	}
	return runs[0], nil
}

// Cancel stops a queued or running run. It returns store.ErrNotFound when no
// such run exists and ErrRunFinished when the run has already reached a
// terminal status.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	run, err := e.store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if model.IsTerminal(run.Status) {
		return ErrRunFinished
	}

	e.mu.Lock()
	cancel, ok := e.cancels[id]
	e.mu.Unlock()

	if !ok {
		// No goroutine holds this run, e.g. a restart left it queued.
		// Finalize it directly.
		if err := e.store.FinishRun(ctx, id, model.StatusCancelled, nil, ErrRunCancelled.Error(), 0); err != nil {
			return err
		}
		e.bus.PublishComplete(id, model.StatusCancelled, 0)
		e.bus.Close(id)
		return nil
	}

	cancel(ErrRunCancelled)
	return nil
}

// resolve splits a "name@version" reference and loads the matching version,
// the newest published one when the version half is absent or "latest".
func (e *Engine) resolve(ctx context.Context, ref string) (*model.SkillVersion, error) {
	name, version, _ := strings.Cut(ref, "@")
	if version == "latest" {
		version = ""
	}
	sv, err := e.store.ResolveSkillVersion(ctx, name, version)
	if err != nil {
		return nil, fmt.Errorf("resolve skill %q: %w", ref, err)
	}
	return sv, nil
}

// effectiveTimeout computes the enforced timeout in seconds: the skill's own
// limit (or the configured default), tightened by the caller's request when
// smaller, and always capped at the configured maximum.
func (e *Engine) effectiveTimeout(requestedS int, version *model.SkillVersion) int {
	t := e.cfg.DefaultTimeoutS
	if version.TimeoutS != nil && *version.TimeoutS > 0 {
		t = *version.TimeoutS
	}
	if requestedS > 0 && requestedS < t {
		t = requestedS
	}
	if t > e.cfg.MaxTimeoutS {
		t = e.cfg.MaxTimeoutS
	}
	return t
}

// createRun persists a queued run record and announces it on the bus.
func (e *Engine) createRun(ctx context.Context, version *model.SkillVersion, input map[string]any, timeoutS int, groupID, strategy string) (*model.Run, error) {
	effective := e.effectiveTimeout(timeoutS, version)
	run := &model.Run{
		ID:             model.NewRunID(),
		GroupID:        groupID,
		SkillVersionID: version.ID,
		Strategy:       strategy,
		Status:         model.StatusQueued,
		Input:          input,
		TimeoutS:       &effective,
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	e.bus.PublishStatus(run.ID, model.StatusQueued)
	return run, nil
}

// executeRun drives one prepared run through its lifecycle:
// queued→running→success/error/timeout/cancelled. Every outcome is persisted
// and mirrored on the event bus before the run's topic closes.
func (e *Engine) executeRun(ctx context.Context, run *model.Run, version *model.SkillVersion) {
	defer e.bus.Close(run.ID)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	e.registerCancel(run.ID, cancel)
	defer e.unregisterCancel(run.ID)

	// Wait for an execution slot. Queued runs can be cancelled while waiting.
	select {
	case e.sem <- struct{}{}:
	case <-runCtx.Done():
		e.finalizeNoStart(run, model.StatusCancelled, cancelMessage(context.Cause(runCtx)))
		return
	}
	defer func() { <-e.sem }()

	if err := e.store.UpdateRunStatus(context.Background(), run.ID, model.StatusRunning); err != nil {
		e.logger.Error("failed to transition to running", "run_id", run.ID, "error", err)
		e.finalizeNoStart(run, model.StatusError, fmt.Sprintf("failed to start: %v", err))
		return
	}
	e.bus.PublishStatus(run.ID, model.StatusRunning)
	activeRuns.Inc()
	defer activeRuns.Dec()

	start := time.Now()

	// The log callback dual-writes: persist to SQLite for historical
	// viewing, then publish for real-time SSE.
	var logSeq atomic.Int32
	spec := sandbox.InvocationSpec{
		RunID:        run.ID,
		Argv:         e.argv(version),
		Env:          sandbox.PythonEnv(),
		Input:        run.Input,
		Timeout:      time.Duration(*run.TimeoutS) * time.Second,
		AllowNetwork: version.AllowNetwork,
		LogFunc: func(stream, line string) {
			seq := int(logSeq.Add(1))
			if err := e.store.AppendLogLine(context.Background(), run.ID, seq, stream, line); err != nil {
				e.logger.Error("failed to persist log line", "run_id", run.ID, "seq", seq, "error", err)
			}
			e.bus.Publish(run.ID, model.EventLog, model.LogPayload(stream, line))
		},
	}

	inv, err := e.runner.Execute(runCtx, spec)
	defer func() {
		if cerr := e.runner.Cleanup(context.Background(), run.ID); cerr != nil {
			e.logger.Warn("scratch cleanup failed", "run_id", run.ID, "error", cerr)
		}
	}()
	durationMS := int(time.Since(start).Milliseconds())

	if err != nil {
		e.finalizeFailure(run, err, durationMS)
		return
	}
	if inv.Duration > 0 {
		durationMS = int(inv.Duration.Milliseconds())
	}

	outputs := inv.Envelope.Outputs
	if verr := skill.ValidateOutputs(version.Outputs, outputs); verr != nil {
		e.finalize(run, model.StatusError, nil, fmt.Sprintf("validate outputs: %v", verr), durationMS)
		return
	}

	artifacts, aerr := e.collectArtifacts(run.ID, inv)
	if aerr != nil {
		e.finalize(run, model.StatusError, nil, fmt.Sprintf("collect artifacts: %v", aerr), durationMS)
		return
	}

	e.bus.Publish(run.ID, model.EventOutput, model.OutputPayload(outputs))
	for _, a := range artifacts {
		e.bus.Publish(run.ID, model.EventArtifact, model.ArtifactPayload(a.Filename, artifactPath(run.ID, a.Filename), a.SizeBytes))
	}

	e.finalize(run, model.StatusSuccess, outputs, "", durationMS)
}

// argv builds the interpreter command line for the version's entrypoint.
func (e *Engine) argv(version *model.SkillVersion) []string {
	script, fn := skill.SplitEntrypoint(version.Entrypoint)
	return sandbox.PythonArgv(e.cfg.PythonBin, filepath.Join(version.BundleDir, script), fn)
}

// collectArtifacts copies the declared artifacts out of the sandbox working
// directory into the artifacts root and persists their records.
func (e *Engine) collectArtifacts(runID string, inv sandbox.Invocation) ([]*model.Artifact, error) {
	artifacts, err := e.collector.Collect(runID, inv.Workdir, inv.Envelope.Artifacts)
	if err != nil {
		return nil, err
	}
	for _, a := range artifacts {
		if err := e.store.PutArtifact(context.Background(), a); err != nil {
			return nil, fmt.Errorf("persist artifact %q: %w", a.Filename, err)
		}
	}
	return artifacts, nil
}

// finalizeFailure maps a sandbox error to the run's terminal state.
func (e *Engine) finalizeFailure(run *model.Run, err error, durationMS int) {
	var toErr *sandbox.TimeoutError
	if errors.As(err, &toErr) {
		e.finalize(run, model.StatusTimeout, nil, toErr.Error(), durationMS)
		return
	}
	if errors.Is(err, ErrRunCancelled) || errors.Is(err, context.Canceled) {
		e.finalize(run, model.StatusCancelled, nil, cancelMessage(err), durationMS)
		return
	}
	e.finalize(run, model.StatusError, nil, err.Error(), durationMS)
}

// finalize persists the terminal state of an executed run and emits its
// closing events. Instant runs still report at least one millisecond so
// clients never see a zero duration.
func (e *Engine) finalize(run *model.Run, status string, outputs map[string]any, errMsg string, durationMS int) {
	if durationMS <= 0 {
		durationMS = 1
	}
	if err := e.store.FinishRun(context.Background(), run.ID, status, outputs, errMsg, durationMS); err != nil {
		e.logger.Error("failed to finish run", "run_id", run.ID, "status", status, "error", err)
	}
	run.Status = status
	run.Outputs = outputs
	run.Error = errMsg
	run.DurationMS = &durationMS

	if errMsg != "" {
		e.bus.Publish(run.ID, model.EventError, model.ErrorPayload(errMsg))
	}
	e.bus.PublishComplete(run.ID, status, durationMS)
	runsTotal.WithLabelValues(status).Inc()
	runDuration.WithLabelValues(status).Observe(float64(durationMS) / 1000)
}

// finalizeNoStart records a terminal status for a run that never began
// executing; the recorded duration is zero. The run's topic is closed here
// because skipped runs may never enter executeRun.
func (e *Engine) finalizeNoStart(run *model.Run, status, msg string) {
	if err := e.store.FinishRun(context.Background(), run.ID, status, nil, msg, 0); err != nil {
		e.logger.Error("failed to finish run", "run_id", run.ID, "status", status, "error", err)
	}
	run.Status = status
	run.Error = msg
	zero := 0
	run.DurationMS = &zero

	if msg != "" {
		e.bus.Publish(run.ID, model.EventError, model.ErrorPayload(msg))
	}
	e.bus.PublishComplete(run.ID, status, 0)
	e.bus.Close(run.ID)
	runsTotal.WithLabelValues(status).Inc()
}

func (e *Engine) registerCancel(runID string, cancel context.CancelCauseFunc) {
	e.mu.Lock()
	e.cancels[runID] = cancel
	e.mu.Unlock()
}

func (e *Engine) unregisterCancel(runID string) {
	e.mu.Lock()
	delete(e.cancels, runID)
	e.mu.Unlock()
}

func cancelMessage(cause error) string {
	if cause == nil || errors.Is(cause, context.Canceled) {
		return ErrRunCancelled.Error()
	}
	return cause.Error()
}

// artifactPath is the download path the HTTP API serves for an artifact.
func artifactPath(runID, filename string) string {
	return "/api/v1/artifacts/" + runID + "/" + filename
}
