package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rscheiwe/open-skills/internal/api"
	"github.com/rscheiwe/open-skills/internal/artifact"
	"github.com/rscheiwe/open-skills/internal/engine"
	"github.com/rscheiwe/open-skills/internal/sandbox"
	"github.com/rscheiwe/open-skills/internal/store"
)

// stubRunner is a configurable sandbox.Runner for end to end tests. It never
// spawns a process: outputs are computed from the run input, log lines are
// emitted through the spec callback, and optional files are materialized into
// a scratch workdir so artifact collection sees real files.
type stubRunner struct {
	delay     time.Duration
	lineDelay time.Duration // pause between emitted log lines
	logLines  []string
	outputs   func(input map[string]any) map[string]any
	files     map[string]string // artifact filename -> content
	err       error
	workroot  string
	calls     atomic.Int64
}

func (s *stubRunner) Execute(ctx context.Context, spec sandbox.InvocationSpec) (sandbox.Invocation, error) {
	s.calls.Add(1)
	start := time.Now()

	if s.delay > 0 {
		wait := s.delay
		if spec.Timeout > 0 && spec.Timeout < wait {
			select {
			case <-time.After(spec.Timeout):
				return sandbox.Invocation{}, &sandbox.TimeoutError{Limit: spec.Timeout}
			case <-ctx.Done():
				return sandbox.Invocation{}, context.Cause(ctx)
			}
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return sandbox.Invocation{}, context.Cause(ctx)
		}
	}

	if spec.LogFunc != nil {
		for _, line := range s.logLines {
			spec.LogFunc(sandbox.StreamStdout, line)
			if s.lineDelay > 0 {
				select {
				case <-time.After(s.lineDelay):
				case <-ctx.Done():
					return sandbox.Invocation{}, context.Cause(ctx)
				}
			}
		}
	}

	if s.err != nil {
		return sandbox.Invocation{}, s.err
	}

	workdir, err := os.MkdirTemp(s.workroot, "run")
	if err != nil {
		return sandbox.Invocation{}, err
	}
	declared := make([]string, 0, len(s.files))
	for name, content := range s.files {
		if err := os.WriteFile(filepath.Join(workdir, name), []byte(content), 0o644); err != nil {
			return sandbox.Invocation{}, err
		}
		declared = append(declared, name)
	}

	out := map[string]any{}
	if s.outputs != nil {
		out = s.outputs(spec.Input)
	}
	return sandbox.Invocation{
		Root:     workdir,
		Workdir:  workdir,
		Envelope: &sandbox.Envelope{Outputs: out, Artifacts: declared},
		ExitCode: 0,
		Duration: time.Since(start),
	}, nil
}

func (s *stubRunner) Cleanup(context.Context, string) error { return nil }

// skillServer runs the full HTTP stack over a stub runner and an in-memory
// store, plus a scratch directory for publishing real bundles from disk.
type skillServer struct {
	ts     *httptest.Server
	eng    *engine.Engine
	runner *stubRunner
	root   string
}

func newSkillServer(t *testing.T, runner *stubRunner) *skillServer {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if runner == nil {
		runner = &stubRunner{}
	}
	if runner.outputs == nil {
		runner.outputs = func(input map[string]any) map[string]any {
			return map[string]any{"echo": input["text"]}
		}
	}
	runner.workroot = t.TempDir()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	collector := artifact.NewCollector(t.TempDir(), 1<<20, 8)
	eng := engine.NewEngine(st, runner, collector, engine.Config{
		DefaultTimeoutS:   5,
		MaxTimeoutS:       60,
		MaxConcurrentRuns: 4,
	}, logger)
	srv := api.NewServer(api.Config{Addr: ":0", MaxBodyBytes: 1 << 20, MaxTimeoutS: 60}, st, eng, collector, logger)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		eng.Wait()
	})

	return &skillServer{ts: ts, eng: eng, runner: runner, root: t.TempDir()}
}

func (p *skillServer) url() string { return p.ts.URL }

// writeBundle writes a minimal valid bundle to disk and returns its directory.
func (p *skillServer) writeBundle(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(p.root, name)
	if err := os.MkdirAll(filepath.Join(dir, "scripts"), 0o755); err != nil {
		t.Fatalf("mkdir bundle: %v", err)
	}
	manifest := fmt.Sprintf(`---
name: %s
version: 1.0.0
entrypoint: scripts/main.py:run
inputs:
  - name: text
    type: string
---

# %s
`, name, name)
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}
	script := "def run(payload):\n    return {\"echo\": payload.get(\"text\")}\n"
	if err := os.WriteFile(filepath.Join(dir, "scripts", "main.py"), []byte(script), 0o644); err != nil {
		t.Fatalf("write main.py: %v", err)
	}
	return dir
}

// publish registers a bundle through the HTTP API.
func (p *skillServer) publish(t *testing.T, dir string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"bundle_dir": dir})
	resp, err := http.Post(p.url()+"/api/v1/skills", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/v1/skills: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("publish status = %d, want 201\nbody: %s", resp.StatusCode, b)
	}
}

// addSkill publishes a fresh bundle named name and returns its directory.
func (p *skillServer) addSkill(t *testing.T, name string) string {
	t.Helper()
	dir := p.writeBundle(t, name)
	p.publish(t, dir)
	return dir
}

// execSync submits a synchronous execution request and returns the finished
// run records.
func (p *skillServer) execSync(t *testing.T, body string) []map[string]any {
	t.Helper()
	resp, err := http.Post(p.url()+"/api/v1/runs", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /api/v1/runs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want 200\nbody: %s", resp.StatusCode, b)
	}
	var result struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return result.Results
}

// execAsync submits an async execution request and returns the queued run ids.
func (p *skillServer) execAsync(t *testing.T, body string) []string {
	t.Helper()
	resp, err := http.Post(p.url()+"/api/v1/runs/async", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /api/v1/runs/async: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want 202\nbody: %s", resp.StatusCode, b)
	}
	var result struct {
		RunIDs []string `json:"run_ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return result.RunIDs
}

// getJSON fetches an API path and decodes the response as loose JSON.
func (p *skillServer) getJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	resp, err := http.Get(p.url() + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return result
}

func (p *skillServer) getRun(t *testing.T, id string) map[string]any {
	t.Helper()
	return p.getJSON(t, "/api/v1/runs/"+id)
}

// pollStatus polls until the run reaches the expected status.
func (p *skillServer) pollStatus(t *testing.T, id, expected string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		run := p.getRun(t, id)
		if run["status"] == expected {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach status %q within %v", id, expected, timeout)
	return nil
}
