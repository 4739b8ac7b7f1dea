package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rscheiwe/open-skills/internal/artifact"
	"github.com/rscheiwe/open-skills/internal/config"
	"github.com/rscheiwe/open-skills/internal/engine"
	"github.com/rscheiwe/open-skills/internal/model"
	"github.com/rscheiwe/open-skills/internal/sandbox"
	"github.com/rscheiwe/open-skills/internal/skill"
	"github.com/rscheiwe/open-skills/internal/store"
)

func runLocalCmd() *cobra.Command {
	var (
		inputJSON    string
		timeoutS     int
		artifactsDir string
	)

	cmd := &cobra.Command{
		Use:   "run-local <dir>",
		Short: "Execute a skill bundle in-process, without a server",
		Long: `Loads the bundle, runs its entrypoint once in the same sandbox a
server run would use, and prints the finished run as JSON. State lives in a
throwaway database; artifacts are discarded unless --artifacts is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(args[0], inputJSON, timeoutS, artifactsDir)
		},
	}
	cmd.Flags().StringVar(&inputJSON, "input", "{}", "input payload as a JSON object")
	cmd.Flags().IntVar(&timeoutS, "timeout", 0, "timeout in seconds (0 uses the skill's own limit)")
	cmd.Flags().StringVar(&artifactsDir, "artifacts", "", "directory to keep produced artifacts in")
	return cmd
}

func runLocal(dir, inputJSON string, timeoutS int, artifactsDir string) error {
	var input map[string]any
	if err := json.Unmarshal([]byte(inputJSON), &input); err != nil {
		return fmt.Errorf("parse --input: %w", err)
	}

	bundle, err := skill.LoadBundle(dir)
	if err != nil {
		return err
	}

	cfg, _ := config.Load()
	logger := config.NewLogger(os.Stderr, slog.LevelWarn)

	scratch, err := os.MkdirTemp("", "open-skills-local-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	keepArtifacts := artifactsDir != ""
	if !keepArtifacts {
		artifactsDir = filepath.Join(scratch, "artifacts")
	}

	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	version := bundle.Version()
	if err := st.PutSkillVersion(ctx, version); err != nil {
		return fmt.Errorf("register skill: %w", err)
	}

	runner, err := sandbox.NewProcessRunner(sandbox.Config{
		ScratchRoot:  filepath.Join(scratch, "runs"),
		GracePeriod:  cfg.SandboxGrace,
		DisableNetNS: !cfg.SandboxNetNS,
	}, logger)
	if err != nil {
		return err
	}

	collector := artifact.NewCollector(artifactsDir, cfg.MaxArtifactBytes, cfg.MaxArtifactsPer)
	eng := engine.NewEngine(st, runner, collector, engine.Config{
		DefaultTimeoutS:   cfg.DefaultTimeoutS,
		MaxTimeoutS:       cfg.MaxTimeoutS,
		MaxConcurrentRuns: 1,
		PythonBin:         cfg.PythonBin,
	}, logger)
	defer eng.Wait()

	run, err := eng.ExecuteOne(ctx, engine.RunRequest{
		Skill:    version.FullName(),
		Input:    input,
		TimeoutS: timeoutS,
	})
	if err != nil {
		return err
	}

	artifacts, err := st.ListArtifacts(ctx, run.ID)
	if err != nil {
		return err
	}

	out := struct {
		*model.Run
		Artifacts []*model.Artifact `json:"artifacts,omitempty"`
	}{run, artifacts}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}

	if keepArtifacts && len(artifacts) > 0 {
		fmt.Fprintf(os.Stderr, "kept %d artifact(s) under %s\n", len(artifacts), artifactsDir)
	}
	if run.Status != model.StatusSuccess {
		return fmt.Errorf("run finished with status %s", run.Status)
	}
	return nil
}
