package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rscheiwe/open-skills/internal/api"
	"github.com/rscheiwe/open-skills/internal/artifact"
	"github.com/rscheiwe/open-skills/internal/config"
	"github.com/rscheiwe/open-skills/internal/engine"
	"github.com/rscheiwe/open-skills/internal/sandbox"
	"github.com/rscheiwe/open-skills/internal/skill"
	"github.com/rscheiwe/open-skills/internal/store"
)

// drainTimeout bounds how long serve waits for in-flight runs after the
// HTTP listener has stopped.
const drainTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the registry and execution API server",
		Long: `Starts the HTTP API, discovers skill bundles under the skills
directory and executes runs in sandboxed Python subprocesses. All settings
come from OPEN_SKILLS_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, warnings := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)
	for _, w := range warnings {
		logger.Warn("ignoring invalid config value", "detail", w)
	}

	logger.Info("open-skills starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"skills_dir", cfg.SkillsDir,
		"max_concurrent_runs", cfg.MaxConcurrentRuns,
	)

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	runner, err := sandbox.NewProcessRunner(sandbox.Config{
		ScratchRoot:  cfg.ScratchDir,
		GracePeriod:  cfg.SandboxGrace,
		DisableNetNS: !cfg.SandboxNetNS,
	}, logger)
	if err != nil {
		logger.Error("failed to create sandbox runner", "error", err)
		return fmt.Errorf("create sandbox runner: %w", err)
	}

	collector := artifact.NewCollector(cfg.ArtifactsDir, cfg.MaxArtifactBytes, cfg.MaxArtifactsPer)

	eng := engine.NewEngine(st, runner, collector, engine.Config{
		DefaultTimeoutS:   cfg.DefaultTimeoutS,
		MaxTimeoutS:       cfg.MaxTimeoutS,
		MaxConcurrentRuns: cfg.MaxConcurrentRuns,
		PythonBin:         cfg.PythonBin,
	}, logger)

	registerSkills(context.Background(), st, cfg.SkillsDir, logger)

	srv := api.NewServer(api.Config{
		Addr:         cfg.ListenAddr,
		MaxBodyBytes: cfg.MaxInputBytes,
		MaxTimeoutS:  cfg.MaxTimeoutS,
	}, st, eng, collector, logger)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		return err
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := eng.Shutdown(drainCtx); err != nil {
		logger.Warn("shutdown finished with runs still in flight", "error", err)
	}
	logger.Info("open-skills stopped")
	return nil
}

// registerSkills discovers bundles under root and publishes any that are not
// yet in the registry. Broken bundles are logged and skipped so one bad
// manifest cannot keep the server from starting.
func registerSkills(ctx context.Context, st store.Store, root string, logger *slog.Logger) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		logger.Warn("cannot create skills directory", "path", root, "error", err)
		return
	}

	bundles, errs := skill.Discover(root)
	for _, err := range errs {
		logger.Warn("skipping skill bundle", "error", err)
	}
	for _, b := range bundles {
		v := b.Version()
		err := st.PutSkillVersion(ctx, v)
		switch {
		case errors.Is(err, store.ErrAlreadyExists):
			logger.Debug("skill already registered", "skill", v.FullName())
		case err != nil:
			logger.Warn("failed to register skill", "skill", v.FullName(), "error", err)
		default:
			logger.Info("skill registered", "skill", v.FullName(), "bundle_dir", v.BundleDir)
		}
	}
}
