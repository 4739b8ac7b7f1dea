package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr        = ":8080"
	defaultDBPath            = "open-skills.db"
	defaultSkillsDir         = "skills"
	defaultArtifactsDir      = "artifacts"
	defaultDefaultTimeoutS   = 60
	defaultMaxTimeoutS       = 300
	defaultMaxConcurrentRuns = 8
	defaultMaxInputBytes     = 10 << 20
	defaultMaxArtifactBytes  = 100 << 20
	defaultMaxArtifactsPer   = 20
	defaultPythonBin         = "python3"
	defaultSandboxGrace      = 3 * time.Second

	envListenAddr         = "OPEN_SKILLS_LISTEN_ADDR"
	envDBPath             = "OPEN_SKILLS_DB_PATH"
	envSkillsDir          = "OPEN_SKILLS_SKILLS_DIR"
	envArtifactsDir       = "OPEN_SKILLS_ARTIFACTS_DIR"
	envScratchDir         = "OPEN_SKILLS_SCRATCH_DIR"
	envLogLevel           = "OPEN_SKILLS_LOG_LEVEL"
	envDefaultTimeoutS    = "OPEN_SKILLS_DEFAULT_TIMEOUT_S"
	envMaxTimeoutS        = "OPEN_SKILLS_MAX_TIMEOUT_S"
	envMaxConcurrentRuns  = "OPEN_SKILLS_MAX_CONCURRENT_RUNS"
	envMaxInputBytes      = "OPEN_SKILLS_MAX_INPUT_BYTES"
	envMaxArtifactBytes   = "OPEN_SKILLS_MAX_ARTIFACT_BYTES"
	envMaxArtifactsPerRun = "OPEN_SKILLS_MAX_ARTIFACTS_PER_RUN"
	envPythonBin          = "OPEN_SKILLS_PYTHON_BIN"
	envSandboxGrace       = "OPEN_SKILLS_SANDBOX_GRACE"
	envSandboxNetNS       = "OPEN_SKILLS_SANDBOX_NETNS"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr   string
	DBPath       string
	SkillsDir    string
	ArtifactsDir string
	ScratchDir   string
	LogLevel     slog.Level

	DefaultTimeoutS   int
	MaxTimeoutS       int
	MaxConcurrentRuns int
	MaxInputBytes     int64
	MaxArtifactBytes  int64
	MaxArtifactsPer   int

	PythonBin    string
	SandboxGrace time.Duration
	SandboxNetNS bool
}

// Load reads configuration from environment variables with sensible defaults.
// Unparseable values keep their defaults; each one is reported in the
// returned warnings so the caller can log them once a logger exists.
func Load() (Config, []string) {
	cfg := Config{
		ListenAddr:        defaultListenAddr,
		DBPath:            defaultDBPath,
		SkillsDir:         defaultSkillsDir,
		ArtifactsDir:      defaultArtifactsDir,
		LogLevel:          slog.LevelInfo,
		DefaultTimeoutS:   defaultDefaultTimeoutS,
		MaxTimeoutS:       defaultMaxTimeoutS,
		MaxConcurrentRuns: defaultMaxConcurrentRuns,
		MaxInputBytes:     defaultMaxInputBytes,
		MaxArtifactBytes:  defaultMaxArtifactBytes,
		MaxArtifactsPer:   defaultMaxArtifactsPer,
		PythonBin:         defaultPythonBin,
		SandboxGrace:      defaultSandboxGrace,
		SandboxNetNS:      true,
	}
	var warnings []string

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envSkillsDir); v != "" {
		cfg.SkillsDir = v
	}
	if v := os.Getenv(envArtifactsDir); v != "" {
		cfg.ArtifactsDir = v
	}
	if v := os.Getenv(envScratchDir); v != "" {
		cfg.ScratchDir = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envPythonBin); v != "" {
		cfg.PythonBin = v
	}

	loadInt(envDefaultTimeoutS, &cfg.DefaultTimeoutS, &warnings)
	loadInt(envMaxTimeoutS, &cfg.MaxTimeoutS, &warnings)
	loadInt(envMaxConcurrentRuns, &cfg.MaxConcurrentRuns, &warnings)
	loadInt64(envMaxInputBytes, &cfg.MaxInputBytes, &warnings)
	loadInt64(envMaxArtifactBytes, &cfg.MaxArtifactBytes, &warnings)
	loadInt(envMaxArtifactsPerRun, &cfg.MaxArtifactsPer, &warnings)
	loadDuration(envSandboxGrace, &cfg.SandboxGrace, &warnings)
	loadBool(envSandboxNetNS, &cfg.SandboxNetNS, &warnings)

	return cfg, warnings
}

func loadInt(name string, dst *int, warnings *[]string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		*warnings = append(*warnings, fmt.Sprintf("%s=%q is not a positive integer, using %d", name, v, *dst))
		return
	}
	*dst = n
}

func loadInt64(name string, dst *int64, warnings *[]string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		*warnings = append(*warnings, fmt.Sprintf("%s=%q is not a positive integer, using %d", name, v, *dst))
		return
	}
	*dst = n
}

func loadDuration(name string, dst *time.Duration, warnings *[]string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*warnings = append(*warnings, fmt.Sprintf("%s=%q is not a positive duration, using %s", name, v, *dst))
		return
	}
	*dst = d
}

func loadBool(name string, dst *bool, warnings *[]string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("%s=%q is not a boolean, using %t", name, v, *dst))
		return
	}
	*dst = b
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
