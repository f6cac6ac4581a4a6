package main

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/safeshell/safeshell/internal/errx"
	"github.com/safeshell/safeshell/pkg/api"
	"github.com/safeshell/safeshell/pkg/audit"
	"github.com/safeshell/safeshell/pkg/logging"
	"github.com/safeshell/safeshell/pkg/store"
	"github.com/safeshell/safeshell/pkg/violation"
)

const configFileName = "config.json"

// app wires the shared machinery behind every command: the resolved
// project, configuration snapshot, permission store, escalation driver
// and audit trail.
type app struct {
	env        environment
	projectDir string
	sessionID  string
	cwd        string
	cfg        *api.Config
	store      *store.Store
	ledger     *store.Ledger
	emitter    *logging.Emitter
	audit      *audit.Recorder
	driver     *violation.Driver
	reporter   *violation.Reporter
	logger     *slog.Logger
}

func newApp(cmd *cobra.Command) (*app, error) {
	env, err := loadEnvironment()
	if err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cwd, err := os.Getwd()
	if err != nil {
		return nil, errx.Wrap(ErrResolveProject, err)
	}

	projectDir, _ := cmd.Flags().GetString("project")
	if projectDir == "" {
		projectDir = env.ProjectRoot
	}
	if projectDir == "" {
		projectDir = discoverProjectRoot(cwd)
	}

	sessionID, _ := cmd.Flags().GetString("session")
	if sessionID == "" {
		sessionID = env.SessionID
	}

	cfg, err := loadProjectConfig(projectDir)
	if err != nil {
		return nil, err
	}

	st := store.New(projectDir, logger)
	ledger := st.NewLedger()

	// Menus are only colorized when stdout is a terminal.
	color.NoColor = color.NoColor || !term.IsTerminal(int(os.Stdout.Fd()))

	a := &app{
		env:        env,
		projectDir: projectDir,
		sessionID:  sessionID,
		cwd:        cwd,
		cfg:        cfg,
		store:      st,
		ledger:     ledger,
		logger:     logger,
	}

	a.emitter = openEmitter(st.BaseDir(), sessionID, projectDir, logger)
	if rec, err := audit.Open(st.BaseDir(), logger); err != nil {
		logger.Warn("audit trail disabled", "error", err)
	} else {
		a.audit = rec
	}

	a.driver = violation.NewDriver(ledger, a.emitter, os.Stdout, logger)
	a.reporter = violation.NewReporter(a.emitter, os.Stderr)
	return a, nil
}

func (a *app) Close() {
	if a.emitter != nil {
		_ = a.emitter.Close()
	}
	_ = a.audit.Close()
}

// openEmitter builds the JSONL error-log emitter. Logging is best
// effort: a failure disables it rather than blocking the run.
func openEmitter(baseDir, sessionID, projectDir string, logger *slog.Logger) *logging.Emitter {
	logDir := filepath.Join(baseDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		logger.Warn("error log disabled", "error", err)
		return nil
	}
	writer, err := logging.NewJSONLWriter(filepath.Join(logDir, "errors.jsonl"))
	if err != nil {
		logger.Warn("error log disabled", "error", err)
		return nil
	}
	return logging.NewEmitter(logging.EmitterConfig{
		SessionID: sessionID,
		Project:   projectDir,
	}, writer)
}

// discoverProjectRoot walks up from dir looking for a .safeshell
// directory; the starting directory is the fallback.
func discoverProjectRoot(dir string) string {
	current := dir
	for {
		if info, err := os.Stat(filepath.Join(current, ".safeshell")); err == nil && info.IsDir() {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return dir
		}
		current = parent
	}
}

// loadProjectConfig reads <project>/.safeshell/config.json. A missing
// file yields an empty configuration; a malformed one is an error.
func loadProjectConfig(projectDir string) (*api.Config, error) {
	cfg := &api.Config{}
	path := filepath.Join(projectDir, ".safeshell", configFileName)
	data, err := os.ReadFile(path)
	if err == nil {
		cfg, err = api.ParseConfig(data)
		if err != nil {
			return nil, errx.With(ErrLoadConfig, " %s: %v", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, errx.Wrap(ErrLoadConfig, err)
	}
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = projectDir
	}
	return cfg, nil
}

// scriptHash derives the cache key for a script.
func scriptHash(script string) string {
	sum := sha256.Sum256([]byte(script))
	return hex.EncodeToString(sum[:])[:16]
}

func (a *app) scriptsDir() string {
	return filepath.Join(a.store.BaseDir(), "scripts")
}

// cacheScript persists a script under its hash so a later retry can
// re-execute the exact same text.
func (a *app) cacheScript(script string) (string, error) {
	hash := scriptHash(script)
	dir := a.scriptsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errx.Wrap(ErrCacheScript, err)
	}
	path := filepath.Join(dir, hash+".sh")
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		return "", errx.Wrap(ErrCacheScript, err)
	}
	return hash, nil
}

// loadCachedScript loads a script back by hash.
func (a *app) loadCachedScript(hash string) (string, error) {
	data, err := os.ReadFile(filepath.Join(a.scriptsDir(), hash+".sh"))
	if err != nil {
		return "", errx.With(ErrMissingScript, ": %s", hash)
	}
	return string(data), nil
}
