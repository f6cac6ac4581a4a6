package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/safeshell/safeshell/internal/errx"
	"github.com/safeshell/safeshell/pkg/api"
	"github.com/safeshell/safeshell/pkg/audit"
	"github.com/safeshell/safeshell/pkg/permission"
	"github.com/safeshell/safeshell/pkg/proto"
	"github.com/safeshell/safeshell/pkg/sandbox"
	"github.com/safeshell/safeshell/pkg/session"
	"github.com/safeshell/safeshell/pkg/shellscan"
	"github.com/safeshell/safeshell/pkg/violation"
)

const defaultRunner = "safeshell-runner"

// execOptions parameterizes one pipeline run. Config, when set, is the
// derived configuration a retry built (allow-once grants live only
// here, never in any ambient state).
type execOptions struct {
	Timeout    time.Duration
	Background bool
	Runner     string
	Config     *api.Config
}

// execute runs the full pipeline for one script: upfront command scan
// and batch permission check, sandbox flag construction, the spawn under
// session/job tracking, and violation handling afterwards. The returned
// int is the process exit code the CLI should propagate.
func (a *app) execute(ctx context.Context, script string, opts execOptions) (int, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = a.store.EffectiveConfig(a.cfg, a.sessionID)
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = cfg.GetTimeout()
	}
	runner := opts.Runner
	if runner == "" {
		runner = defaultRunner
	}

	commands, err := shellscan.Commands(script)
	if err != nil {
		a.reporter.Report(errx.Wrap(ErrScanScript, err), script, "")
		return 1, nil
	}

	batch := permission.CheckCommands(commands, cfg, a.cwd)
	if !batch.AllAllowed() {
		a.logger.Debug("commands blocked before spawn", "error", batch.Err())
		hash, cacheErr := a.cacheScript(script)
		if cacheErr != nil {
			a.logger.Warn("script not cached for retry", "error", cacheErr)
		}
		denied := append(append([]string(nil), batch.NotAllowed...), batch.NotFound...)
		a.driver.EscalateCommands(denied, a.cwd, hash, opts.Timeout, opts.Background)
		return 1, nil
	}

	hash, err := a.cacheScript(script)
	if err != nil {
		a.logger.Warn("script not cached for retry", "error", err)
	}

	scriptDir, err := os.MkdirTemp("", "safeshell-*")
	if err != nil {
		return 0, errx.Wrap(ErrWriteScript, err)
	}
	defer os.RemoveAll(scriptDir)
	scriptPath := filepath.Join(scriptDir, "script.sh")
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return 0, errx.Wrap(ErrWriteScript, err)
	}

	argv := append([]string{runner}, sandbox.BuildFlags(cfg, scriptDir)...)
	argv = append(argv, scriptPath)

	mgr := session.NewManager(session.Options{Logger: a.logger})
	sess := mgr.Create(a.sessionID, a.cwd)

	ctrl := &controlState{app: a, mgr: mgr, sessionID: sess.ID}
	var jobID string

	result, err := sandbox.Spawn(ctx, sandbox.Spec{
		Args:    argv,
		Cwd:     a.cwd,
		Env:     a.childEnv(cfg, hash),
		Timeout: timeout,
	}, sandbox.Callbacks{
		OnSpawn: func(pid int) {
			if job, addErr := mgr.AddJob(sess.ID, pid, script, opts.Background); addErr == nil {
				jobID = job.ID
			}
		},
		OnStderrLine: ctrl.handleLine,
		OnTimeout: func(pid int) {
			a.logger.Warn("execution deadline exceeded", "pid", pid, "timeout", timeout)
		},
	})

	if err != nil {
		a.recordExecution(script, -1, 0, "")
		if errors.Is(err, api.ErrTimeout) {
			fmt.Fprintf(os.Stderr, "safeshell: %v\n", err)
			return 1, nil
		}
		a.reporter.Report(err, script, "")
		return 1, nil
	}

	status := session.JobCompleted
	if result.ExitCode != 0 {
		status = session.JobFailed
	}
	if jobID != "" {
		_ = mgr.FinishJob(sess.ID, jobID, status, session.JobOutput{
			Stdout:          result.Stdout,
			Stderr:          result.Stderr,
			StdoutTruncated: result.StdoutTruncated,
			StderrTruncated: result.StderrTruncated,
		})
	}

	fmt.Print(result.Stdout)

	// A violation reported over the wire protocol wins; otherwise a
	// nonzero exit still gets classified by its stderr text.
	if v := ctrl.violation; v != nil {
		det := violation.DetectText(v.Code, violationMessage(v))
		det.Path = v.Path
		if v.Target != "" {
			det.Path = v.Target
		}
		det.Operation = proto.ViolationOperation(v.Operation)
		a.recordExecution(script, result.ExitCode, result.Duration, det.Code)
		a.driver.EscalatePath(det, a.cwd, hash)
		return 1, nil
	}
	if len(ctrl.deniedCommands) > 0 {
		a.recordExecution(script, result.ExitCode, result.Duration, violation.CodeSandboxDenied)
		a.driver.EscalateCommands(ctrl.deniedCommands, a.cwd, hash, opts.Timeout, opts.Background)
		return 1, nil
	}
	if result.ExitCode != 0 {
		if det := violation.DetectText("", result.Stderr); det.IsViolation {
			a.recordExecution(script, result.ExitCode, result.Duration, det.Code)
			a.driver.EscalatePath(det, a.cwd, hash)
			return 1, nil
		}
	}

	a.recordExecution(script, result.ExitCode, result.Duration, "")
	return result.ExitCode, nil
}

// childEnv builds the child's environment: the host environment minus
// masked names, plus the traceability variables. Which variables the
// script may read is enforced by the sandbox env capability.
func (a *app) childEnv(cfg *api.Config, hash string) []string {
	masked := make(map[string]struct{}, len(cfg.Env.Mask))
	for _, name := range cfg.Env.Mask {
		masked[name] = struct{}{}
	}
	env := make([]string, 0, len(os.Environ())+4)
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if _, hidden := masked[name]; hidden {
			continue
		}
		env = append(env, kv)
	}
	if a.sessionID != "" {
		env = append(env, "SAFESHELL_SESSION_ID="+a.sessionID)
	}
	env = append(env, "SAFESHELL_PROJECT_ROOT="+a.projectDir)
	if hash != "" {
		env = append(env, "SAFESHELL_SCRIPT_HASH="+hash)
	}
	if a.env.ScriptID != "" {
		env = append(env, "SAFESHELL_SCRIPT_ID="+a.env.ScriptID)
	}
	return env
}

func (a *app) recordExecution(script string, exitCode int, duration time.Duration, violationCode string) {
	a.audit.Record(audit.Execution{
		SessionID: a.sessionID,
		Command:   script,
		ExitCode:  exitCode,
		Duration:  duration,
		Violation: violationCode,
	})
}

// controlState consumes the child's stderr stream: control lines update
// job and session state, everything else is forwarded to our stderr.
type controlState struct {
	app       *app
	mgr       *session.Manager
	sessionID string

	violation      *proto.Violation
	deniedCommands []string
}

func (c *controlState) handleLine(line string) {
	msg, err := proto.Parse(line)
	if err != nil {
		c.app.logger.Warn("dropping malformed control line", "error", err)
		return
	}
	if msg == nil {
		fmt.Fprintln(os.Stderr, line)
		return
	}

	switch msg.Type {
	case proto.TypeJobStart:
		var start proto.JobStart
		if msg.Decode(&start) == nil {
			_, _ = c.mgr.AddJob(c.sessionID, start.PID, start.Command, start.Background)
		}
	case proto.TypeJobEnd:
		var end proto.JobEnd
		if msg.Decode(&end) == nil {
			if job, jobErr := c.mgr.JobByPID(c.sessionID, end.PID); jobErr == nil {
				status := session.JobCompleted
				if end.ExitCode != 0 {
					status = session.JobFailed
				}
				_ = c.mgr.FinishJob(c.sessionID, job.ID, status, session.JobOutput{})
			}
		}
	case proto.TypeCmdDenied:
		var denied proto.CmdDenied
		if msg.Decode(&denied) == nil {
			c.deniedCommands = append(c.deniedCommands, denied.Command)
		}
	case proto.TypeCmdsDenied:
		var denied proto.CmdsDenied
		if msg.Decode(&denied) == nil {
			c.deniedCommands = append(c.deniedCommands, denied.Commands...)
		}
	case proto.TypeNetDenied:
		var denied proto.NetDenied
		if msg.Decode(&denied) == nil {
			fmt.Fprintf(os.Stderr, "safeshell: network access to %s denied\n", denied.Host)
		}
	case proto.TypeViolation:
		var v proto.Violation
		if msg.Decode(&v) == nil && c.violation == nil {
			c.violation = &v
		}
	case proto.TypeState:
		var state proto.State
		if msg.Decode(&state) == nil {
			_ = c.mgr.UpdateState(c.sessionID, state.Cwd, state.Vars)
		}
	default:
		c.app.logger.Debug("ignoring unknown control message", "type", msg.Type)
	}
}

func violationMessage(v *proto.Violation) string {
	if v.Target != "" {
		return fmt.Sprintf("Symlink '%s' points to '%s' which is outside allowed directories", v.Path, v.Target)
	}
	return fmt.Sprintf("Path '%s' is outside allowed directories", v.Path)
}
