// Package permission implements the pure decision logic for SafeShell:
// whether a command may be executed and whether a path may be accessed
// under a given configuration snapshot. It never mutates configuration
// and never talks to the sandbox.
package permission

import (
	"os"
	"path/filepath"

	"github.com/safeshell/safeshell/pkg/api"
)

// checkRequest carries one command check through the resolution strategies.
type checkRequest struct {
	command  string
	cwd      string
	cfg      *api.Config
	allowSet map[string]struct{}
}

// strategy inspects a request and either decides it or passes. Strategies
// run in order; the first decided result wins.
type strategy func(req *checkRequest) (api.PermissionResult, bool)

var commandStrategies = []strategy{
	checkBareName,
	checkAllowedBasename,
	checkAbsolutePath,
	checkRelativeToCwd,
	checkRelativeToProject,
}

// CheckCommand decides whether a command may run under cfg with the given
// working directory. The result is one of allowed (with the resolved path
// when the command was path-qualified), not allowed, or not found.
func CheckCommand(command string, cfg *api.Config, cwd string) api.PermissionResult {
	req := &checkRequest{
		command:  command,
		cwd:      cwd,
		cfg:      cfg,
		allowSet: cfg.CommandAllowSet(),
	}
	for _, decide := range commandStrategies {
		if result, decided := decide(req); decided {
			return result
		}
	}
	// A relative command that resolved to no existing file anywhere.
	return api.NotFound(command)
}

// checkBareName handles commands with no path separator: the bare name
// must be in the allow-set.
func checkBareName(req *checkRequest) (api.PermissionResult, bool) {
	if filepath.Base(req.command) != req.command {
		return api.PermissionResult{}, false
	}
	if _, ok := req.allowSet[req.command]; ok {
		return api.Allowed(""), true
	}
	return api.NotAllowed(req.command), true
}

// checkAllowedBasename allows a path-qualified command whose basename is
// allow-listed, resolving the path it points at.
func checkAllowedBasename(req *checkRequest) (api.PermissionResult, bool) {
	if _, ok := req.allowSet[filepath.Base(req.command)]; !ok {
		return api.PermissionResult{}, false
	}
	resolved := req.command
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(req.cwd, resolved)
	}
	return api.Allowed(filepath.Clean(resolved)), true
}

// checkAbsolutePath requires an exact allow-set match for absolute paths.
func checkAbsolutePath(req *checkRequest) (api.PermissionResult, bool) {
	if !filepath.IsAbs(req.command) {
		return api.PermissionResult{}, false
	}
	if _, ok := req.allowSet[req.command]; ok {
		return api.Allowed(filepath.Clean(req.command)), true
	}
	return api.NotAllowed(req.command), true
}

// checkRelativeToCwd resolves a relative command against cwd. An existing
// file decides the check: allowed under the project-commands shortcut or
// an allow-set match, not allowed otherwise. A missing file passes to the
// next strategy.
func checkRelativeToCwd(req *checkRequest) (api.PermissionResult, bool) {
	return decideResolvedFile(req, filepath.Join(req.cwd, req.command))
}

// checkRelativeToProject retries resolution under the project directory.
func checkRelativeToProject(req *checkRequest) (api.PermissionResult, bool) {
	if req.cfg.ProjectDir == "" || req.cfg.ProjectDir == req.cwd {
		return api.PermissionResult{}, false
	}
	return decideResolvedFile(req, filepath.Join(req.cfg.ProjectDir, req.command))
}

func decideResolvedFile(req *checkRequest, resolved string) (api.PermissionResult, bool) {
	resolved = filepath.Clean(resolved)
	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return api.PermissionResult{}, false
	}
	if req.cfg.AllowProjectCommands && req.cfg.ProjectDir != "" && IsWithin(resolved, req.cfg.ProjectDir) {
		return api.Allowed(resolved), true
	}
	if _, ok := req.allowSet[resolved]; ok {
		return api.Allowed(resolved), true
	}
	return api.NotAllowed(req.command), true
}
