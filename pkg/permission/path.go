package permission

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/safeshell/safeshell/pkg/api"
)

// IsWithin reports whether path equals dir or lies under it. The boundary
// must fall on a path separator: "/foo/barbaz" is not within "/foo/bar".
func IsWithin(path, dir string) bool {
	path = filepath.Clean(path)
	dir = filepath.Clean(dir)
	if path == dir {
		return true
	}
	if dir == string(filepath.Separator) {
		return strings.HasPrefix(path, dir)
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}

// CheckPath decides whether the given filesystem access is allowed. The
// path is resolved to an absolute path against cwd first. Paths inside
// the project directory are allowed implicitly, except writes when
// BlockProjectDirWrite is set. Everything else must fall under one of the
// configured read/write directories; a missing list is an explicit
// denial, never a silent allow.
func CheckPath(path string, op api.PathOperation, cfg *api.Config, cwd string) api.PathDecision {
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(cwd, resolved)
	}
	resolved = filepath.Clean(resolved)

	if cfg.ProjectDir != "" && IsWithin(resolved, cfg.ProjectDir) {
		if op == api.OpWrite && cfg.BlockProjectDirWrite {
			return api.PathDecision{
				ResolvedPath: resolved,
				Reason:       fmt.Sprintf("writes to the project directory are blocked: %s", resolved),
			}
		}
		return api.PathDecision{Allowed: true, ResolvedPath: resolved}
	}

	var dirs []string
	switch op {
	case api.OpWrite:
		dirs = cfg.Permissions.Write
	default:
		dirs = cfg.Permissions.Read
	}
	if len(dirs) == 0 {
		return api.PathDecision{
			ResolvedPath: resolved,
			Reason:       fmt.Sprintf("no %s permissions configured", op),
		}
	}

	for _, dir := range dirs {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cwd, dir)
		}
		if IsWithin(resolved, dir) {
			return api.PathDecision{Allowed: true, ResolvedPath: resolved}
		}
	}
	return api.PathDecision{
		ResolvedPath: resolved,
		Reason:       fmt.Sprintf("%s access to %s is not permitted", op, resolved),
	}
}
