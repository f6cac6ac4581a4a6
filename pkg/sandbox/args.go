// Package sandbox translates a permission set into the capability flags
// of the sandboxed runtime and manages the spawned subprocess: deadline
// enforcement, output collection, and guaranteed cleanup.
package sandbox

import (
	"strings"

	"github.com/safeshell/safeshell/pkg/api"
)

// BuildFlags maps a configuration's permission set onto the declarative
// allow/deny flag vector of the sandboxed runtime.
//
// The script's own directory is always readable so the generated script
// can be loaded. Deny lists are layered after the allow lists; the
// runtime gives deny precedence. Network is denied by omission: no flag
// is emitted unless the config grants it. A single unrestricted spawn
// capability is granted when any run permission exists; which command may
// actually run is decided by the permission engine before spawn, not by
// the OS sandbox.
func BuildFlags(cfg *api.Config, scriptDir string) []string {
	var flags []string

	reads := append(append([]string(nil), cfg.Permissions.Read...), scriptDir)
	flags = append(flags, "--allow-read="+strings.Join(reads, ","))

	if len(cfg.Permissions.Write) > 0 {
		flags = append(flags, "--allow-write="+strings.Join(cfg.Permissions.Write, ","))
	}
	if len(cfg.Permissions.DenyRead) > 0 {
		flags = append(flags, "--deny-read="+strings.Join(cfg.Permissions.DenyRead, ","))
	}
	if len(cfg.Permissions.DenyWrite) > 0 {
		flags = append(flags, "--deny-write="+strings.Join(cfg.Permissions.DenyWrite, ","))
	}

	switch {
	case cfg.Permissions.Net.All:
		flags = append(flags, "--allow-net")
	case len(cfg.Permissions.Net.Hosts) > 0:
		flags = append(flags, "--allow-net="+strings.Join(cfg.Permissions.Net.Hosts, ","))
	}

	if cfg.AllowsRun() {
		flags = append(flags, "--allow-run")
	}

	if cfg.Env.AllowReadAll == nil || *cfg.Env.AllowReadAll {
		flags = append(flags, "--allow-env")
	} else if len(cfg.Env.Allow) > 0 {
		flags = append(flags, "--allow-env="+strings.Join(cfg.Env.Allow, ","))
	}

	return flags
}
