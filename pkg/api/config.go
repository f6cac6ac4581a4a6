package api

import (
	"encoding/json"
	"time"

	"github.com/safeshell/safeshell/internal/errx"
)

// DefaultTimeout bounds a single sandboxed execution when the configuration
// does not specify one.
const DefaultTimeout = 30 * time.Second

// Config is the fully parsed configuration consumed by the permission
// engine and the sandbox. Loading from disk is the caller's concern; this
// package only defines the shape and the merge semantics.
type Config struct {
	Permissions Permissions                `json:"permissions,omitempty"`
	External    map[string]ExternalCommand `json:"external,omitempty"`
	Env         EnvPolicy                  `json:"env,omitempty"`
	Imports     ImportPolicy               `json:"imports,omitempty"`
	Timeout     time.Duration              `json:"timeout,omitempty"`
	ProjectDir  string                     `json:"project_dir,omitempty"`

	// AllowProjectCommands permits executing files that live under
	// ProjectDir without listing them individually.
	AllowProjectCommands bool `json:"allow_project_commands,omitempty"`

	// BlockProjectDirWrite denies writes inside ProjectDir even though
	// reads there are implicitly allowed.
	BlockProjectDirWrite bool `json:"block_project_dir_write,omitempty"`
}

// Permissions is the filesystem/network/process permission set.
type Permissions struct {
	Read      []string      `json:"read,omitempty"`
	Write     []string      `json:"write,omitempty"`
	Net       NetPermission `json:"net,omitempty"`
	Run       []string      `json:"run,omitempty"`
	Env       []string      `json:"env,omitempty"`
	DenyRead  []string      `json:"deny_read,omitempty"`
	DenyWrite []string      `json:"deny_write,omitempty"`
}

// ExternalCommand describes an allow-listed external command and the
// flag constraints that apply to it.
type ExternalCommand struct {
	Allow        AllowRule `json:"allow,omitempty"`
	DenyFlags    []string  `json:"deny_flags,omitempty"`
	RequireFlags []string  `json:"require_flags,omitempty"`
	PathArgs     []string  `json:"path_args,omitempty"`
}

// EnvPolicy controls which environment variables a sandboxed process sees.
// AllowReadAll is tri-state: nil means unrestricted (the default), an
// explicit false restricts the child to the Allow list.
type EnvPolicy struct {
	Allow        []string `json:"allow,omitempty"`
	Mask         []string `json:"mask,omitempty"`
	AllowReadAll *bool    `json:"allow_read_all,omitempty"`
}

// ImportPolicy classifies script imports by trust level.
type ImportPolicy struct {
	Trusted []string `json:"trusted,omitempty"`
	Allowed []string `json:"allowed,omitempty"`
	Blocked []string `json:"blocked,omitempty"`
}

// NetPermission models the JSON union `true | ["host", ...]`.
// All set means unrestricted network access; otherwise only the listed
// hosts are reachable. Neither means no network at all.
type NetPermission struct {
	All   bool
	Hosts []string
}

func (n NetPermission) MarshalJSON() ([]byte, error) {
	if n.All {
		return json.Marshal(true)
	}
	if len(n.Hosts) > 0 {
		return json.Marshal(n.Hosts)
	}
	return json.Marshal(false)
}

func (n *NetPermission) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*n = NetPermission{All: b}
		return nil
	}
	var hosts []string
	if err := json.Unmarshal(data, &hosts); err != nil {
		return err
	}
	*n = NetPermission{Hosts: hosts}
	return nil
}

// Enabled reports whether any network access is granted.
func (n NetPermission) Enabled() bool {
	return n.All || len(n.Hosts) > 0
}

// Merge unions two net permissions. Unrestricted dominates any host list.
func (n NetPermission) Merge(other NetPermission) NetPermission {
	if n.All || other.All {
		return NetPermission{All: true}
	}
	return NetPermission{Hosts: unionStrings(n.Hosts, other.Hosts)}
}

// AllowRule models the JSON union `true | ["subcommand", ...]` used by
// external command entries.
type AllowRule struct {
	All    bool
	Values []string
}

func (a AllowRule) MarshalJSON() ([]byte, error) {
	if a.All {
		return json.Marshal(true)
	}
	return json.Marshal(a.Values)
}

func (a *AllowRule) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*a = AllowRule{All: b}
		return nil
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*a = AllowRule{Values: values}
	return nil
}

// GetTimeout returns the configured timeout or the default.
func (c *Config) GetTimeout() time.Duration {
	if c != nil && c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// CommandAllowSet returns the union of permissions.run and the external
// command names, the set consulted by every command check.
func (c *Config) CommandAllowSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Permissions.Run)+len(c.External))
	for _, name := range c.Permissions.Run {
		set[name] = struct{}{}
	}
	for name := range c.External {
		set[name] = struct{}{}
	}
	return set
}

// AllowsRun reports whether the configuration grants any process-spawn
// capability at all.
func (c *Config) AllowsRun() bool {
	return len(c.Permissions.Run) > 0 || len(c.External) > 0
}

// Merge combines c with an override and returns the result. Every list
// field is a set union; net follows NetPermission.Merge (unrestricted
// dominates); timeout and the scalar flags take the override's value when
// the override sets them.
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c
	result.Permissions = Permissions{
		Read:      unionStrings(c.Permissions.Read, other.Permissions.Read),
		Write:     unionStrings(c.Permissions.Write, other.Permissions.Write),
		Net:       c.Permissions.Net.Merge(other.Permissions.Net),
		Run:       unionStrings(c.Permissions.Run, other.Permissions.Run),
		Env:       unionStrings(c.Permissions.Env, other.Permissions.Env),
		DenyRead:  unionStrings(c.Permissions.DenyRead, other.Permissions.DenyRead),
		DenyWrite: unionStrings(c.Permissions.DenyWrite, other.Permissions.DenyWrite),
	}

	if len(other.External) > 0 {
		merged := make(map[string]ExternalCommand, len(c.External)+len(other.External))
		for name, ext := range c.External {
			merged[name] = ext
		}
		for name, ext := range other.External {
			merged[name] = ext
		}
		result.External = merged
	}

	result.Env = EnvPolicy{
		Allow:        unionStrings(c.Env.Allow, other.Env.Allow),
		Mask:         unionStrings(c.Env.Mask, other.Env.Mask),
		AllowReadAll: c.Env.AllowReadAll,
	}
	if other.Env.AllowReadAll != nil {
		result.Env.AllowReadAll = other.Env.AllowReadAll
	}

	result.Imports = ImportPolicy{
		Trusted: unionStrings(c.Imports.Trusted, other.Imports.Trusted),
		Allowed: unionStrings(c.Imports.Allowed, other.Imports.Allowed),
		Blocked: unionStrings(c.Imports.Blocked, other.Imports.Blocked),
	}

	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.ProjectDir != "" {
		result.ProjectDir = other.ProjectDir
	}
	if other.AllowProjectCommands {
		result.AllowProjectCommands = true
	}
	if other.BlockProjectDirWrite {
		result.BlockProjectDirWrite = true
	}
	return &result
}

// Clone returns a deep copy of the configuration. Retry flows derive a
// one-shot config from a clone so "allow once" never mutates the original.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Permissions = Permissions{
		Read:      append([]string(nil), c.Permissions.Read...),
		Write:     append([]string(nil), c.Permissions.Write...),
		Net:       NetPermission{All: c.Permissions.Net.All, Hosts: append([]string(nil), c.Permissions.Net.Hosts...)},
		Run:       append([]string(nil), c.Permissions.Run...),
		Env:       append([]string(nil), c.Permissions.Env...),
		DenyRead:  append([]string(nil), c.Permissions.DenyRead...),
		DenyWrite: append([]string(nil), c.Permissions.DenyWrite...),
	}
	if c.External != nil {
		clone.External = make(map[string]ExternalCommand, len(c.External))
		for name, ext := range c.External {
			clone.External[name] = ext
		}
	}
	clone.Env = EnvPolicy{
		Allow: append([]string(nil), c.Env.Allow...),
		Mask:  append([]string(nil), c.Env.Mask...),
	}
	if c.Env.AllowReadAll != nil {
		v := *c.Env.AllowReadAll
		clone.Env.AllowReadAll = &v
	}
	clone.Imports = ImportPolicy{
		Trusted: append([]string(nil), c.Imports.Trusted...),
		Allowed: append([]string(nil), c.Imports.Allowed...),
		Blocked: append([]string(nil), c.Imports.Blocked...),
	}
	return &clone
}

func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errx.Wrap(ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// unionStrings merges two string slices into a deduplicated union,
// preserving first-seen order.
func unionStrings(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	result := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		result = append(result, s)
	}
	for _, s := range b {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		result = append(result, s)
	}
	return result
}
