package violation

import (
	"path/filepath"
	"regexp"

	"github.com/safeshell/safeshell/internal/errx"
	"github.com/safeshell/safeshell/pkg/api"
	"github.com/safeshell/safeshell/pkg/store"
)

// PathChoice is a parsed retry-path menu answer.
type PathChoice struct {
	Deny  bool
	Read  bool
	Write bool
	Scope store.Scope
	// Dir widens the grant from the file itself to its parent directory.
	Dir bool
}

var pathChoicePattern = regexp.MustCompile(`^(r|w|rw)([1-3])(d?)$`)

// ParsePathChoice parses an answer to the path menu: `^(r|w|rw)([1-3])(d?)$`
// (digit 1 once, 2 session, 3 permanent), or "deny"/"4" to refuse the grant.
func ParsePathChoice(s string) (PathChoice, error) {
	if s == "deny" || s == "4" {
		return PathChoice{Deny: true}, nil
	}
	m := pathChoicePattern.FindStringSubmatch(s)
	if m == nil {
		return PathChoice{}, errx.With(ErrInvalidChoice, ": %q", s)
	}
	c := PathChoice{
		Read:  m[1] == "r" || m[1] == "rw",
		Write: m[1] == "w" || m[1] == "rw",
		Dir:   m[3] == "d",
	}
	var err error
	if c.Scope, err = pathScopeOf(m[2]); err != nil {
		return PathChoice{}, err
	}
	return c, nil
}

// CommandChoice is a parsed retry menu answer.
type CommandChoice struct {
	Deny  bool
	Scope store.Scope
}

// ParseCommandChoice parses an answer to the command menu: 1=once,
// 2=always, 3=session, 4=deny.
func ParseCommandChoice(s string) (CommandChoice, error) {
	if s == "4" {
		return CommandChoice{Deny: true}, nil
	}
	scope, err := scopeOf(s)
	if err != nil {
		return CommandChoice{}, err
	}
	return CommandChoice{Scope: scope}, nil
}

func scopeOf(digit string) (store.Scope, error) {
	switch digit {
	case "1":
		return store.ScopeOnce, nil
	case "2":
		return store.ScopeAlways, nil
	case "3":
		return store.ScopeSession, nil
	}
	return 0, errx.With(ErrInvalidChoice, ": %q", digit)
}

// pathScopeOf orders the path-menu digits by persistence: 3 is the
// permanent tier, so rw3 on /etc/hosts lands in the project permission
// file rather than the per-session one.
func pathScopeOf(digit string) (store.Scope, error) {
	switch digit {
	case "1":
		return store.ScopeOnce, nil
	case "2":
		return store.ScopeSession, nil
	case "3":
		return store.ScopeAlways, nil
	}
	return 0, errx.With(ErrInvalidChoice, ": %q", digit)
}

// Grants builds the permission grant a path choice resolves to. The
// directory variant grants the parent directory of the pending path.
func (c PathChoice) Grants(req *api.PendingPathRequest) *api.Grants {
	path := req.Path
	if c.Dir {
		path = filepath.Dir(path)
	}
	g := &api.Grants{Permissions: &api.PathGrants{}}
	if c.Read {
		g.Permissions.Read = []string{path}
	}
	if c.Write {
		g.Permissions.Write = []string{path}
	}
	return g
}
