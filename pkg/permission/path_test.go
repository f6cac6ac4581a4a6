package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/safeshell/safeshell/pkg/api"
)

func TestIsWithin(t *testing.T) {
	tests := []struct {
		path string
		dir  string
		want bool
	}{
		{"/foo/bar/baz", "/foo/bar", true},
		{"/foo/barbaz", "/foo/bar", false},
		{"/foo/bar", "/foo/bar", true},
		{"/foo", "/foo/bar", false},
		{"/foo/bar/", "/foo/bar", true},
		{"/anything", "/", true},
		{"/foo/bar/../baz", "/foo/bar", false},
	}

	for _, tt := range tests {
		t.Run(tt.path+" in "+tt.dir, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWithin(tt.path, tt.dir))
		})
	}
}

func TestCheckPathProjectDir(t *testing.T) {
	cfg := &api.Config{ProjectDir: "/project"}

	decision := CheckPath("/project/src/main.go", api.OpWrite, cfg, "/project")
	assert.True(t, decision.Allowed)
	assert.Equal(t, "/project/src/main.go", decision.ResolvedPath)
}

func TestCheckPathBlockProjectDirWrite(t *testing.T) {
	cfg := &api.Config{ProjectDir: "/project", BlockProjectDirWrite: true}

	decision := CheckPath("/project/f.txt", api.OpWrite, cfg, "/project")
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "blocked")

	decision = CheckPath("/project/f.txt", api.OpRead, cfg, "/project")
	assert.True(t, decision.Allowed)
}

func TestCheckPathConfiguredDirectories(t *testing.T) {
	cfg := &api.Config{Permissions: api.Permissions{
		Read:  []string{"/data"},
		Write: []string{"/out"},
	}}

	tests := []struct {
		name    string
		path    string
		op      api.PathOperation
		allowed bool
	}{
		{"read inside read dir", "/data/file", api.OpRead, true},
		{"read outside read dir", "/etc/passwd", api.OpRead, false},
		{"segment boundary respected", "/database/file", api.OpRead, false},
		{"write inside write dir", "/out/log.txt", api.OpWrite, true},
		{"write to read-only dir", "/data/file", api.OpWrite, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := CheckPath(tt.path, tt.op, cfg, "/")
			assert.Equal(t, tt.allowed, decision.Allowed)
		})
	}
}

func TestCheckPathNoPermissionsConfigured(t *testing.T) {
	decision := CheckPath("/etc/hosts", api.OpWrite, &api.Config{}, "/")
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "no write permissions configured")

	decision = CheckPath("/etc/hosts", api.OpRead, &api.Config{}, "/")
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "no read permissions configured")
}

func TestCheckPathResolvesRelative(t *testing.T) {
	cfg := &api.Config{Permissions: api.Permissions{Read: []string{"/work/data"}}}

	decision := CheckPath("data/file.csv", api.OpRead, cfg, "/work")
	assert.True(t, decision.Allowed)
	assert.Equal(t, "/work/data/file.csv", decision.ResolvedPath)
}

func TestCheckPathRelativePermissionDir(t *testing.T) {
	cfg := &api.Config{Permissions: api.Permissions{Write: []string{"out"}}}

	decision := CheckPath("/work/out/result", api.OpWrite, cfg, "/work")
	assert.True(t, decision.Allowed)
}
