package shellscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommands(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "simple command",
			script: "git status",
			want:   []string{"git"},
		},
		{
			name:   "pipeline",
			script: "cat file.txt | grep pattern | wc -l",
			want:   []string{"cat", "grep", "wc"},
		},
		{
			name:   "command substitution",
			script: `echo "$(date) on $(hostname)"`,
			want:   []string{"date", "hostname"},
		},
		{
			name:   "builtins skipped",
			script: "cd /tmp && echo hi && export FOO=1 && ls",
			want:   []string{"ls"},
		},
		{
			name:   "deduplicated first seen order",
			script: "git add -A; git commit -m x; make build",
			want:   []string{"git", "make"},
		},
		{
			name:   "assignment only statement",
			script: "FOO=bar BAZ=qux",
			want:   nil,
		},
		{
			name:   "dynamic head skipped",
			script: `$CC -o out main.c`,
			want:   nil,
		},
		{
			name:   "conditionals and loops",
			script: "if which go; then for f in *.go; do gofmt -w \"$f\"; done; fi",
			want:   []string{"which", "gofmt"},
		},
		{
			name:   "subshell and background",
			script: "(sleep 5; curl example.com) &",
			want:   []string{"sleep", "curl"},
		},
		{
			name:   "quoted literal head",
			script: `"jq" '.foo' data.json`,
			want:   []string{"jq"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Commands(tt.script)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandsParseError(t *testing.T) {
	_, err := Commands("if true; then")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParseScript)
}
