// Package shellscan statically extracts the external commands a shell
// script will invoke, so the whole set can be checked against the
// permission engine before anything runs.
package shellscan

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/safeshell/safeshell/internal/errx"
)

// builtins never reach the OS and are skipped during the scan. The list
// covers the shell's own control surface, not coreutils.
var builtins = map[string]struct{}{
	"cd": {}, "pwd": {}, "echo": {}, "printf": {}, "read": {},
	"export": {}, "unset": {}, "set": {}, "shift": {}, "exit": {},
	"return": {}, "break": {}, "continue": {}, "true": {}, "false": {},
	"test": {}, "[": {}, "[[": {}, "source": {}, ".": {},
	"eval": {}, "exec": {}, "wait": {}, "trap": {}, "local": {},
	"declare": {}, "readonly": {}, "alias": {}, "unalias": {}, "type": {},
	"command": {}, "builtin": {}, "ulimit": {}, "umask": {}, "jobs": {},
	"fg": {}, "bg": {}, "kill": {}, "getopts": {}, "let": {}, ":": {},
}

// Commands parses a bash script and returns the distinct external
// command names it invokes, in first-seen order. Pipelines, command
// substitutions, subshells and compound statements are all walked.
// Heads that are variable expansions or other dynamic words cannot be
// named statically and are skipped; the sandbox still gates them at run
// time.
func Commands(script string) ([]string, error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(script), "")
	if err != nil {
		return nil, errx.Wrap(ErrParseScript, err)
	}

	seen := make(map[string]struct{})
	var commands []string
	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok {
			return true
		}
		name := callName(call)
		if name == "" {
			return true
		}
		if _, skip := builtins[name]; skip {
			return true
		}
		if _, dup := seen[name]; dup {
			return true
		}
		seen[name] = struct{}{}
		commands = append(commands, name)
		return true
	})
	return commands, nil
}

// callName returns the statically-known head of a call, or "" when the
// call is an assignment-only statement or its head is dynamic.
func callName(call *syntax.CallExpr) string {
	if len(call.Args) == 0 {
		return ""
	}
	name, ok := staticWord(call.Args[0])
	if !ok {
		return ""
	}
	return name
}

// staticWord flattens a word made only of literals and quoted literals.
// Any dynamic part (parameter expansion, command substitution,
// arithmetic) makes the word non-static.
func staticWord(word *syntax.Word) (string, bool) {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				lit, ok := qp.(*syntax.Lit)
				if !ok {
					return "", false
				}
				sb.WriteString(lit.Value)
			}
		default:
			return "", false
		}
	}
	return sb.String(), sb.Len() > 0
}
