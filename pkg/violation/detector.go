// Package violation classifies execution failures as permission
// violations versus generic engine errors, and drives the pending
// request + retry-menu flow for the violations.
package violation

import (
	"errors"
	"regexp"
	"strings"

	"github.com/safeshell/safeshell/pkg/api"
)

// Violation codes as they appear on the wire and in pending records.
const (
	CodePathViolation    = "PATH_VIOLATION"
	CodeSymlinkViolation = "SYMLINK_VIOLATION"
	CodeSandboxDenied    = "SANDBOX_DENIED"
	CodeNotCapable       = "NotCapable"
)

// Detection is the result of classifying a failure.
type Detection struct {
	IsViolation bool
	Path        string
	Operation   api.PathOperation
	Code        string
}

var (
	// Runtime-style denial: `Requires read access to "/etc/hosts"`.
	accessPattern = regexp.MustCompile(`access to "([^"]+)"`)
	// Internal denial: `Path '/etc/hosts' is outside allowed directories`.
	pathPattern = regexp.MustCompile(`Path '([^']+)'`)
	// Symlink denial names both ends; the grant must cover the target,
	// not the link itself.
	symlinkPattern = regexp.MustCompile(`Symlink '([^']+)' points to '([^']+)'`)
)

// Detect classifies an error value. Sentinel wrapping is checked first,
// then the message text, since failures crossing the subprocess boundary
// arrive as plain strings.
func Detect(err error) Detection {
	if err == nil {
		return Detection{Operation: api.OpRead}
	}
	code := ""
	switch {
	case errors.Is(err, api.ErrSymlinkViolation):
		code = CodeSymlinkViolation
	case errors.Is(err, api.ErrPathViolation):
		code = CodePathViolation
	case errors.Is(err, api.ErrSandboxDenied):
		code = CodeSandboxDenied
	}
	return DetectText(code, err.Error())
}

// DetectText classifies by explicit code and message text. A recognized
// code decides the class outright; otherwise known message phrasings are
// matched. Path extraction and the read/write default come from the
// message in both cases.
func DetectText(code, message string) Detection {
	det := Detection{Operation: operationOf(message)}

	switch code {
	case CodeSymlinkViolation:
		det.IsViolation = true
		det.Code = CodeSymlinkViolation
	case CodePathViolation:
		det.IsViolation = true
		det.Code = CodePathViolation
	case CodeSandboxDenied, CodeNotCapable:
		det.IsViolation = true
		det.Code = CodeSandboxDenied
	default:
		switch {
		case symlinkPattern.MatchString(message):
			det.IsViolation = true
			det.Code = CodeSymlinkViolation
		case pathPattern.MatchString(message):
			det.IsViolation = true
			det.Code = CodePathViolation
		case accessPattern.MatchString(message) || strings.Contains(message, "NotCapable"):
			det.IsViolation = true
			det.Code = CodeSandboxDenied
		}
	}
	if !det.IsViolation {
		return det
	}

	det.Path = extractPath(message)
	return det
}

// extractPath pulls the offending path out of a violation message. For
// symlink violations the resolved target is returned, because that is
// the path a grant must name.
func extractPath(message string) string {
	if m := symlinkPattern.FindStringSubmatch(message); m != nil {
		return m[2]
	}
	if m := accessPattern.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	if m := pathPattern.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	return ""
}

func operationOf(message string) api.PathOperation {
	if strings.Contains(strings.ToLower(message), "write") {
		return api.OpWrite
	}
	return api.OpRead
}
