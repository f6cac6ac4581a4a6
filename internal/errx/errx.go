// Package errx provides small helpers for building wrapped errors from
// package-level sentinels. Sentinels stay matchable with errors.Is while
// the returned error carries the underlying cause or extra context.
package errx

import "fmt"

// Wrap returns an error that matches sentinel via errors.Is and carries
// cause as the underlying error. A nil cause returns the sentinel itself.
func Wrap(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// With returns an error that matches sentinel via errors.Is with extra
// formatted context appended.
func With(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w"+format, append([]interface{}{sentinel}, args...)...)
}
