// Package version holds build-time version metadata, populated via
// -ldflags at release time.
package version

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)
