// Package version holds build metadata injected with -ldflags.
package version

import "fmt"

var (
	// Version is the semantic version.
	Version = "v0.0.0-dev"

	// GitCommit is the source revision.
	GitCommit = "unknown"

	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// Info returns "kioku <version> (<commit>, built <time>)".
func Info() string {
	return fmt.Sprintf("kioku %s (%s, built %s)", Version, GitCommit, BuildTime)
}
