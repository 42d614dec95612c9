// Package version carries build identification, set via -ldflags at release
// time.
package version

import "fmt"

var (
	// Version is the drivekit release version.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build identification for startup logs.
func String() string {
	return fmt.Sprintf("drivekit %s (%s, built %s)", Version, GitSHA, BuildTime)
}
