// Package version holds build version information, overridable at link
// time with -ldflags "-X .../pkg/version.Version=v1.2.3".
package version

var (
	// Version is the release version.
	Version = "0.1.0-dev"
	// Commit is the git commit the binary was built from.
	Commit = "unknown"
)
