// Package version holds build metadata injected via -ldflags at compile time.
package version

// Version and Commit default to "dev" for local builds; release builds set
// these with -ldflags "-X github.com/solvereign/solvereign/internal/version.Version=... ".
var (
	Version = "dev"
	Commit  = "unknown"
)
