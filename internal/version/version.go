package version

var (
	// Version is the release of the txwatcher binary. Overridden at build time via -ldflags.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)
