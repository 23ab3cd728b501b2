package version

// Build metadata, replaced through -ldflags at release time.
var (
	Version      = "0.1.0"
	Toolname     = "artifactory-fetch"
	Organization = "unknown"
	BuildDate    = "unknown"
	CommitSHA    = "unknown"
)

// UserAgent is sent by the CLI so server logs can tell its requests apart.
func UserAgent() string {
	return Toolname + "/" + Version
}
