package version

// Version contains the application version information.
// This should be set via build-time ldflags in production:
// go build -ldflags "-X git.home.luguber.info/inful/pagebuild/internal/version.Version=v1.2.0".
var Version = "dev"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version with commit and build time when they were stamped.
func String() string {
	s := Version
	if GitCommit != "unknown" {
		s += " (" + GitCommit
		if BuildTime != "unknown" {
			s += ", " + BuildTime
		}
		s += ")"
	}
	return s
}
