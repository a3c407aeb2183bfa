// Package version holds build metadata injected via ldflags:
//
//	go build -ldflags "-X github.com/kailas-cloud/r2rprobe/internal/version.Version=v0.3.0"
package version

// Build metadata.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// UserAgent is sent with every R2R request so service logs can tell probe runs apart.
func UserAgent() string {
	return "r2rprobe/" + Version
}
