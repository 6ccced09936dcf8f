package agentclient

import (
	"fmt"
	"runtime"
)

// Build metadata, overridable with -ldflags "-X github.com/Joylan9/agentclient.Version=...".
var (
	Version   = "v0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// UserAgent is sent on every request.
func UserAgent() string {
	return "agentclient/" + Version
}

// GetVersion returns a one-line description of the build.
func GetVersion() string {
	return fmt.Sprintf("agentclient %s (commit %s, built %s, %s)", Version, GitCommit, BuildDate, runtime.Version())
}

// GetVersionInfo returns build metadata as fields for logging.
func GetVersionInfo() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     GitCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
	}
}
