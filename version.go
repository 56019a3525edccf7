package atomtree

import (
	"runtime"
	"runtime/debug"
)

// Version is the semantic version of the atomtree library.
const Version = "0.3.0"

// VersionInfo contains detailed version information.
type VersionInfo struct {
	Version   string
	GitCommit string // "unknown" outside a VCS build
	BuildTime string // commit time, RFC 3339
	GoVersion string
}

// GetVersionInfo returns the library version plus the VCS revision and Go
// version recorded in the binary's build info.
func GetVersionInfo() VersionInfo {
	info := VersionInfo{
		Version:   Version,
		GitCommit: "unknown",
		BuildTime: "unknown",
		GoVersion: runtime.Version(),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.GitCommit = s.Value
		case "vcs.time":
			info.BuildTime = s.Value
		}
	}
	return info
}
