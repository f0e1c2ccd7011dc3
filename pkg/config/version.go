// Package config carries the build identity stamped into the binary.
package config

import (
	"fmt"
	"runtime"
)

// Set at build time via -ldflags "-X".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build identity reported by the version command and the
// status endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Current returns the identity of the running binary.
func Current() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String renders the identity on one line.
func (i Info) String() string {
	return fmt.Sprintf("repowatch %s (commit %s, built %s, %s)",
		i.Version, i.Commit, i.BuildTime, i.GoVersion)
}
