// Package version exposes build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build-time variables set by ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns version, commit and build date. When the binary was built
// without ldflags the commit is taken from the embedded VCS build info.
func Info() (string, string, string) {
	commit := GitCommit
	if commit == "unknown" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" && s.Value != "" {
					commit = s.Value
				}
			}
		}
	}
	return Version, commit, BuildDate
}

// String formats the build metadata for --version output.
func String() string {
	v, c, d := Info()
	return fmt.Sprintf("netthinne %s (commit %s, built %s, %s/%s)", v, c, d, runtime.GOOS, runtime.GOARCH)
}
