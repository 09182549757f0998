// Package version reports build information for nxtrunk.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

const unknown = "unknown"

// Set via ldflags, e.g.
// -ldflags="-X github.com/andywolf/nxtrunk/internal/version.Version=v1.0.0"
// Values left unset are filled from the module build info when available.
var (
	Version   = "dev"
	Commit    = unknown
	BuildDate = unknown
)

// Build is the resolved build information.
type Build struct {
	Version   string
	Commit    string
	BuildDate string
	Modified  bool
}

// Current returns the ldflags values, falling back to the VCS stamps the Go
// toolchain embeds for 'go install' and 'go build' from a checkout.
func Current() Build {
	info, _ := debug.ReadBuildInfo()
	return resolve(info)
}

func resolve(info *debug.BuildInfo) Build {
	b := Build{Version: Version, Commit: Commit, BuildDate: BuildDate}
	if info == nil {
		return b
	}

	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == unknown {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.BuildDate == unknown {
				b.BuildDate = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b
}

// ShortCommit returns the first seven characters of the commit.
func (b Build) ShortCommit() string {
	c := b.Commit
	if len(c) > 7 {
		c = c[:7]
	}
	if b.Modified {
		c += "-dirty"
	}
	return c
}

// Short returns the version string (e.g., "v1.2.3" or "dev").
func Short() string {
	return Current().Version
}

// Info returns a single line such as
// "nxtrunk v1.2.3 (commit: abc1234, built: 2024-01-15T10:30:00Z, go: go1.24.x)".
func Info() string {
	return Current().info()
}

func (b Build) info() string {
	return fmt.Sprintf("nxtrunk %s (commit: %s, built: %s, go: %s)",
		b.Version, b.ShortCommit(), b.BuildDate, runtime.Version())
}

// Full returns multi-line version output.
func Full() string {
	return Current().full()
}

func (b Build) full() string {
	return fmt.Sprintf(`nxtrunk %s
  Commit:     %s
  Built:      %s
  Go version: %s
  OS/Arch:    %s/%s`,
		b.Version, b.Commit, b.BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
