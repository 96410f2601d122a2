// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// These are set via ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var (
	parseOnce sync.Once
	parsed    *semver.Version
)

// Parsed returns the semantic version, or nil for dev builds.
func Parsed() *semver.Version {
	parseOnce.Do(func() {
		if v, err := semver.NewVersion(Version); err == nil {
			parsed = v
		}
	})
	return parsed
}

// IsPrerelease reports whether the build is a tagged pre-release.
func IsPrerelease() bool {
	v := Parsed()
	return v != nil && v.Prerelease() != ""
}

// IsDevBuild reports whether the build carries no valid semver.
func IsDevBuild() bool {
	return Parsed() == nil
}

// ShortCommit returns the first seven characters of the commit hash.
func ShortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}

// Info returns formatted version information.
func Info() string {
	return fmt.Sprintf(
		"listingsync %s (%s) built on %s with %s",
		Version,
		ShortCommit(),
		BuildDate,
		runtime.Version(),
	)
}

// Short returns just the version number.
func Short() string {
	return Version
}
