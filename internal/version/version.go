package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the released version of the service.
// Overridden at build time:
//
//	go build -ldflags "-X github.com/hrygo/fitcoach/internal/version.Version=0.3.0"
var Version = "0.0.0-dev"

// GitCommit is the git commit hash at build time.
var GitCommit = "unknown"

// BuildTime is the build timestamp in RFC3339 format.
var BuildTime = "unknown"

// Canonical returns the semver form of v ("v" prefixed), or "" when v is not a valid version.
func Canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}

// IsRelease reports whether Version is a valid semver without prerelease tag.
func IsRelease() bool {
	c := Canonical(Version)
	return c != "" && semver.Prerelease(c) == ""
}

// String returns the version string with the short commit hash.
func String() string {
	v := Version
	if GitCommit != "" && GitCommit != "unknown" {
		shortCommit := GitCommit
		if len(shortCommit) > 8 {
			shortCommit = shortCommit[:8]
		}
		v = fmt.Sprintf("%s-%s", v, shortCommit)
	}
	return v
}

// StringFull returns the version with build metadata.
func StringFull() string {
	parts := []string{"Version=" + String()}
	if BuildTime != "" && BuildTime != "unknown" {
		parts = append(parts, "BuildTime="+BuildTime)
	}
	if !IsRelease() {
		parts = append(parts, "Channel=dev")
	}
	return strings.Join(parts, " ")
}
