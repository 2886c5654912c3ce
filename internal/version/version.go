package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the SDK's current released version.
// This value can be overridden at build time using ldflags:
//
//	go build -ldflags "-X github.com/parley-im/parley-go/internal/version.Version=v0.3.0"
//
// Semantic versioning: https://semver.org/
var Version = "0.0.0-dev"

// GitCommit is the git commit hash at build time.
// Set via ldflags: -X github.com/parley-im/parley-go/internal/version.GitCommit=$(git rev-parse HEAD)
var GitCommit = "unknown"

// BuildTime is the build timestamp in RFC3339 format.
// Set via ldflags: -X github.com/parley-im/parley-go/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)
var BuildTime = "unknown"

// MinServerVersion is the oldest server release this client is tested
// against. Servers announce theirs in the X-API-Version response header.
const MinServerVersion = "0.2.0"

// IsServerSupported reports whether the announced server version meets
// MinServerVersion. Empty or non-semver announcements count as supported
// since old servers may not send the header at all.
func IsServerSupported(serverVersion string) bool {
	v := "v" + strings.TrimPrefix(serverVersion, "v")
	if !semver.IsValid(v) {
		return true
	}
	return semver.Compare(v, "v"+MinServerVersion) >= 0
}

// String returns the version string with optional commit hash.
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

// StringFull returns the complete version information including build
// metadata.
func StringFull() string {
	parts := []string{fmt.Sprintf("Version=%s", Version)}
	if GitCommit != "" && GitCommit != "unknown" {
		shortCommit := GitCommit
		if len(shortCommit) > 8 {
			shortCommit = shortCommit[:8]
		}
		parts = append(parts, fmt.Sprintf("Commit=%s", shortCommit))
	}
	if BuildTime != "" && BuildTime != "unknown" {
		parts = append(parts, fmt.Sprintf("BuildTime=%s", BuildTime))
	}
	return strings.Join(parts, " ")
}
