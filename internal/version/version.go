// Package version reports the build version of rise.
package version

import (
	_ "embed"
	"fmt"
	"runtime"
	"strings"
)

//go:embed VERSION
var versionContent string

// Commit and Date are set at build time:
//
//	go build -ldflags "-X github.com/ShayCichocki/rise/internal/version.Commit=$(git rev-parse --short HEAD)"
var (
	Commit = ""
	Date   = ""
)

// Get returns the current version, with whitespace trimmed.
func Get() string {
	return strings.TrimSpace(versionContent)
}

// String returns the version with build metadata, for `rise version`.
func String() string {
	var b strings.Builder
	b.WriteString(Get())
	if Commit != "" {
		fmt.Fprintf(&b, " (%s", Commit)
		if Date != "" {
			fmt.Fprintf(&b, ", %s", Date)
		}
		b.WriteString(")")
	}
	fmt.Fprintf(&b, " %s/%s", runtime.GOOS, runtime.GOARCH)
	return b.String()
}
