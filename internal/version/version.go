// Package version provides build information for the deke binary.
package version

import (
	_ "embed"
	"fmt"
	"strings"
)

// VERSION contains the version from the VERSION file.
// It is the fallback when ldflags are not set (e.g., go install).
//
//go:embed VERSION
var VERSION string

// Info describes a build.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	// Language is the policy language version the binary implements.
	Language string `json:"language"`
}

// Get returns the embedded version with "v" prefix.
func Get() string {
	return "v" + strings.TrimSpace(VERSION)
}

// Resolve fills unset or "dev" build fields from the embedded version.
func Resolve(ver, commit, date, language string) Info {
	if ver == "" || ver == "dev" {
		ver = Get()
	}
	if commit == "" {
		commit = "none"
	}
	if date == "" {
		date = "unknown"
	}
	return Info{Version: ver, Commit: commit, Date: date, Language: language}
}

// String renders the build in one line.
func (i Info) String() string {
	return fmt.Sprintf("deke %s (commit %s, built %s, language %s)", i.Version, i.Commit, i.Date, i.Language)
}
