// Package misc provides information about the program itself.
package misc

import "runtime/debug"

var (
	appName = "reader"
	version = "development"
)

// GetAppName returns short program name used for logs, temporary files and
// reports.
func GetAppName() string {
	return appName
}

// GetVersion returns program version. Set via ldflags on release builds,
// otherwise derived from module build information.
func GetVersion() string {
	if version != "development" {
		return version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return version
}

// GetGitHash returns VCS revision recorded in build information, if any.
func GetGitHash() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return "unknown"
}
