// Package version reports the version of the blipkit binaries.
package version

import "runtime/debug"

// Version can be set at build time:
// go build -ldflags "-X github.com/vsariola/blipkit/version.Version=$(git describe --dirty)"
var Version string

// Hash is the short VCS revision recorded in the build info, suffixed with
// -dirty for modified working trees.
var Hash = func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var revision string
	modified := false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if revision != "" && modified {
		revision += "-dirty"
	}
	return revision
}()

// VersionOrHash returns Version if set, otherwise Hash, otherwise "devel".
func VersionOrHash() string {
	switch {
	case Version != "":
		return Version
	case Hash != "":
		return Hash
	}
	return "devel"
}
