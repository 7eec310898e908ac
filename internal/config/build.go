package config

import "runtime/debug"

// NewBuildInfo reads the version control metadata the Go toolchain embeds
// into the binary. Builds outside a VCS checkout (and test binaries) yield
// placeholder values.
func NewBuildInfo() BuildInfo {
	info, ok := debug.ReadBuildInfo()
	return newBuildInfo(info, ok)
}

// newBuildInfo extracts the interesting settings. Split out so tests can
// feed synthetic build info.
func newBuildInfo(info *debug.BuildInfo, ok bool) BuildInfo {
	b := BuildInfo{Version: "unknown"}
	if !ok || info == nil {
		return b
	}

	if info.Main.Version != "" {
		b.Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			b.Commit = setting.Value
		case "vcs.modified":
			b.Dirty = setting.Value == "true"
		}
	}

	return b
}
