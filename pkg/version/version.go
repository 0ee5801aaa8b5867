// Package version exposes the build identity of the statusstream binary.
package version

import (
	"runtime"
	"runtime/debug"
)

const unknown = "unknown"

// Set at link time, e.g.
// -ldflags "-X github.com/compozy/statusstream/pkg/version.Version=v0.3.0"
var (
	Version    = unknown
	CommitHash = unknown
	BuildDate  = unknown
)

// Info describes the running binary.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildDate  string `json:"build_date"`
	GoVersion  string `json:"go_version"`
}

// Get returns the linked build identity, filling unset fields from the
// module build info embedded by the Go toolchain.
func Get() Info {
	info := Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildDate:  BuildDate,
		GoVersion:  runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromBuildInfo(&info, bi)
	}
	return info
}

func fillFromBuildInfo(info *Info, bi *debug.BuildInfo) {
	if info.Version == unknown && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.CommitHash == unknown && setting.Value != "" {
				info.CommitHash = setting.Value
			}
		case "vcs.time":
			if info.BuildDate == unknown && setting.Value != "" {
				info.BuildDate = setting.Value
			}
		}
	}
}

// Short is the abbreviated commit used in banners and user agents.
func (i Info) Short() string {
	if len(i.CommitHash) > 7 && i.CommitHash != unknown {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
