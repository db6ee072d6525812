package version

import (
	"fmt"
	"runtime"
)

// Build information, injected via ldflags at build time
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const service = "pollpulse"

type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

func Get() Info {
	return Info{
		Service:   service,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// Release formats the build as "service@version+commit", the form used to
// tag error reports.
func (i Info) Release() string {
	if i.Commit == "" || i.Commit == "unknown" {
		return fmt.Sprintf("%s@%s", i.Service, i.Version)
	}
	return fmt.Sprintf("%s@%s+%s", i.Service, i.Version, i.Commit)
}
