package alphagsm

import "runtime/debug"

// Version is the current version of alphagsm
const Version = "0.3.0"

// VersionInfo contains detailed version information
type VersionInfo struct {
	// Version is the semantic version
	Version string
	// Revision is the VCS revision the binary was built from, if known
	Revision string
	// GoVersion is the toolchain that built the binary
	GoVersion string
}

// GetVersion returns the current version information
func GetVersion() VersionInfo {
	info := VersionInfo{Version: Version}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				info.Revision = s.Value
			}
		}
	}
	return info
}
