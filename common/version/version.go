package version

import (
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// Injected via ldflags at release time. SetDefaults fills in whatever
// the build left blank.
var GitCommit string
var Version string

func SetDefaults() {
	build, infoOk := debug.ReadBuildInfo()

	if GitCommit == "" {
		GitCommit = ".dev"
		if infoOk {
			for _, setting := range build.Settings {
				if setting.Key == "vcs.revision" {
					GitCommit = setting.Value
					break
				}
			}
		}
	}

	if Version == "" {
		Version = "unknown"
	}
}

// Summary is the single-line form used by the -version flag.
func Summary() string {
	SetDefaults()
	return Version + " (" + GitCommit + ")"
}

// UserAgent identifies the archiver on outbound media fetches when the
// config does not name an agent of its own.
func UserAgent() string {
	SetDefaults()
	return "eventpix-media-archiver/" + Version
}

// Log writes the version to the startup log.
func Log() {
	SetDefaults()
	logrus.Info("Version: " + Version)
	logrus.Info("Commit: " + GitCommit)
}
