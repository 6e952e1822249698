// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata embedded at link time:
//
//	go build -ldflags "-X bandtap/pkg/build.buildVersion=v0.1.0 \
//	  -X bandtap/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	  -X bandtap/pkg/build.buildTime=$(date -u +%FT%TZ)"
//
// Development builds carry no flags and report "dev"/"unknown".
package build

import (
	"errors"
	"fmt"
)

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaultFlags()
)

func defaultFlags() *ldFlags {
	return &ldFlags{
		Name:        "bandtap",
		Description: "Live bass/mid/treble levels from the audio playing on this machine",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize copies the ldflags variables into the build information.
// Flags that were not set keep their development defaults and are
// reported in the returned error; the information is usable either way.
func Initialize() error {
	var errs []error
	set := func(dst *string, v, name string) {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
			return
		}
		*dst = v
	}

	if buildName != "" {
		buildFlags.Name = buildName
	}
	set(&buildFlags.Time, buildTime, "BuildTime")
	set(&buildFlags.Commit, buildCommit, "BuildCommit")
	set(&buildFlags.Version, buildVersion, "BuildVersion")
	return errors.Join(errs...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// String formats the version line printed by --version.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", f.Version, f.Commit, f.Time)
}
