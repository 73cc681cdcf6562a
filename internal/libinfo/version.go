/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package libinfo reports the version of the throttlekit module the binary is built from.
package libinfo

import (
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const moduleName = "github.com/acronis/go-throttlekit"

// PrometheusVersionLabel is a const label that is added to the daemon's metrics.
const PrometheusVersionLabel = "throttlekit_version"

const develVersion = "(devel)"

// AddPrometheusVersionLabel returns a copy of labels with the version label added.
func AddPrometheusVersionLabel(labels prometheus.Labels) prometheus.Labels {
	labelsCopy := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		labelsCopy[k] = v
	}
	labelsCopy[PrometheusVersionLabel] = GetVersion()
	return labelsCopy
}

var version string
var versionOnce sync.Once

// GetVersion returns the module version, "v0.0.0" if it's unknown (e.g. in tests).
func GetVersion() string {
	versionOnce.Do(func() {
		if buildInfo, ok := debug.ReadBuildInfo(); ok {
			version = extractVersion(buildInfo, moduleName)
		}
		if version == "" {
			version = "v0.0.0"
		}
	})
	return version
}

// extractVersion looks for the module first as the main module (the throttled binary)
// and then among the dependencies (throttlekit used as a library).
// The module path may carry a major version suffix ("/vN").
func extractVersion(buildInfo *debug.BuildInfo, modName string) string {
	if buildInfo == nil {
		return ""
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	if re.MatchString(buildInfo.Main.Path) && buildInfo.Main.Version != develVersion {
		return buildInfo.Main.Version
	}
	for _, dep := range buildInfo.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}
