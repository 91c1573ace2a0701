package obs

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Build describes the running binary. It is reported by /v1/info and the
// sitetrack_build_info gauge.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

var (
	buildOnce sync.Once
	buildMu   sync.RWMutex
	current   = Build{Version: "dev", Commit: "unknown", GoVersion: runtime.Version()}

	buildGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sitetrack_build_info",
			Help: "Build of the running sitetrack binary; always 1.",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// InitBuildInfo records version and commit and exposes them as a gauge.
func InitBuildInfo(version, commit string) Build {
	buildOnce.Do(func() {
		prometheus.MustRegister(buildGauge)
	})
	b := Build{Version: version, Commit: commit, GoVersion: runtime.Version()}
	buildMu.Lock()
	current = b
	buildMu.Unlock()
	buildGauge.WithLabelValues(b.Version, b.Commit, b.GoVersion).Set(1)
	return b
}

// CurrentBuild returns the build recorded by InitBuildInfo.
func CurrentBuild() Build {
	buildMu.RLock()
	defer buildMu.RUnlock()
	return current
}
