package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"seedwarden/internal/domain"
)

// Each run is a separate process, so everything describes the last cycle and
// is exported as a gauge through the node_exporter textfile collector.
var (
	CycleTorrents = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "seedwarden",
		Name:      "cycle_torrents",
		Help:      "Torrents handled in the last cycle by action.",
	}, []string{"action"})

	CycleErrors = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "seedwarden",
		Name:      "cycle_errors",
		Help:      "Errors seen in the last cycle by component.",
	}, []string{"component"})

	RegistryPruned = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "seedwarden",
		Name:      "registry_pruned_entries",
		Help:      "Registry entries pruned in the last cycle.",
	})

	FreeSpacePercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "seedwarden",
		Name:      "free_space_percent",
		Help:      "Free space of the download filesystem after eviction, -1 when not measured.",
	})

	CycleDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "seedwarden",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of the last cycle in seconds.",
	})

	LastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "seedwarden",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last cycle finished.",
	})

	LastRunSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "seedwarden",
		Name:      "last_run_success",
		Help:      "1 if the last cycle finished without a fatal error.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		CycleTorrents,
		CycleErrors,
		RegistryPruned,
		FreeSpacePercent,
		CycleDuration,
		LastRunTimestamp,
		LastRunSuccess,
	)
}

// ObserveCycle records a finished cycle.
func ObserveCycle(report domain.CycleReport, took time.Duration, finished time.Time, fatal error) {
	actions := map[string]int{
		"observed":    report.Observed,
		"finished":    report.Finished,
		"copied":      report.Copied,
		"copy_failed": report.CopyFailures,
		"retired":     report.Retired,
		"evicted":     report.Evicted,
		"started":     report.Started,
		"stopped":     report.Stopped,
		"reannounced": report.Reannounced,
		"relocated":   report.Relocated,
	}
	for action, n := range actions {
		CycleTorrents.WithLabelValues(action).Set(float64(n))
	}
	CycleErrors.WithLabelValues("gateway").Set(float64(report.GatewayErrors))
	CycleErrors.WithLabelValues("registry").Set(float64(report.RegistryErrors))
	RegistryPruned.Set(float64(report.Pruned))
	FreeSpacePercent.Set(float64(report.FreePercent))
	CycleDuration.Set(took.Seconds())
	LastRunTimestamp.Set(float64(finished.Unix()))
	if fatal != nil {
		LastRunSuccess.Set(0)
	} else {
		LastRunSuccess.Set(1)
	}
}

// WriteTextfile writes everything gathered by g to path in the text
// exposition format. The file is replaced atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
