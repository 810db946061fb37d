// Package metrics registers the Prometheus collectors for plugin host
// activity. Collectors register with the default registerer at import time;
// mount promhttp in the embedding process to expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoadsTotal counts physical library opens labelled by outcome
	// ("success", "error").
	LoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pluginhost_library_loads_total",
			Help: "Total number of physical library open attempts.",
		},
		[]string{"status"},
	)

	// UnloadsTotal counts physical library closes.
	UnloadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pluginhost_library_unloads_total",
			Help: "Total number of physical library closes.",
		},
	)

	// UnloadsBlockedTotal counts unload refusals caused by live instances.
	UnloadsBlockedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pluginhost_library_unloads_blocked_total",
			Help: "Unload attempts refused because instances were still alive.",
		},
	)

	// InstancesCreatedTotal counts plugin instance constructions labelled by
	// ownership mode ("managed", "unmanaged").
	InstancesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pluginhost_instances_created_total",
			Help: "Total plugin instances constructed.",
		},
		[]string{"mode"},
	)

	// LiveInstances tracks managed instances not yet released.
	LiveInstances = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pluginhost_live_instances",
			Help: "Managed plugin instances currently alive.",
		},
	)

	// OpenLibraries tracks libraries currently physically open.
	OpenLibraries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pluginhost_open_libraries",
			Help: "Libraries currently open in the process.",
		},
	)

	// RegisteredFactories tracks factories currently present in a registry.
	RegisteredFactories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pluginhost_registered_factories",
			Help: "Plugin factories currently registered.",
		},
	)
)
