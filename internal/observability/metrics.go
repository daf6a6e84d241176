// Package observability provides Prometheus metrics and in-process detail
// source statistics for the builder and the tile synthesizer.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BuildStepsTotal counts builder steps by phase and outcome.
	BuildStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpftiles",
		Subsystem: "builder",
		Name:      "steps_total",
		Help:      "Count of builder steps, by phase and outcome (complete, failed, skipped)",
	}, []string{"phase", "outcome"})

	// BuildPhaseDuration observes the wall time of each builder phase.
	BuildPhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rpftiles",
		Subsystem: "builder",
		Name:      "phase_duration_seconds",
		Help:      "Histogram of time spent in each builder phase",
		Buckets:   []float64{0.01, 0.1, 1, 5, 30, 60, 300, 1800, 3600},
	}, []string{"phase"})

	// SynthRequestsTotal counts synthesis calls by result (image, empty, invalid).
	SynthRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpftiles",
		Subsystem: "synth",
		Name:      "requests_total",
		Help:      "Count of tile synthesis requests, by result",
	}, []string{"result"})

	// SynthSourcesTotal counts the detail source chosen per contributing frame.
	SynthSourcesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpftiles",
		Subsystem: "synth",
		Name:      "frame_sources_total",
		Help:      "Count of frames composited, by detail source (full, wavelet, preload)",
	}, []string{"source"})

	// SynthFrameFailuresTotal counts frames that failed to load during synthesis.
	SynthFrameFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rpftiles",
		Subsystem: "synth",
		Name:      "frame_failures_total",
		Help:      "Count of frames that failed to load and were marked absent",
	})

	// SynthDuration observes synthesis latency.
	SynthDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rpftiles",
		Subsystem: "synth",
		Name:      "duration_seconds",
		Help:      "Histogram of time spent synthesizing one tile",
		Buckets:   prometheus.DefBuckets,
	})
)

// WriteTextfile writes every registered metric in the text exposition
// format, for collection by a node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("observability: failed to write metrics: %w", err)
	}
	return nil
}
