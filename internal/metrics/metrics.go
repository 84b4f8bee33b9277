// Package metrics exports the outcome of a provisioning run in the
// Prometheus text format, for node_exporter's textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
)

const namespace = "gpuprep"

// Recorder collects run metrics in a private registry so that only gpuprep
// series end up in the textfile.
type Recorder struct {
	registry    *prometheus.Registry
	steps       *prometheus.CounterVec
	actions     prometheus.Counter
	duration    prometheus.Gauge
	success     prometheus.Gauge
	lastSuccess prometheus.Gauge
	accelerator prometheus.Gauge
}

// NewRecorder creates a Recorder with all series registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "steps_total",
				Help:      "Steps of the last run by outcome",
			},
			[]string{"outcome"},
		),
		actions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "actions_total",
			Help:      "Step actions invoked in the last run",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of the last run",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "success",
			Help:      "Whether the last run finished without a fatal error (1) or not (0)",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the last successful run finished, 0 if the last run failed",
		}),
		accelerator: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "accelerators",
			Help:      "Accelerators reported by the inventory probe",
		}),
	}

	r.registry.MustRegister(r.steps, r.actions, r.duration, r.success, r.lastSuccess, r.accelerator)
	for _, o := range []sequence.Outcome{
		sequence.OutcomeSkipped, sequence.OutcomeApplied, sequence.OutcomePending,
		sequence.OutcomeFailed, sequence.OutcomeTolerated, sequence.OutcomeNotRun,
	} {
		r.steps.WithLabelValues(string(o))
	}
	return r
}

// Registry returns the private registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe records a finished run.
func (r *Recorder) Observe(report *sequence.Report) {
	for _, res := range report.Results {
		r.steps.WithLabelValues(string(res.Outcome())).Inc()
	}
	r.actions.Add(float64(report.Actions()))
	r.duration.Set(report.Duration().Seconds())
	if report.Succeeded() {
		r.success.Set(1)
		r.lastSuccess.Set(float64(report.FinishedAt.Unix()))
	} else {
		r.success.Set(0)
		r.lastSuccess.Set(0)
	}
}

// SetAccelerators records the gathered accelerator count.
func (r *Recorder) SetAccelerators(n int) {
	r.accelerator.Set(float64(n))
}

// WriteTextfile writes all series to path. The file is written to a
// temporary name and renamed, so the collector never reads a partial file.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
