// Package metrics exposes prometheus collectors for the disc id workflows and the export job.
package metrics

import (
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/discid"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/edits"
	"github.com/prometheus/client_golang/prometheus"
)

// DiscIDMetrics counts submitted edits and rejected requests.
type DiscIDMetrics struct {
	registry *prometheus.Registry

	editsSubmittedTotal    *prometheus.CounterVec
	validationFailureTotal *prometheus.CounterVec
}

// NewDiscIDMetrics creates and registers the disc id workflow metrics.
func NewDiscIDMetrics(registry *prometheus.Registry) (*DiscIDMetrics, error) {
	m := &DiscIDMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DiscIDMetrics) initMetrics() {
	m.editsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discid_edits_submitted_total",
			Help: "Total number of disc id edits queued for moderation",
		},
		[]string{"type"},
	)

	m.validationFailureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discid_validation_failures_total",
			Help: "Total number of disc id requests rejected before an edit was created",
		},
		[]string{"operation", "kind"},
	)
}

// EditSubmitted implements discid.Recorder.
func (m *DiscIDMetrics) EditSubmitted(editType edits.Type) {
	m.editsSubmittedTotal.WithLabelValues(editType.String()).Inc()
}

// ValidationFailed implements discid.Recorder.
func (m *DiscIDMetrics) ValidationFailed(operation string, kind discid.ErrorKind) {
	m.validationFailureTotal.WithLabelValues(operation, string(kind)).Inc()
}

// Describe implements prometheus.Collector.
func (m *DiscIDMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.editsSubmittedTotal.Describe(ch)
	m.validationFailureTotal.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *DiscIDMetrics) Collect(ch chan<- prometheus.Metric) {
	m.editsSubmittedTotal.Collect(ch)
	m.validationFailureTotal.Collect(ch)
}

var _ discid.Recorder = (*DiscIDMetrics)(nil)
