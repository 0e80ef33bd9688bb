package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arxiv/relations/internal/domain"
)

// Metrics counts lineage outcomes. It satisfies usecase.Metrics.
type Metrics struct {
	committed *prometheus.CounterVec
	rejected  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		committed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relations",
				Name:      "committed_total",
				Help:      "Relations written, by relation type.",
			},
			[]string{"type"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relations",
				Name:      "rejected_total",
				Help:      "Lineage writes that did not commit, by operation and reason.",
			},
			[]string{"op", "reason"},
		),
	}
	reg.MustRegister(m.committed, m.rejected)
	return m
}

func (m *Metrics) RelationCommitted(t domain.RelationType) {
	m.committed.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) LineageRejected(op string, err error) {
	m.rejected.WithLabelValues(op, Reason(err)).Inc()
}

// Reason maps an error to a low cardinality label.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInactivePredecessor):
		return "inactive_predecessor"
	case errors.Is(err, domain.ErrStorage):
		return "storage"
	case errors.Is(err, domain.ErrLookup):
		return "lookup"
	default:
		return "other"
	}
}
