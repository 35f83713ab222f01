package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Workflow labels.
const (
	WorkflowChangeRequest       = "change_request"
	WorkflowPaymentConfirmation = "payment_confirmation"
)

// WorkflowMetrics tracks approval workflow outcomes. A nil value records nothing.
type WorkflowMetrics struct {
	created    *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	resolved   *prometheus.CounterVec
	partial    *prometheus.CounterVec
	stale      *prometheus.GaugeVec
}

// NewWorkflowMetrics registers the workflow metrics on the provided registerer.
func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	if reg == nil {
		return &WorkflowMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "workflow_requests_created_total",
		Help:      "Pending requests opened, by workflow and kind.",
	}, []string{"workflow", "kind"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "workflow_duplicate_requests_total",
		Help:      "Request creations refused because one was already pending.",
	}, []string{"workflow"})
	resolved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "workflow_requests_resolved_total",
		Help:      "Requests moved to a terminal state.",
	}, []string{"workflow", "outcome"})
	partial := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "workflow_partial_approvals_total",
		Help:      "Approvals whose entry mutation ran but whose request update failed.",
	}, []string{"workflow"})
	stale := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "workflow_stale_pending_requests",
		Help:      "Pending requests older than the stale threshold at the last report.",
	}, []string{"workflow"})
	reg.MustRegister(created, duplicates, resolved, partial, stale)
	return &WorkflowMetrics{
		created:    created,
		duplicates: duplicates,
		resolved:   resolved,
		partial:    partial,
		stale:      stale,
	}
}

func (w *WorkflowMetrics) IncCreated(workflow, kind string) {
	if w == nil || w.created == nil {
		return
	}
	w.created.WithLabelValues(normalizeLabel(workflow), normalizeLabel(kind)).Inc()
}

func (w *WorkflowMetrics) IncDuplicate(workflow string) {
	if w == nil || w.duplicates == nil {
		return
	}
	w.duplicates.WithLabelValues(normalizeLabel(workflow)).Inc()
}

// IncResolved counts a terminal transition; outcome is approved or rejected.
func (w *WorkflowMetrics) IncResolved(workflow, outcome string) {
	if w == nil || w.resolved == nil {
		return
	}
	w.resolved.WithLabelValues(normalizeLabel(workflow), normalizeLabel(outcome)).Inc()
}

func (w *WorkflowMetrics) IncPartialApproval(workflow string) {
	if w == nil || w.partial == nil {
		return
	}
	w.partial.WithLabelValues(normalizeLabel(workflow)).Inc()
}

func (w *WorkflowMetrics) SetStalePending(workflow string, count int64) {
	if w == nil || w.stale == nil {
		return
	}
	w.stale.WithLabelValues(normalizeLabel(workflow)).Set(float64(count))
}
