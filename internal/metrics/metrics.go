// Package metrics exposes workflow counters to Prometheus. A nil *Workflow is valid and
// records nothing.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type Workflow struct {
	SyncTickets       *prometheus.CounterVec
	Escalations       *prometheus.CounterVec
	EscalationCeiling prometheus.Counter
	AutoClosed        prometheus.Counter
	UpstreamPush      *prometheus.CounterVec
	Purged            prometheus.Counter
}

func New(reg prometheus.Registerer) *Workflow {
	m := &Workflow{
		SyncTickets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_sync_tickets_total",
			Help: "Upstream tickets handled by mirror sync",
		}, []string{"mode", "outcome"}),
		Escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_escalations_total",
			Help: "Escalations performed, by trigger and new level",
		}, []string{"trigger", "level"}),
		EscalationCeiling: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflow_escalation_ceiling_total",
			Help: "Escalation attempts rejected because the process is at the top level",
		}),
		AutoClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflow_auto_closed_total",
			Help: "Resolved processes closed by the housekeeping sweep",
		}),
		UpstreamPush: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_upstream_push_total",
			Help: "Full-record ticket updates pushed upstream",
		}, []string{"outcome"}),
		Purged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflow_purged_work_items_total",
			Help: "Pending work items cancelled because the ticket changed owner upstream",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.SyncTickets, m.Escalations, m.EscalationCeiling, m.AutoClosed, m.UpstreamPush, m.Purged)
	}
	return m
}

func (m *Workflow) ObserveSync(mode, outcome string) {
	if m == nil {
		return
	}
	m.SyncTickets.WithLabelValues(mode, outcome).Inc()
}

func (m *Workflow) ObserveEscalation(trigger string, level int) {
	if m == nil {
		return
	}
	m.Escalations.WithLabelValues(trigger, strconv.Itoa(level)).Inc()
}

func (m *Workflow) ObserveCeiling() {
	if m == nil {
		return
	}
	m.EscalationCeiling.Inc()
}

func (m *Workflow) ObserveAutoClose() {
	if m == nil {
		return
	}
	m.AutoClosed.Inc()
}

func (m *Workflow) ObservePush(outcome string) {
	if m == nil {
		return
	}
	m.UpstreamPush.WithLabelValues(outcome).Inc()
}

func (m *Workflow) ObservePurge() {
	if m == nil {
		return
	}
	m.Purged.Inc()
}
