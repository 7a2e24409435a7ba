// Package metrics counts the changes of a command run and writes them as
// a Prometheus textfile for a node exporter to pick up.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/policysync"
	"github.com/agentstation/policytool/pkg/worklog"
)

const namespace = "policytool"

// Metrics holds the collectors of one run.
type Metrics struct {
	registry      *prometheus.Registry
	tagChanges    *prometheus.CounterVec
	policyChanges *prometheus.CounterVec
	runDuration   *prometheus.GaugeVec
	runSuccess    *prometheus.GaugeVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tagChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tag_changes_total",
				Help:      "Tags registered, added or deleted, by entity kind",
			},
			[]string{"kind", "action"},
		),
		policyChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_changes_total",
				Help:      "Policies deleted, updated or created",
			},
			[]string{"action", "dry_run"},
		),
		runDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of the last run in seconds",
			},
			[]string{"command"},
		),
		runSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_success",
				Help:      "1 when the last run succeeded",
			},
			[]string{"command"},
		),
	}
	m.registry.MustRegister(m.tagChanges, m.policyChanges, m.runDuration, m.runSuccess)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordWorklog counts the tag changes of a worklog. kind is table,
// column or storage.
func (m *Metrics) RecordWorklog(kind string, log *worklog.Worklog) {
	for _, e := range log.Entries() {
		switch e.Action {
		case worklog.TagsRegistered, worklog.TagsAdded, worklog.TagsDeleted:
			m.tagChanges.WithLabelValues(kind, string(e.Action)).Add(float64(len(e.Items)))
		}
	}
}

// RecordPolicySync counts the decisions of a policy sync.
func (m *Metrics) RecordPolicySync(result *policysync.Result) {
	if result == nil {
		return
	}
	dryRun := strconv.FormatBool(result.DryRun)
	m.policyChanges.WithLabelValues("deleted", dryRun).Add(float64(len(result.Deleted)))
	m.policyChanges.WithLabelValues("updated", dryRun).Add(float64(len(result.Updated)))
	m.policyChanges.WithLabelValues("created", dryRun).Add(float64(len(result.Created)))
}

// RecordRun sets the duration and outcome of a command.
func (m *Metrics) RecordRun(command string, elapsed time.Duration, err error) {
	m.runDuration.WithLabelValues(command).Set(elapsed.Seconds())
	success := 0.0
	if err == nil {
		success = 1
	}
	m.runSuccess.WithLabelValues(command).Set(success)
}

// WriteTextfile writes all collectors to path in text exposition format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}
