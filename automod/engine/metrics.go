package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var evaluateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "automod_evaluate_duration_sec",
	Help:    "Duration of automod message evaluation, including dispatch",
	Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
})

var messagesEvaluatedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_messages_evaluated",
	Help: "Number of messages evaluated, by result",
}, []string{"result"})

var verdictCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_verdicts",
	Help: "Number of triggered rule verdicts, by kind",
}, []string{"kind"})

var actionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_actions",
	Help: "Number of punishment decisions dispatched, by action and status",
}, []string{"action", "status"})

var dispatchFailureCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_dispatch_failures",
	Help: "Number of punishments which could not be applied",
}, []string{"action"})

var skippedEvaluationCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_skipped_evaluations",
	Help: "Number of messages skipped because a lookup failed",
}, []string{"op"})

var configErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_config_errors",
	Help: "Number of evaluations which hit an invalid guild config, by filter",
}, []string{"filter"})

var ruleErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_rule_errors",
	Help: "Number of rule executions which errored or panicked",
})

var ledgerRecords = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "automod_ledger_records",
	Help: "Number of resident violation ledger records",
})

var ledgerEvictedCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_ledger_evicted",
	Help: "Number of idle ledger records evicted",
})

var ledgerFlushedCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_ledger_flushed",
	Help: "Number of ledger records written to the violation store",
})

var auditDropCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_audit_dropped",
	Help: "Number of audit events dropped because the queue was full",
})

var auditErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_audit_errors",
	Help: "Number of audit events which failed delivery",
})
