package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messagesReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automodd_messages_received",
	Help: "Number of guild messages received from the gateway",
})

var messagesIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automodd_messages_ignored",
	Help: "Number of gateway messages ignored before evaluation",
}, []string{"reason"})

var evaluationsFailed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automodd_evaluations_failed",
	Help: "Number of message evaluations which returned an error",
})

var workersBusy = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "automodd_workers_busy",
	Help: "Number of messages currently being evaluated",
})

var messagesDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automodd_messages_dropped",
	Help: "Number of queued messages dropped during shutdown",
})
