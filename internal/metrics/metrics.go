// Package metrics exposes Prometheus collectors for the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "weatherbot"

var (
	// MessagesTotal counts inbound text messages by parse outcome.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_total",
		Help:      "Inbound text messages by parse kind.",
	}, []string{"kind"})

	// CommandsTotal counts executed commands.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Executed commands by name.",
	}, []string{"command"})

	// ProviderRequests counts weather provider calls by operation and result.
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Weather provider requests by operation and result.",
	}, []string{"op", "result"})

	// ProviderLatency observes weather provider call durations.
	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_request_seconds",
		Help:      "Weather provider request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	// CacheLookups counts weather cache lookups by result (hit, miss, error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Weather cache lookups by result.",
	}, []string{"result"})

	// PendingRequests tracks conversations awaiting an argument.
	PendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_requests",
		Help:      "Conversations currently awaiting a command argument.",
	})

	// SendFailures counts outbound transport failures by action.
	SendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "send_failures_total",
		Help:      "Outbound transport failures by action.",
	}, []string{"action"})
)
