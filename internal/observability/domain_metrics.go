package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chatQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_chat_queries_total",
			Help: "Total number of chat queries by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)
	chatQueryLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlchat_chat_query_latency_ms",
			Help:    "End-to-end chat query latency in milliseconds by mode.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"mode"},
	)
	agentCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_agent_calls_total",
			Help: "Total number of language model calls by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	agentCallLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlchat_agent_call_latency_ms",
			Help:    "Language model call latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
	)
	statementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_statements_total",
			Help: "Total number of executed SQL statements by result kind.",
		},
		[]string{"kind"},
	)
	statementLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlchat_statement_latency_ms",
			Help:    "SQL statement execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 15000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		chatQueriesTotal,
		chatQueryLatencyMs,
		agentCallsTotal,
		agentCallLatencyMs,
		statementsTotal,
		statementLatencyMs,
	)
}

func ObserveChatQuery(mode, outcome string, elapsed time.Duration) {
	chatQueriesTotal.WithLabelValues(mode, outcome).Inc()
	chatQueryLatencyMs.WithLabelValues(mode).Observe(float64(elapsed.Milliseconds()))
}

func ObserveAgentCall(provider string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	agentCallsTotal.WithLabelValues(provider, outcome).Inc()
	agentCallLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

// ObserveStatement records one executor call. kind is "rows", "no_rows" or "error".
func ObserveStatement(kind string, elapsed time.Duration) {
	statementsTotal.WithLabelValues(kind).Inc()
	statementLatencyMs.Observe(float64(elapsed.Milliseconds()))
}
