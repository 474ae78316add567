package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "User messages accepted by the quota gate and persisted.",
	})

	MessagesBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_blocked_total",
		Help: "Sends refused because the free plan limit was reached.",
	})

	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Conversation gateway calls by outcome.",
	}, []string{"outcome"})

	OperationsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "operations_executed_total",
		Help: "Executable operations dispatched by outcome.",
	}, []string{"outcome"})

	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_total",
		Help: "Realtime message pushes by result.",
	}, []string{"result"})
)

// CircuitState reports each breaker's state: 0 closed, 1 half-open, 2 open
var CircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "circuit_breaker_state",
	Help: "Circuit breaker state per upstream (0 closed, 1 half-open, 2 open).",
}, []string{"name"})
