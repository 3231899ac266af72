package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "todoauth",
	Subsystem: "auth",
	Name:      "operations_total",
	Help:      "Auth operations by outcome.",
}, []string{"op", "outcome"})

func countOp(op, outcome string) {
	opsTotal.WithLabelValues(op, outcome).Inc()
}
