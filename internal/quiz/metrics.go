package quiz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	answersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keiko",
		Subsystem: "quiz",
		Name:      "answers_total",
		Help:      "Graded answers by outcome.",
	}, []string{"outcome"})

	hintsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "keiko",
		Subsystem: "quiz",
		Name:      "hints_total",
		Help:      "Hints granted.",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keiko",
		Subsystem: "quiz",
		Name:      "sessions_total",
		Help:      "Session lifecycle transitions.",
	}, []string{"event"})

	writeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keiko",
		Subsystem: "quiz",
		Name:      "progress_write_failures_total",
		Help:      "Failed progress checkpoint writes by field.",
	}, []string{"field"})
)
