package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	conversionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversions_started_total",
		Help: "Number of conversions accepted for processing.",
	})

	conversionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversions_finished_total",
		Help: "Number of conversions that reached a terminal state.",
	}, []string{"outcome"})

	conversionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversions_rejected_total",
		Help: "Number of conversions rejected because the limiter was full.",
	})

	rowsRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversion_rows_read_total",
		Help: "Number of CSV rows read across all conversions.",
	})

	readingsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meter_readings_emitted_total",
		Help: "Number of meter readings emitted across all conversions.",
	})

	conversionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "conversion_duration_seconds",
		Help:    "Duration of conversions from start to terminal state.",
		Buckets: prometheus.DefBuckets,
	})
)
