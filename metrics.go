package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics
type Metrics struct {
	jobsTotal     *prometheus.CounterVec
	triggersTotal *prometheus.CounterVec
	pagesRendered prometheus.Counter
	jobDuration   prometheus.Histogram
	stageFailures *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfrender_jobs_total",
				Help: "Total number of render jobs by outcome",
			},
			[]string{"status"},
		),
		triggersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfrender_triggers_received_total",
				Help: "Total number of trigger payloads received",
			},
			[]string{"outcome"},
		),
		pagesRendered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pdfrender_pages_rendered_total",
				Help: "Total number of pages rendered and uploaded",
			},
		),
		jobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pdfrender_job_duration_seconds",
				Help:    "Time taken to process a render job end to end",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfrender_stage_failures_total",
				Help: "Pipeline failures by stage",
			},
			[]string{"stage"},
		),
	}

	reg.MustRegister(
		m.jobsTotal,
		m.triggersTotal,
		m.pagesRendered,
		m.jobDuration,
		m.stageFailures,
	)

	return m
}
