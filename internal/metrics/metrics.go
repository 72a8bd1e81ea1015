package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipstack_uploads_total",
		Help: "Video uploads by resulting task status",
	}, []string{"status"})

	RenderSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipstack_render_submissions_total",
		Help: "Render jobs submitted to the render provider",
	}, []string{"kind"})

	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipstack_reconciliations_total",
		Help: "Render status checks by outcome",
	}, []string{"outcome"})

	PrunedTasks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipstack_pruned_tasks_total",
		Help: "Tasks removed because their hosted asset disappeared",
	})

	ProviderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clipstack_provider_request_duration_seconds",
		Help:    "Outbound provider call latency",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"provider", "op"})
)
