package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Media upload metrics
var (
	MediaUploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "media_uploads_total",
		Help: "Total number of stored media uploads",
	}, []string{"kind"})

	MediaRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "media_rejections_total",
		Help: "Total number of rejected media uploads",
	}, []string{"reason"})

	MediaUploadBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "media_upload_bytes",
		Help:    "Size of stored media uploads",
		Buckets: prometheus.ExponentialBuckets(16*1024, 4, 8), // 16KiB .. 256MiB
	}, []string{"kind"})
)
