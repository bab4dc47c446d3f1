package core

import (
	"net/http"
	"strconv"

	"github.com/jo-hoe/gorotate/internal/rotation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outcomeSuccess    = "success"
	outcomeFailure    = "failure"
	outcomeSuperseded = "superseded"
)

type metrics struct {
	registry          *prometheus.Registry
	rotationsTotal    *prometheus.CounterVec
	rotationDuration  *prometheus.HistogramVec
	supersededTotal   prometheus.Counter
	uploadsTotal      *prometheus.CounterVec
	activeRotations   prometheus.Gauge
	expiredSlotsTotal prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		rotationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gorotate_rotations_total",
			Help: "Total rotations by angle, media type and outcome.",
		}, []string{"angle", "media_type", "outcome"}),
		rotationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gorotate_rotation_duration_seconds",
			Help:    "Duration of decode, rotate and encode for one image.",
			Buckets: prometheus.DefBuckets,
		}, []string{"media_type", "outcome"}),
		supersededTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gorotate_rotations_superseded_total",
			Help: "Total in-flight rotations cancelled by a newer request for the same slot.",
		}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gorotate_uploads_total",
			Help: "Total image uploads by media type and outcome.",
		}, []string{"media_type", "outcome"}),
		activeRotations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gorotate_active_rotations",
			Help: "Current number of rotations in flight.",
		}),
		expiredSlotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gorotate_expired_slots_total",
			Help: "Total image slots removed by the session janitor.",
		}),
	}

	registry.MustRegister(
		m.rotationsTotal,
		m.rotationDuration,
		m.supersededTotal,
		m.uploadsTotal,
		m.activeRotations,
		m.expiredSlotsTotal,
	)
	return m
}

func (m *metrics) observeRotation(angle int, mediaType, outcome string, seconds float64) {
	m.rotationsTotal.WithLabelValues(strconv.Itoa(angle), mediaTypeLabel(mediaType), outcome).Inc()
	m.rotationDuration.WithLabelValues(mediaTypeLabel(mediaType), outcome).Observe(seconds)
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// mediaTypeLabel keeps label cardinality bounded for arbitrary declared types
func mediaTypeLabel(mediaType string) string {
	mediaType = rotation.NormalizeMediaType(mediaType)
	if !rotation.IsSupported(mediaType) {
		return "other"
	}
	return mediaType
}
