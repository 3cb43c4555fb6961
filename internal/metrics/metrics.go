// Package metrics exposes Prometheus metrics for protect, access and key
// exchange.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records engine metrics. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	protect      *prometheus.CounterVec
	access       *prometheus.CounterVec
	keyRequests  *prometheus.CounterVec
	keyDuration  *prometheus.HistogramVec
	certFallback *prometheus.CounterVec
	gatherer     prometheus.Gatherer
}

// NewRecorder registers the collectors with reg. A nil reg uses a private
// registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	r := &Recorder{
		protect: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pdo_protect_total",
			Help: "Files processed by protect, by result",
		}, []string{"result"}),
		access: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pdo_access_total",
			Help: "Carriers processed by access, by result",
		}, []string{"result"}),
		keyRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pdo_key_requests_total",
			Help: "Key service requests, by message type and result",
		}, []string{"type", "result"}),
		keyDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pdo_key_request_duration_seconds",
			Help:    "Latency of key service requests",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"type"}),
		certFallback: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pdo_certificate_fallback_total",
			Help: "Certificates stored as ciphertext instead of an image, by reason",
		}, []string{"reason"}),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		r.gatherer = g
	}
	return r
}

// ObserveKeyRequest implements the key exchange observer.
func (r *Recorder) ObserveKeyRequest(messageType, result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.keyRequests.WithLabelValues(messageType, result).Inc()
	r.keyDuration.WithLabelValues(messageType).Observe(elapsed.Seconds())
}

// ObserveProtect counts one protected file.
func (r *Recorder) ObserveProtect(result string) {
	if r == nil {
		return
	}
	r.protect.WithLabelValues(result).Inc()
}

// ObserveAccess counts one accessed carrier.
func (r *Recorder) ObserveAccess(result string) {
	if r == nil {
		return
	}
	r.access.WithLabelValues(result).Inc()
}

// ObserveCertificateFallback counts a certificate stored as ciphertext.
func (r *Recorder) ObserveCertificateFallback(reason string) {
	if r == nil {
		return
	}
	r.certFallback.WithLabelValues(reason).Inc()
}

// Handler serves the registry the recorder was built with. It returns
// http.NotFoundHandler when that registry cannot be gathered.
func (r *Recorder) Handler() http.Handler {
	if r == nil || r.gatherer == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
