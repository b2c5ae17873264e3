// Package metrics registra las métricas Prometheus del servicio.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once
	registerErr  error

	// Capture flow
	capturesTotal *prometheus.CounterVec

	// Projection flow
	projectionsTotal     *prometheus.CounterVec
	projectedClaimsTotal prometheus.Counter
	claimsPerProjection  prometheus.Histogram

	// Property definition bootstrap
	propertyEnsuresTotal *prometheus.CounterVec

	// HTTP surface
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
)

// Register inicializa y registra las métricas; devuelve el handler para /metrics.
// Ignora registros duplicados para tolerar re-inicialización en tests.
func Register(reg prometheus.Registerer) (http.Handler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	registerOnce.Do(func() {
		capturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimbridge_captures_total",
			Help: "Capturas de claims por proveedor y resultado",
		}, []string{"provider", "result"}) // result: stored|skipped|failed

		projectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimbridge_projections_total",
			Help: "Proyecciones de claims por resultado",
		}, []string{"result"}) // result: projected|no_snapshot|malformed|store_error|no_user

		projectedClaimsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claimbridge_projected_claims_total",
			Help: "Total de claims agregados a tokens emitidos",
		})

		claimsPerProjection = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "claimbridge_claims_per_projection",
			Help:    "Cantidad de claims agregados por proyección",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		})

		propertyEnsuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimbridge_property_ensures_total",
			Help: "Resultados de ensure-property-exists",
		}, []string{"result"}) // result: created|already_exists|cached|failed

		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimbridge_http_requests_total",
			Help: "Requests HTTP procesadas",
		}, []string{"method", "path", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "claimbridge_http_request_duration_seconds",
			Help:    "Latencia de requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		for _, c := range []prometheus.Collector{
			capturesTotal, projectionsTotal, projectedClaimsTotal, claimsPerProjection, propertyEnsuresTotal,
			httpRequestsTotal, httpRequestDuration,
		} {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					registerErr = err
					return
				}
			}
		}
	})
	if registerErr != nil {
		return nil, registerErr
	}
	return promhttp.Handler(), nil
}

// RecordCapture registra el resultado de una captura.
func RecordCapture(provider, result string) {
	if capturesTotal == nil {
		return
	}
	if provider == "" {
		provider = "unknown"
	}
	capturesTotal.WithLabelValues(provider, result).Inc()
}

// RecordProjection registra el resultado de una proyección y el conteo de
// claims agregados cuando aplica.
func RecordProjection(result string, claimsAdded int) {
	if projectionsTotal == nil {
		return
	}
	projectionsTotal.WithLabelValues(result).Inc()
	if result == "projected" {
		projectedClaimsTotal.Add(float64(claimsAdded))
		claimsPerProjection.Observe(float64(claimsAdded))
	}
}

// RecordPropertyEnsure registra el resultado del ensure de la property.
func RecordPropertyEnsure(result string) {
	if propertyEnsuresTotal == nil {
		return
	}
	propertyEnsuresTotal.WithLabelValues(result).Inc()
}

// RecordHTTP registra una request HTTP terminada.
func RecordHTTP(method, path string, status int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
