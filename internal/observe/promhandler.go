package observe

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler returns the /metrics scrape handler for the Prometheus
// exporter installed by [InitProvider], which registers with the default
// Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
