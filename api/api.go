// Package api exposes cacheandra's operational HTTP surface: a
// /healthz endpoint reporting tier availability and a /metrics endpoint
// for Prometheus scraping. Neither is a cache wire protocol — clients
// still talk to the fast/durable tiers directly or through an
// application's own Coordinator-embedding process.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TierAvailability is the subset of Coordinator state /healthz reports.
type TierAvailability interface {
	FastAvailable() bool
	DurableAvailable() bool
}

type healthResponse struct {
	FastTier    bool `json:"fast_tier_available"`
	DurableTier bool `json:"durable_tier_available"`
}

// NewRouter builds the operational HTTP surface. gatherer is the
// Prometheus registry to expose at /metrics — pass prometheus.DefaultRegisterer's
// underlying Gatherer in production, or a scoped registry in tests.
func NewRouter(co TierAvailability, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthzHandler(co)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

func healthzHandler(co TierAvailability) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			FastTier:    co.FastAvailable(),
			DurableTier: co.DurableAvailable(),
		}
		w.Header().Set("Content-Type", "application/json")
		if !resp.FastTier && !resp.DurableTier {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
