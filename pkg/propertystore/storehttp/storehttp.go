// Package storehttp exposes a health/metrics/query HTTP surface over a
// Store, for embedding inside a larger gin- or chi-routed service the
// way this codebase's own services expose their health and metrics
// endpoints.
package storehttp

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/propertystore/pkg/propertystore"
	"github.com/R3E-Network/propertystore/pkg/propertystore/storemetrics"
	"github.com/R3E-Network/propertystore/pkg/propertystore/storequery"
)

// KindView names a PropertyKind exposed under /query and how to render
// its Property values as JSON.
type KindView struct {
	Kind      propertystore.PropertyKind
	Stringify storequery.Stringify
}

// Handlers bundles the store's introspection endpoints as plain
// net/http.HandlerFuncs so the same logic mounts on either router below.
type Handlers struct {
	Store   *propertystore.Store
	Metrics *storemetrics.Metrics
	Kinds   map[string]KindView
}

// Healthz reports whether a phase is currently set up and running.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !h.Store.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"ready":false}`))
		return
	}
	_, _ = w.Write([]byte(`{"ready":true}`))
}

// MetricsHandler returns the Prometheus scrape handler bound to the
// store's own registry (or the global default if none was configured).
func (h *Handlers) MetricsHandler() http.Handler {
	if h.Metrics == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(h.Metrics.Registry, promhttp.HandlerOpts{})
}

// Query projects the kind named by the "kind" query parameter and, if a
// "path" parameter is present, narrows it with a JSONPath expression.
func (h *Handlers) Query(w http.ResponseWriter, r *http.Request) {
	view, ok := h.Kinds[r.URL.Query().Get("kind")]
	if !ok {
		http.Error(w, "unknown kind", http.StatusNotFound)
		return
	}
	doc, err := storequery.Project(h.Store, view.Kind, view.Stringify)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	expr := r.URL.Query().Get("path")
	if expr == "" {
		_, _ = w.Write(doc)
		return
	}
	result, err := storequery.QueryPath(doc, expr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(result)
}

// NewGinEngine wires Handlers onto a gin.Engine with gin's default
// middleware stack.
func NewGinEngine(h *Handlers) *gin.Engine {
	r := gin.Default()
	r.GET("/healthz", gin.WrapF(h.Healthz))
	r.GET("/metrics", gin.WrapH(h.MetricsHandler()))
	r.GET("/query", gin.WrapF(h.Query))
	return r
}

// NewChiRouter wires the same Handlers onto a chi.Router, for a service
// that composes its HTTP surface with chi instead of gin.
func NewChiRouter(h *Handlers) chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", h.MetricsHandler())
	r.Get("/query", h.Query)
	return r
}
