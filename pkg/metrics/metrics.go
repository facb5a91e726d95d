// Package metrics exposes pipeline counters through Prometheus. A Set
// registers against a caller-supplied registry so tests and embedders
// never pollute the global one.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set holds every counter the pipeline emits.
type Set struct {
	PagesFetched      prometheus.Counter
	Retries           prometheus.Counter
	CacheHits         prometheus.Counter
	CacheSubsetHits   prometheus.Counter
	CacheMisses       prometheus.Counter
	TransformFailures prometheus.Counter
	RecipesSucceeded  prometheus.Counter
	RecipesFailed     prometheus.Counter
}

// NewSet builds and registers the counters. A nil registerer returns
// a working Set that is simply not collected anywhere.
func NewSet(reg prometheus.Registerer) *Set {
	s := &Set{
		PagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secreport_pages_fetched_total",
			Help: "API pages fetched, cache hits excluded.",
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secreport_fetch_retries_total",
			Help: "Page fetch attempts that failed and were retried.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secreport_cache_hits_total",
			Help: "Queries answered by an exact cache entry.",
		}),
		CacheSubsetHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secreport_cache_subset_hits_total",
			Help: "Queries answered by restricting a broader cache entry.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secreport_cache_misses_total",
			Help: "Queries that required an API fetch.",
		}),
		TransformFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secreport_transform_failures_total",
			Help: "Transform pipelines that returned an error.",
		}),
		RecipesSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secreport_recipes_succeeded_total",
			Help: "Recipes that produced a report.",
		}),
		RecipesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secreport_recipes_failed_total",
			Help: "Recipes that failed to produce a report.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			s.PagesFetched, s.Retries,
			s.CacheHits, s.CacheSubsetHits, s.CacheMisses,
			s.TransformFailures, s.RecipesSucceeded, s.RecipesFailed,
		)
	}
	return s
}
