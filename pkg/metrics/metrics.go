// Package metrics defines the Prometheus instruments of the proof server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pageproof"

// Outcome label values
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Metrics groups every instrument exported by a node.
type Metrics struct {
	DocumentsIngested prometheus.Counter
	PagesHashed       prometheus.Counter
	ProofsGenerated   *prometheus.CounterVec
	Verifications     *prometheus.CounterVec
	TreeBuildSeconds  prometheus.Histogram
	HTTPRequests      *prometheus.CounterVec
}

// New creates the instruments and registers them with reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DocumentsIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Number of documents whose merkle root was computed and stored.",
		}),
		PagesHashed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_hashed_total",
			Help:      "Number of page leaf digests computed during ingestion.",
		}),
		ProofsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proofs_generated_total",
			Help:      "Inclusion proof requests by outcome.",
		}, []string{"outcome"}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Proof verification requests by result.",
		}, []string{"valid"}),
		TreeBuildSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tree_build_seconds",
			Help:      "Time spent building merkle trees, on ingestion and on proof rebuilds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
}
