package community

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts ledger mutations.
type Metrics struct {
	votes       *prometheus.CounterVec
	submissions prometheus.Counter
	retries     prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the ledger collectors. A nil registerer uses the
// Prometheus default registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	votes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mastermarket_community_votes_total",
		Help: "Vote ledger mutations partitioned by outcome.",
	}, []string{"outcome"})
	submissions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mastermarket_community_submissions_total",
		Help: "Accepted price observations.",
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mastermarket_community_vote_conflict_retries_total",
		Help: "Vote inserts retried after a concurrent insert by the same voter.",
	})
	registerer.MustRegister(votes, submissions, retries)
	return &Metrics{votes: votes, submissions: submissions, retries: retries}
}

func (m *Metrics) vote(outcome string) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) submitted() {
	if m == nil {
		return
	}
	m.submissions.Inc()
}

func (m *Metrics) retried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
