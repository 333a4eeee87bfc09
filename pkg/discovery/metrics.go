package discovery

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the discovery package's Prometheus instruments: the
// scanner/responder's own activity counters plus ReceiveQueueDrops. Nothing
// in this package increments ReceiveQueueDrops; the transport's drop count
// is read through mnet.Transport.DroppedCount.
type Metrics struct {
	ReceiveQueueDrops   prometheus.Counter
	AnswersSent         prometheus.Counter
	AnswersSuppressed   prometheus.Counter
	QueriesSent         prometheus.Counter
	GoodbyesProcessed   prometheus.Counter
	OversizedAnswers    prometheus.Counter
}

// NewMetrics registers a fresh Metrics set on reg. Pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() in tests to avoid collisions between runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReceiveQueueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matter", Subsystem: "discovery", Name: "receive_queue_drops_total",
			Help: "Datagrams discarded by the mDNS transport's drop-oldest receive queue policy.",
		}),
		AnswersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matter", Subsystem: "discovery", Name: "answers_sent_total",
			Help: "Answer records the responder has sent.",
		}),
		AnswersSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matter", Subsystem: "discovery", Name: "answers_suppressed_total",
			Help: "Answer records suppressed by known-answer or duplicate-answer suppression.",
		}),
		QueriesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matter", Subsystem: "discovery", Name: "queries_sent_total",
			Help: "Outbound mDNS query datagrams sent by the scanner.",
		}),
		GoodbyesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matter", Subsystem: "discovery", Name: "goodbyes_processed_total",
			Help: "Answers with ttl=0 (goodbye records) processed by the scanner.",
		}),
		OversizedAnswers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matter", Subsystem: "discovery", Name: "oversized_answers_total",
			Help: "Single answers emitted despite exceeding the MTU budget alone (§4.6).",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ReceiveQueueDrops, m.AnswersSent, m.AnswersSuppressed, m.QueriesSent, m.GoodbyesProcessed, m.OversizedAnswers)
	}
	return m
}
