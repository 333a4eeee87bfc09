package discovery

import (
	"time"

	"matter-core/pkg/dnswire"
)

// Matter mDNS scheduling constants (§4.6).
const (
	InitialInterval = 1500 * time.Millisecond
	MaxInterval     = 60 * time.Minute
)

// QueryTuple is one (name, class, type) question, the unit ActiveQueries
// union over (§4.6 "Queries").
type QueryTuple struct {
	Name  string
	Class uint16
	Type  dnswire.RecordType
}

// ActiveQuery tracks one caller-driven discovery request (§3 ActiveQuery):
// the accumulated query tuples and known answers to send. The re-announce
// interval and next-send timestamp are scanner-global rather than
// per-query, since the send loop flattens every ActiveQuery's queries and
// known answers into one shared cycle (§4.6 "Send loop").
type ActiveQuery struct {
	QueryID      string
	Queries      []QueryTuple
	KnownAnswers []dnswire.Record
}

func newActiveQuery(queryID string) *ActiveQuery {
	return &ActiveQuery{QueryID: queryID}
}

// union merges tuples into q.Queries, preserving insertion order and
// skipping duplicates, and appends answers unconditionally. Reports
// whether the query set changed (§4.6: "if union equals existing set,
// no-op" governs the interval/schedule reset, not the answer append).
func (q *ActiveQuery) union(tuples []QueryTuple, answers []dnswire.Record) bool {
	changed := false
	for _, t := range tuples {
		found := false
		for _, existing := range q.Queries {
			if existing == t {
				found = true
				break
			}
		}
		if !found {
			q.Queries = append(q.Queries, t)
			changed = true
		}
	}
	q.KnownAnswers = append(q.KnownAnswers, answers...)
	return changed
}
