package discovery

import (
	"testing"

	"matter-core/pkg/dnswire"
)

func TestActiveQueryUnionDedupesTuplesButAppendsAnswers(t *testing.T) {
	q := newActiveQuery("test")
	tuple := QueryTuple{Name: "foo.local", Class: uint16(dnswire.ClassIN), Type: dnswire.TypePTR}

	if changed := q.union([]QueryTuple{tuple}, nil); !changed {
		t.Fatal("first union of a new tuple must report changed")
	}
	if changed := q.union([]QueryTuple{tuple}, nil); changed {
		t.Fatal("re-union of the same tuple must not report changed")
	}
	if len(q.Queries) != 1 {
		t.Fatalf("expected 1 deduplicated query tuple, got %d", len(q.Queries))
	}

	ans := dnswire.Record{Name: "foo.local", Type: dnswire.TypePTR}
	q.union(nil, []dnswire.Record{ans})
	q.union(nil, []dnswire.Record{ans})
	if len(q.KnownAnswers) != 2 {
		t.Fatalf("expected known answers to accumulate unconditionally, got %d", len(q.KnownAnswers))
	}
}
