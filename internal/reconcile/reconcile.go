// Package reconcile is the optional C11 drift detector: it enumerates ids
// present in one store and absent in the other, and reports the drift
// without attempting to fix it. Invariant M-1 keeps the relational and
// vector stores mirrored on every write; this package exists for operators
// to verify that invariant holds after, say, a crash mid-write or a manual
// restore from an older backup.
//
// Grounded on the relational and vector stores' own AllMemoryIDs/
// AllSummaryIDs/AllExtIDs accessors, diffed with a map-based set difference
// (results sorted) rather than a third-party set library, since the corpus has
// no set/diff dependency and this is a small bounded operation.
package reconcile

import (
	"context"
	"sort"

	"github.com/hybridmem/memory-service/internal/relational"
	"github.com/hybridmem/memory-service/internal/vectorstore"
)

// Report lists ids found on only one side of the relational/vector split.
// A Report with every field empty means the two stores are coherent.
type Report struct {
	MemoriesMissingVectors  []string
	VectorsMissingMemories  []string
	SummariesMissingVectors []string
	VectorsMissingSummaries []string
}

// Clean reports whether no drift was found.
func (r Report) Clean() bool {
	return len(r.MemoriesMissingVectors) == 0 &&
		len(r.VectorsMissingMemories) == 0 &&
		len(r.SummariesMissingVectors) == 0 &&
		len(r.VectorsMissingSummaries) == 0
}

// Reconcile compares the relational store's authoritative memory and
// summary ids against the vector store's memories and summaries
// collections and reports any one-sided ids. It never deletes or
// backfills anything; fixing drift is left to the operator.
func Reconcile(ctx context.Context, rel *relational.Store, vec *vectorstore.Store) (Report, error) {
	var report Report

	memoryIDs, err := rel.AllMemoryIDs(ctx)
	if err != nil {
		return report, err
	}
	memoryVectorIDs, err := vec.AllExtIDs(ctx, vectorstore.CollectionMemories)
	if err != nil {
		return report, err
	}
	report.MemoriesMissingVectors, report.VectorsMissingMemories = diff(memoryIDs, memoryVectorIDs)

	summaryIDs, err := rel.AllSummaryIDs(ctx)
	if err != nil {
		return report, err
	}
	summaryVectorIDs, err := vec.AllExtIDs(ctx, vectorstore.CollectionSummaries)
	if err != nil {
		return report, err
	}
	report.SummariesMissingVectors, report.VectorsMissingSummaries = diff(summaryIDs, summaryVectorIDs)

	return report, nil
}

// diff returns (left-only, right-only) elements between two sets, each
// represented as a sorted slice of distinct ids.
func diff(left, right []string) (leftOnly, rightOnly []string) {
	leftSet := toSet(left)
	rightSet := toSet(right)

	for id := range leftSet {
		if !rightSet[id] {
			leftOnly = append(leftOnly, id)
		}
	}
	for id := range rightSet {
		if !leftSet[id] {
			rightOnly = append(rightOnly, id)
		}
	}
	sort.Strings(leftOnly)
	sort.Strings(rightOnly)
	return leftOnly, rightOnly
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
