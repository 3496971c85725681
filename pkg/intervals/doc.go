// Package intervals implements the pure range algebra shared by the agent and
// every Timeline Consumer:
//
//   - Merge sorts ranges by start and coalesces overlapping or adjacent ones
//     (within MergeEpsilonMs) into a MergedSet. It is idempotent.
//   - MergeSummaries applies the same coalescing to IntervalSummary values,
//     combining average scores weighted by sample count.
//   - Overlaps answers whether a candidate range intersects a MergedSet using
//     inclusive bounds and a binary search.
//   - RelativeRanges and LatestMerged convert a stored SessionReport into
//     session-relative ranges, degrading to an empty set on any load failure.
package intervals
