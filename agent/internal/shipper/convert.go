package shipper

import (
	"sort"

	"github.com/focustrack/focustrack/pkg/reportrpc"
	"github.com/focustrack/focustrack/pkg/types"
)

// toRequest wraps a copy of r in a SubmitReportRequest with intervals in
// start order. The caller's report is not modified.
func toRequest(r *types.SessionReport) *reportrpc.SubmitReportRequest {
	cp := *r
	cp.Intervals = make([]types.IntervalSummary, len(r.Intervals))
	copy(cp.Intervals, r.Intervals)
	sort.SliceStable(cp.Intervals, func(i, j int) bool {
		return cp.Intervals[i].Start < cp.Intervals[j].Start
	})
	return &reportrpc.SubmitReportRequest{Report: &cp}
}
