package graph

import (
	"cmp"
	"encoding/json"
	"maps"
	"slices"

	"github.com/gasdesk/agent-server/internal/agent/model"
)

// Aggregate merges records into one result that does not depend on their
// order: records are sorted by (tool, arguments) before folding. List
// payloads are concatenated, map payloads union-merged under "tool.key"
// (last write in sorted order wins), scalars stored under "tool". Failed
// records are kept in Records and Failures.
func Aggregate(records []model.ToolCallRecord) model.AggregatedResult {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, compareRecords)

	out := model.AggregatedResult{
		Records: make(map[string][]model.ToolCallRecord),
		Fields:  make(map[string]any),
	}
	for _, r := range sorted {
		tool := r.Call.Tool
		out.Records[tool] = append(out.Records[tool], r)
		if !r.Success {
			out.Failures = append(out.Failures, r)
			continue
		}
		switch payload := r.Result.(type) {
		case nil:
		case []any:
			out.Items = append(out.Items, payload...)
		case map[string]any:
			for _, k := range slices.Sorted(maps.Keys(payload)) {
				out.Fields[tool+"."+k] = payload[k]
			}
		default:
			out.Fields[tool] = payload
		}
	}
	return out
}

// compareRecords totally orders records so equal-key records still sort the same way.
func compareRecords(a, b model.ToolCallRecord) int {
	if c := model.CompareCalls(a.Call, b.Call); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Iteration, b.Iteration); c != 0 {
		return c
	}
	return cmp.Compare(fingerprint(a), fingerprint(b))
}

func fingerprint(r model.ToolCallRecord) string {
	b, err := json.Marshal(struct {
		Success   bool             `json:"s"`
		Result    any              `json:"r"`
		Error     *model.ToolError `json:"e"`
		StartedAt int64            `json:"t"`
		Duration  int64            `json:"d"`
	}{r.Success, r.Result, r.Error, r.StartedAt.UnixNano(), int64(r.Duration)})
	if err != nil {
		return ""
	}
	return string(b)
}
