// Package review implements the reconciliation core for machine-generated
// takeoff and estimate data: the three-way row model, patch construction,
// numeric validation, markup totals, and the optimistic edit session.
package review

import (
	"github.com/info757/estimai-cli/pkg/estimai"
)

// Merge performs a field-level shallow merge: fields present in override
// replace the baseline value, absent fields retain the baseline. Neither
// input is mutated. The result is always a fresh map, so callers can hold it
// without aliasing the baseline.
func Merge(baseline, override estimai.Fields) estimai.Fields {
	merged := make(estimai.Fields, len(baseline)+len(override))
	for k, v := range baseline {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// ApplyPatchLocally returns a new Row whose Override is the union of the
// prior override and fields, and whose Merged is recomputed from scratch.
// Applying the same fields twice yields the same merged view. No I/O.
func ApplyPatchLocally(row estimai.Row, fields estimai.Fields) estimai.Row {
	if len(fields) == 0 {
		return row
	}

	override := make(estimai.Fields, len(row.Override)+len(fields))
	for k, v := range row.Override {
		override[k] = v
	}
	for k, v := range fields {
		override[k] = v
	}

	row.Override = override
	row.Merged = Merge(row.Baseline, override)
	return row
}

// OverriddenCount returns how many rows carry at least one human override.
func OverriddenCount(rows []estimai.Row) int {
	n := 0
	for _, r := range rows {
		if len(r.Override) > 0 {
			n++
		}
	}
	return n
}
