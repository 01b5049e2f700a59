// Package export renders review snapshots to XLSX workbooks and YAML
// documents for handoff outside the review tool.
package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/info757/estimai-cli/internal/review"
	"github.com/info757/estimai-cli/pkg/estimai"
)

// Snapshot is one exported view of a project stage: the merged rows plus the
// cost rollup computed from them.
type Snapshot struct {
	ProjectID  string           `yaml:"project_id"`
	Stage      estimai.Stage    `yaml:"stage"`
	ExportedAt time.Time        `yaml:"exported_at"`
	Rows       []estimai.Row    `yaml:"rows"`
	Totals     review.Breakdown `yaml:"totals"`
}

// WriteYAML writes the snapshot as a single YAML document.
func WriteYAML(w io.Writer, snap Snapshot) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close() //nolint:errcheck
	return eris.Wrap(enc.Encode(snap), "export: encode yaml")
}

// WriteXLSX writes the snapshot as a workbook with a rows sheet and a totals
// sheet. Monetary cells are rounded to cents; the rollup itself is computed
// unrounded upstream.
func WriteXLSX(path string, snap Snapshot) error {
	f := xlsx.NewFile()

	rowsSheet, err := f.AddSheet("Rows")
	if err != nil {
		return eris.Wrap(err, "export: add rows sheet")
	}

	columns := fieldColumns(snap.Rows)
	header := rowsSheet.AddRow()
	header.AddCell().SetString("row_id")
	header.AddCell().SetString("edited")
	for _, col := range columns {
		header.AddCell().SetString(col)
	}

	for _, r := range snap.Rows {
		out := rowsSheet.AddRow()
		out.AddCell().SetString(r.ID)
		if len(r.Override) > 0 {
			out.AddCell().SetString("yes")
		} else {
			out.AddCell().SetString("")
		}
		for _, col := range columns {
			setCell(out.AddCell(), r.Merged[col])
		}
	}

	totalsSheet, err := f.AddSheet("Totals")
	if err != nil {
		return eris.Wrap(err, "export: add totals sheet")
	}
	addTotal := func(label string, v float64) {
		r := totalsSheet.AddRow()
		r.AddCell().SetString(label)
		r.AddCell().SetFloat(review.Round2(v))
	}
	addTotal("subtotal", snap.Totals.Subtotal)
	addTotal("overhead", snap.Totals.OverheadAmount)
	addTotal("profit", snap.Totals.ProfitAmount)
	addTotal("contingency", snap.Totals.ContingencyAmount)
	addTotal("markup_pct", snap.Totals.TotalMarkupPct)
	addTotal("grand_total", snap.Totals.GrandTotal)

	return eris.Wrap(f.Save(path), "export: save workbook")
}

// fieldColumns returns the union of merged field names across rows, sorted so
// the column order is stable run to run.
func fieldColumns(rows []estimai.Row) []string {
	seen := make(map[string]bool)
	for _, r := range rows {
		for k := range r.Merged {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func setCell(cell *xlsx.Cell, v any) {
	switch n := v.(type) {
	case float64:
		cell.SetFloat(n)
	case int:
		cell.SetInt(n)
	case nil:
		cell.SetString("")
	default:
		cell.SetString(fmt.Sprint(v))
	}
}
