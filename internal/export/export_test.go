package export

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/info757/estimai-cli/internal/review"
	"github.com/info757/estimai-cli/pkg/estimai"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		ProjectID:  "p1",
		Stage:      estimai.StageEstimate,
		ExportedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Rows: []estimai.Row{
			{
				ID:       "row-1",
				Baseline: estimai.Fields{"description": "Concrete slab", "quantity": 10.0, "unit_cost": 150.0},
				Override: estimai.Fields{"unit_cost": 175.0},
				Merged:   estimai.Fields{"description": "Concrete slab", "quantity": 10.0, "unit_cost": 175.0},
			},
			{
				ID:       "row-2",
				Baseline: estimai.Fields{"description": "Rebar", "quantity": 5.0, "unit_cost": 250.0},
				Merged:   estimai.Fields{"description": "Rebar", "quantity": 5.0, "unit_cost": 250.0},
			},
		},
		Totals: review.Breakdown{
			Subtotal:       3000,
			OverheadAmount: 300,
			ProfitAmount:   150,
			TotalMarkupPct: 15,
			GrandTotal:     3450,
		},
	}
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, sampleSnapshot()))

	var decoded Snapshot
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, "p1", decoded.ProjectID)
	assert.Equal(t, estimai.StageEstimate, decoded.Stage)
	require.Len(t, decoded.Rows, 2)
	assert.Equal(t, "row-1", decoded.Rows[0].ID)
	assert.InDelta(t, 3450, decoded.Totals.GrandTotal, 0.001)
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review.xlsx")
	require.NoError(t, WriteXLSX(path, sampleSnapshot()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	rows := f.Sheets[0]
	assert.Equal(t, "Rows", rows.Name)
	require.Len(t, rows.Rows, 3)
	// Header: row_id, edited, then sorted field columns
	assert.Equal(t, "row_id", rows.Rows[0].Cells[0].String())
	assert.Equal(t, "edited", rows.Rows[0].Cells[1].String())
	assert.Equal(t, "description", rows.Rows[0].Cells[2].String())
	assert.Equal(t, "quantity", rows.Rows[0].Cells[3].String())
	assert.Equal(t, "unit_cost", rows.Rows[0].Cells[4].String())

	assert.Equal(t, "row-1", rows.Rows[1].Cells[0].String())
	assert.Equal(t, "yes", rows.Rows[1].Cells[1].String())
	assert.Equal(t, "", rows.Rows[2].Cells[1].String())

	cost, err := rows.Rows[1].Cells[4].Float()
	require.NoError(t, err)
	assert.InDelta(t, 175.0, cost, 0.001)

	totals := f.Sheets[1]
	assert.Equal(t, "Totals", totals.Name)
	require.Len(t, totals.Rows, 6)
	assert.Equal(t, "grand_total", totals.Rows[5].Cells[0].String())
	grand, err := totals.Rows[5].Cells[1].Float()
	require.NoError(t, err)
	assert.InDelta(t, 3450.0, grand, 0.001)
}

func TestFieldColumns_UnionSorted(t *testing.T) {
	rows := []estimai.Row{
		{Merged: estimai.Fields{"b": 1, "a": 2}},
		{Merged: estimai.Fields{"c": 3, "a": 4}},
	}
	assert.Equal(t, []string{"a", "b", "c"}, fieldColumns(rows))
}
