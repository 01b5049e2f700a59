package review

import (
	"math"

	"github.com/info757/estimai-cli/pkg/estimai"
)

// MarkupConfig holds the percentage uplifts applied to the cost subtotal.
type MarkupConfig struct {
	OverheadPct    float64 `yaml:"overhead_pct" mapstructure:"overhead_pct"`
	ProfitPct      float64 `yaml:"profit_pct" mapstructure:"profit_pct"`
	ContingencyPct float64 `yaml:"contingency_pct" mapstructure:"contingency_pct"`
}

// Normalize returns the config with every markup clamped into [0, 30].
func (c MarkupConfig) Normalize() MarkupConfig {
	c.OverheadPct = clampPct(c.OverheadPct)
	c.ProfitPct = clampPct(c.ProfitPct)
	c.ContingencyPct = clampPct(c.ContingencyPct)
	return c
}

// TotalPct is the summed markup percentage.
func (c MarkupConfig) TotalPct() float64 {
	return c.OverheadPct + c.ProfitPct + c.ContingencyPct
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > maxMarkupPct {
		return maxMarkupPct
	}
	return v
}

// Breakdown is the computed cost rollup. All amounts are unrounded; rounding
// to cents happens only at presentation time so repeated recomputation never
// compounds rounding error.
type Breakdown struct {
	Subtotal          float64 `json:"subtotal" yaml:"subtotal"`
	OverheadAmount    float64 `json:"overhead_amount" yaml:"overhead_amount"`
	ProfitAmount      float64 `json:"profit_amount" yaml:"profit_amount"`
	ContingencyAmount float64 `json:"contingency_amount" yaml:"contingency_amount"`
	TotalMarkupPct    float64 `json:"total_markup_pct" yaml:"total_markup_pct"`
	GrandTotal        float64 `json:"grand_total" yaml:"grand_total"`
}

// ComputeTotals rolls up extended costs across rows and applies markups.
// overlay carries per-row optimistic field deltas still awaiting server
// confirmation; a row with an overlay entry is priced from its speculative
// view. links maps a row id to the quantity of its linked takeoff row; a
// linked quantity wins over the row's own quantity field. Rows with neither
// price one unit, the documented default for cost lines with no quantity
// concept.
func ComputeTotals(rows []estimai.Row, overlay map[string]estimai.Fields, links map[string]float64, cfg MarkupConfig) Breakdown {
	cfg = cfg.Normalize()

	subtotal := 0.0
	for _, row := range rows {
		view := row.Merged
		if delta, ok := overlay[row.ID]; ok && len(delta) > 0 {
			view = Merge(view, delta)
		}
		subtotal += extendedCost(row.ID, view, links)
	}

	b := Breakdown{
		Subtotal:          subtotal,
		OverheadAmount:    subtotal * cfg.OverheadPct / 100,
		ProfitAmount:      subtotal * cfg.ProfitPct / 100,
		ContingencyAmount: subtotal * cfg.ContingencyPct / 100,
		TotalMarkupPct:    cfg.TotalPct(),
	}
	b.GrandTotal = subtotal * (1 + b.TotalMarkupPct/100)
	return b
}

// extendedCost computes effectiveQuantity * unitCost for one row view.
func extendedCost(rowID string, view estimai.Fields, links map[string]float64) float64 {
	qty := 1.0
	if linked, ok := links[rowID]; ok {
		qty = linked
	} else if v, ok := toNumber(view["quantity"]); ok {
		qty = v
	}

	cost, ok := toNumber(view["unit_cost"])
	if !ok {
		return 0
	}
	return qty * cost
}

// Round2 rounds to 2 decimal places. Presentation only.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
