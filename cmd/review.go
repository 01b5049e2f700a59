package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/info757/estimai-cli/internal/review"
	"github.com/info757/estimai-cli/pkg/estimai"
)

var (
	reviewStage    string
	reviewNoTotals bool
)

var reviewCmd = &cobra.Command{
	Use:   "review <project-id>",
	Short: "Show the merged review rows for a project stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		projectID := args[0]

		stage, err := parseStage(reviewStage)
		if err != nil {
			return err
		}
		if err := cfg.Validate("review"); err != nil {
			return err
		}

		client := initClient()
		session := review.NewSession(client, projectID, stage, "",
			review.WithRetryConfig(retryConfig()))
		if err := session.Load(ctx); err != nil {
			return eris.Wrap(err, "load review")
		}

		rows := session.View()
		formatReviewRows(os.Stdout, rows)
		formatReviewSummary(os.Stdout, rows)

		if !reviewNoTotals {
			links, err := quantityLinks(ctx, client, projectID, stage, rows)
			if err != nil {
				return err
			}
			formatBreakdown(os.Stdout, session.Totals(cfg.Markup, links))
		}
		return nil
	},
}

// quantityLinks maps estimate rows to the quantity of the takeoff row they
// reference via a takeoff_row_id field. Takeoff rows never link.
func quantityLinks(ctx context.Context, client estimai.Client, projectID string, stage estimai.Stage, rows []estimai.Row) (map[string]float64, error) {
	if stage != estimai.StageEstimate {
		return nil, nil
	}

	linked := make(map[string]string)
	for _, r := range rows {
		if ref, ok := r.Merged["takeoff_row_id"].(string); ok && ref != "" {
			linked[r.ID] = ref
		}
	}
	if len(linked) == 0 {
		return nil, nil
	}

	takeoff, err := client.GetReview(ctx, projectID, estimai.StageTakeoff)
	if err != nil {
		return nil, eris.Wrap(err, "load linked takeoff rows")
	}
	quantities := make(map[string]float64)
	for _, r := range takeoff.Rows {
		if q, ok := r.Merged["quantity"].(float64); ok {
			quantities[r.ID] = q
		}
	}

	links := make(map[string]float64)
	for rowID, ref := range linked {
		if q, ok := quantities[ref]; ok {
			links[rowID] = q
		}
	}
	return links, nil
}

func formatReviewRows(w io.Writer, rows []estimai.Row) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tDESCRIPTION\tQTY\tUNIT COST\tEDITED\tCONF")
	for _, r := range rows {
		desc, _ := r.Merged["description"].(string)
		conf := "-"
		if r.Confidence != nil {
			conf = fmt.Sprintf("%.2f", *r.Confidence)
		}
		edited := ""
		if len(r.Override) > 0 {
			edited = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, desc, fieldString(r.Merged, "quantity"), fieldString(r.Merged, "unit_cost"), edited, conf)
	}
	tw.Flush()
}

func formatReviewSummary(w io.Writer, rows []estimai.Row) {
	fmt.Fprintf(w, "%d rows, %d edited\n", len(rows), review.OverriddenCount(rows))
}

func fieldString(f estimai.Fields, key string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return "-"
	}
	if n, ok := v.(float64); ok {
		return fmt.Sprintf("%g", n)
	}
	return fmt.Sprint(v)
}

func formatBreakdown(w io.Writer, b review.Breakdown) {
	p := message.NewPrinter(language.English)
	fmt.Fprintln(w)
	p.Fprintf(w, "Subtotal:     $%.2f\n", review.Round2(b.Subtotal))
	p.Fprintf(w, "Overhead:     $%.2f\n", review.Round2(b.OverheadAmount))
	p.Fprintf(w, "Profit:       $%.2f\n", review.Round2(b.ProfitAmount))
	p.Fprintf(w, "Contingency:  $%.2f\n", review.Round2(b.ContingencyAmount))
	p.Fprintf(w, "Markup:       %.1f%%\n", b.TotalMarkupPct)
	p.Fprintf(w, "Grand total:  $%.2f\n", review.Round2(b.GrandTotal))
}

func init() {
	reviewCmd.Flags().StringVar(&reviewStage, "stage", "estimate", "review stage (takeoff or estimate)")
	reviewCmd.Flags().BoolVar(&reviewNoTotals, "no-totals", false, "skip the cost rollup")
	rootCmd.AddCommand(reviewCmd)
}
