package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/info757/estimai-cli/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect local run and override history",
	Long:  "Commands for listing pipeline runs and the patch audit trail recorded by this client.",
}

// -- history runs --

var historyRunsCmd = &cobra.Command{
	Use:   "runs <project-id>",
	Short: "List pipeline runs for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "history runs")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRuns(os.Stdout, runs)
		return nil
	},
}

// -- history audit --

var historyAuditCmd = &cobra.Command{
	Use:   "audit <project-id>",
	Short: "List recorded overrides for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		stageFlag, _ := cmd.Flags().GetString("stage")
		rowID, _ := cmd.Flags().GetString("row")
		outcome, _ := cmd.Flags().GetString("outcome")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.PatchFilter{
			RowID:   rowID,
			Outcome: store.Outcome(outcome),
			Limit:   limit,
		}
		if stageFlag != "" {
			stage, err := parseStage(stageFlag)
			if err != nil {
				return err
			}
			filter.Stage = stage
		}

		records, err := st.ListPatches(ctx, args[0], filter)
		if err != nil {
			return eris.Wrap(err, "history audit")
		}

		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No overrides recorded.")
			return nil
		}

		formatPatches(os.Stdout, records)
		return nil
	},
}

func formatRuns(w io.Writer, runs []store.RunRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTATUS\tSTARTED\tDURATION\tERROR")
	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.JobID, r.Status, r.StartedAt.Format(time.RFC3339), dur, r.Error)
	}
	tw.Flush()
}

func formatPatches(w io.Writer, records []store.PatchRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tSTAGE\tFIELDS\tAUTHOR\tOUTCOME\tRECORDED")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\t%s\n",
			rec.Patch.RowID, rec.Stage, rec.Patch.Fields, rec.Patch.Author,
			rec.Outcome, rec.RecordedAt.Format(time.RFC3339))
	}
	tw.Flush()
}

func init() {
	historyRunsCmd.Flags().Int("limit", 50, "max number of runs to display")

	historyAuditCmd.Flags().String("stage", "", "filter by stage (takeoff or estimate)")
	historyAuditCmd.Flags().String("row", "", "filter by row id")
	historyAuditCmd.Flags().String("outcome", "", "filter by outcome (applied, rolled_back)")
	historyAuditCmd.Flags().Int("limit", 50, "max number of patches to display")

	historyCmd.AddCommand(historyRunsCmd)
	historyCmd.AddCommand(historyAuditCmd)
	rootCmd.AddCommand(historyCmd)
}
