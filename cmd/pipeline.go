package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/info757/estimai-cli/internal/jobs"
	"github.com/info757/estimai-cli/pkg/estimai"
)

var (
	pipelineIntervalSecs int
	pipelineTimeoutSecs  int
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline <project-id>",
	Short: "Run the extraction pipeline and wait for completion",
	Long:  "Starts the takeoff/estimate pipeline for a project, polls job status until it finishes, and records the run in the audit store.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		projectID := args[0]

		if err := cfg.Validate("pipeline"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		client := initClient()

		interval := cfg.Poll.IntervalSecs
		if pipelineIntervalSecs > 0 {
			interval = pipelineIntervalSecs
		}
		timeout := cfg.Poll.TimeoutSecs
		if pipelineTimeoutSecs > 0 {
			timeout = pipelineTimeoutSecs
		}

		var recorded string
		poller := jobs.New(client,
			jobs.WithInterval(time.Duration(interval)*time.Second),
			jobs.WithTimeout(time.Duration(timeout)*time.Second),
			jobs.WithStartHook(func(jobID string) {
				recorded = jobID
				if rerr := st.RecordRun(ctx, projectID, jobID); rerr != nil {
					zap.L().Warn("run record failed", zap.String("job", jobID), zap.Error(rerr))
				}
			}),
		)

		status, err := poller.Run(ctx, projectID, func(s estimai.JobStatus) {
			fmt.Fprintf(os.Stderr, "\r%s", formatProgress(s))
		})
		fmt.Fprintln(os.Stderr)

		if err != nil {
			if recorded != "" {
				if cerr := st.CompleteRun(ctx, recorded, estimai.JobFailed, err.Error()); cerr != nil {
					zap.L().Warn("run completion record failed", zap.Error(cerr))
				}
			}
			return eris.Wrap(err, "pipeline")
		}

		if cerr := st.CompleteRun(ctx, status.JobID, status.Status, status.Error); cerr != nil {
			zap.L().Warn("run completion record failed", zap.Error(cerr))
		}

		fmt.Fprintf(os.Stderr, "Pipeline %s finished: %s\n", status.JobID, status.Status)

		// Refresh both stages concurrently so the next review command shows
		// fresh counts.
		g, gctx := errgroup.WithContext(ctx)
		for _, stage := range []estimai.Stage{estimai.StageTakeoff, estimai.StageEstimate} {
			g.Go(func() error {
				resp, err := client.GetReview(gctx, projectID, stage)
				if err != nil {
					return eris.Wrapf(err, "refresh %s", stage)
				}
				fmt.Fprintf(os.Stderr, "%s: %d rows (%d overridden)\n", stage, resp.TotalRows, resp.OverriddenRows)
				return nil
			})
		}
		return g.Wait()
	},
}

// formatProgress renders the one-line poll status. Progress is already a
// percentage, 0 through 100.
func formatProgress(s estimai.JobStatus) string {
	return fmt.Sprintf("%s: %s %3.0f%%", s.JobID, s.Status, s.Progress)
}

func init() {
	pipelineCmd.Flags().IntVar(&pipelineIntervalSecs, "interval", 0, "poll interval in seconds (default from config)")
	pipelineCmd.Flags().IntVar(&pipelineTimeoutSecs, "timeout", 0, "poll timeout in seconds (default from config)")
	rootCmd.AddCommand(pipelineCmd)
}
