package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/info757/estimai-cli/internal/resilience"
)

var bidOutput string

var bidCmd = &cobra.Command{
	Use:   "bid <project-id>",
	Short: "Download the generated bid PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		projectID := args[0]

		if err := cfg.Validate("review"); err != nil {
			return err
		}

		client := initClient()
		pdf, err := resilience.DoVal(ctx, retryConfig(), "fetch bid", func(ctx context.Context) ([]byte, error) {
			return client.FetchBid(ctx, projectID)
		})
		if err != nil {
			return eris.Wrap(err, "fetch bid")
		}

		out := bidOutput
		if out == "" {
			out = projectID + "-bid.pdf"
		}
		if err := os.WriteFile(out, pdf, 0o644); err != nil {
			return eris.Wrap(err, "write bid pdf")
		}

		fmt.Fprintf(os.Stderr, "Wrote %s (%d bytes).\n", out, len(pdf))
		return nil
	},
}

func init() {
	bidCmd.Flags().StringVarP(&bidOutput, "output", "o", "", "output path (default <project-id>-bid.pdf)")
	rootCmd.AddCommand(bidCmd)
}
