package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/info757/estimai-cli/internal/export"
	"github.com/info757/estimai-cli/internal/review"
)

var (
	exportStage  string
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <project-id>",
	Short: "Export a review snapshot to XLSX or YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		projectID := args[0]

		stage, err := parseStage(exportStage)
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
		links, err := quantityLinks(ctx, client, projectID, stage, rows)
		if err != nil {
			return err
		}

		snap := export.Snapshot{
			ProjectID:  projectID,
			Stage:      stage,
			ExportedAt: time.Now().UTC(),
			Rows:       rows,
			Totals:     session.Totals(cfg.Markup, links),
		}

		switch exportFormat {
		case "xlsx":
			out := exportOutput
			if out == "" {
				out = fmt.Sprintf("%s-%s.xlsx", projectID, stage)
			}
			if err := export.WriteXLSX(out, snap); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %s.\n", out)
		case "yaml":
			w := cmd.OutOrStdout()
			if exportOutput != "" {
				f, err := os.Create(exportOutput)
				if err != nil {
					return eris.Wrap(err, "create output file")
				}
				defer f.Close() //nolint:errcheck
				w = f
			}
			if err := export.WriteYAML(w, snap); err != nil {
				return err
			}
		default:
			return eris.Errorf("unknown format %q (want xlsx or yaml)", exportFormat)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportStage, "stage", "estimate", "review stage (takeoff or estimate)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "yaml", "output format (xlsx or yaml)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output path (default stdout for yaml)")
	rootCmd.AddCommand(exportCmd)
}
