package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/info757/estimai-cli/internal/review"
	"github.com/info757/estimai-cli/internal/store"
	"github.com/info757/estimai-cli/pkg/estimai"
)

var (
	editStage         string
	editSets          []string
	editAuthor        string
	editReason        string
	editAcceptClamped bool
)

var editCmd = &cobra.Command{
	Use:   "edit <project-id> <row-id>",
	Short: "Override fields on a review row",
	Long:  "Applies reviewer overrides to one row. Each --set writes one field; invalid values are rejected and out-of-range markups are clamped, with clamped values committed only under --accept-clamped.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		projectID, rowID := args[0], args[1]

		stage, err := parseStage(editStage)
		if err != nil {
			return err
		}
		if err := cfg.Validate("review"); err != nil {
			return err
		}
		if len(editSets) == 0 {
			return eris.New("at least one --set field=value is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		session := review.NewSession(initClient(), projectID, stage, editAuthor,
			review.WithRetryConfig(retryConfig()),
			review.WithAuditor(func(patch estimai.Patch, applied bool) {
				outcome := store.OutcomeApplied
				if !applied {
					outcome = store.OutcomeRolledBack
				}
				if err := st.RecordPatch(ctx, projectID, stage, patch, outcome); err != nil {
					zap.L().Warn("audit record failed", zap.String("patch", patch.ID), zap.Error(err))
				}
			}),
		)
		if err := session.Load(ctx); err != nil {
			return eris.Wrap(err, "load review")
		}

		for _, set := range editSets {
			field, value, ok := strings.Cut(set, "=")
			if !ok || field == "" {
				return eris.Errorf("invalid --set %q (want field=value)", set)
			}
			if err := applyEdit(cmd, session, rowID, field, parseValue(value)); err != nil {
				return err
			}
		}

		// Re-fetch so server-side derivations land before the row is shown.
		if err := session.Load(ctx); err != nil {
			return eris.Wrap(err, "refresh review")
		}
		row, ok := session.Row(rowID)
		if !ok {
			return eris.Wrap(review.ErrRowNotFound, rowID)
		}
		formatReviewRows(os.Stdout, []estimai.Row{row})
		return nil
	},
}

func applyEdit(cmd *cobra.Command, session *review.Session, rowID, field string, value any) error {
	if err := session.BeginEdit(rowID, field); err != nil {
		return eris.Wrapf(err, "edit %s.%s", rowID, field)
	}

	err := session.Commit(cmd.Context(), rowID, field, value, editReason)

	var clamped *review.ClampedError
	if errors.As(err, &clamped) {
		if !editAcceptClamped {
			session.CancelEdit(rowID, field)
			return eris.Errorf("%s: %s (rerun with --accept-clamped to commit %v)", field, clamped.Reason, clamped.Value)
		}
		fmt.Fprintf(os.Stderr, "%s clamped to %v\n", field, clamped.Value)
		err = session.Commit(cmd.Context(), rowID, field, clamped.Value, editReason)
	}

	var rejected *review.RejectedError
	if errors.As(err, &rejected) {
		session.CancelEdit(rowID, field)
		return eris.Errorf("%s: %s", field, rejected.Reason)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Saved %s.\n", field)
	return nil
}

// parseValue treats values that parse as numbers as numbers; everything else
// stays a string and the validation layer decides its fate.
func parseValue(s string) any {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

func init() {
	editCmd.Flags().StringVar(&editStage, "stage", "estimate", "review stage (takeoff or estimate)")
	editCmd.Flags().StringArrayVar(&editSets, "set", nil, "field=value override (repeatable)")
	editCmd.Flags().StringVar(&editAuthor, "author", "", "reviewer identity recorded on the patch")
	editCmd.Flags().StringVar(&editReason, "reason", "", "why the override was made")
	editCmd.Flags().BoolVar(&editAcceptClamped, "accept-clamped", false, "commit clamped values without confirmation")
	editCmd.MarkFlagRequired("author") //nolint:errcheck
	rootCmd.AddCommand(editCmd)
}
