package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/querybuilder/internal/session"
)

// DiffResult is the outcome of comparing two query documents.
type DiffResult struct {
	Equal bool   `json:"equal"`
	Diff  string `json:"diff,omitempty"`
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <before.json> <after.json>",
		Short: "Show the line diff between two query documents",
		Long: `Compare two query documents in indented canonical form, so key
order and whitespace never show up as changes.

Exits 1 when the documents differ.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runDiff(opts *RootOptions, beforePath, afterPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	if beforePath == stdinPath && afterPath == stdinPath {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, "only one document can be read from stdin", nil)
	}

	before, err := loadQuery(beforePath, cmd.InOrStdin())
	if err != nil {
		return loadFailure(formatter, err)
	}
	after, err := loadQuery(afterPath, cmd.InOrStdin())
	if err != nil {
		return loadFailure(formatter, err)
	}

	changes, err := session.DiffJSON(before.ToMap(), after.ToMap())
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	result := DiffResult{Equal: !session.HasDifferences(changes)}
	if !result.Equal {
		result.Diff = session.FormatDiff(changes)
	}

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else if !result.Equal {
		fmt.Fprint(formatter.Writer, result.Diff)
	}

	if !result.Equal {
		return NewExitError(ExitFailure, "documents differ")
	}
	return nil
}
