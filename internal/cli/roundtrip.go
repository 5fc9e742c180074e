package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/querybuilder/internal/canonical"
	"github.com/roach88/querybuilder/internal/session"
)

// RoundTripResult reports whether a document survived build and
// serialize unchanged.
type RoundTripResult struct {
	Lossless bool   `json:"lossless"`
	Diff     string `json:"diff,omitempty"`
}

// NewRoundTripCommand creates the roundtrip command.
func NewRoundTripCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roundtrip <query.json|->",
		Short: "Check that a document survives build and serialize",
		Long: `Build the field tree of a query document, serialize it again and
compare the result with the input in canonical form.

Exits 1 and prints a line diff when the documents differ.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoundTrip(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runRoundTrip(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	root, q, err := buildTree(opts, path, cmd)
	if err != nil {
		return loadFailure(formatter, err)
	}

	out, err := rebuild(q, root)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	before, after := q.ToMap(), out.ToMap()
	result := RoundTripResult{Lossless: canonical.Equal(before, after)}
	if !result.Lossless {
		changes, err := session.DiffJSON(before, after)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
		result.Diff = session.FormatDiff(changes)
	}
	formatter.VerboseLog("Round trip of %s: lossless=%t", path, result.Lossless)

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else if result.Lossless {
		fmt.Fprintln(formatter.Writer, "✓ Round trip is lossless")
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Round trip changed the document")
		fmt.Fprint(formatter.Writer, result.Diff)
	}

	if !result.Lossless {
		return NewExitError(ExitFailure, "round trip changed the document")
	}
	return nil
}
