package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/querybuilder/internal/queryspec"
	"github.com/roach88/querybuilder/internal/querytree"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                        `json:"valid"`
	Errors []queryspec.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <query.json|->",
		Short: "Check a query document",
		Long: `Check the shape of a query document: the meta block, and every
structure and merge entry.

With a type catalogue (--types) the document's tree is built as well and
unknown properties, malformed entries and links without children are
reported.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	data, err := readDocument(path, cmd.InOrStdin())
	if err != nil {
		return loadFailure(formatter, err)
	}
	errs, err := queryspec.Validate(path, data)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	if opts.Types != "" {
		q, err := queryspec.Decode(data)
		if err != nil {
			return formatter.fail(ExitCommandError, queryspec.ErrInvalidJSON, err.Error(), nil)
		}
		root, err := treeOf(opts, path, q, cmd)
		if err != nil {
			return loadFailure(formatter, err)
		}
		formatter.VerboseLog("Checking the tree of %s", path)
		if errs := treeErrors(root); len(errs) > 0 {
			return outputValidationErrors(formatter, errs)
		}
	}

	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true})
	}
	fmt.Fprintf(formatter.Writer, "✓ %s is valid\n", path)
	return nil
}

// treeErrors reports the fields of a built tree that the catalogue does
// not support.
func treeErrors(root *querytree.Field) []queryspec.ValidationError {
	var errs []queryspec.ValidationError
	var visit func(f *querytree.Field, field string)
	visit = func(f *querytree.Field, field string) {
		switch {
		case f.IsInvalid:
			errs = append(errs, queryspec.ValidationError{
				Field: field, Code: ErrCodeInvalidEntry,
				Message: "entry is malformed and kept as written",
			})
		case f.IsUnknown:
			errs = append(errs, queryspec.ValidationError{
				Field: field, Code: ErrCodeUnknownProperty,
				Message: fmt.Sprintf("property %q is not in the catalogue", f.Schema.Attribute),
			})
		case f.IsInvalidLeaf && f.IsRoot():
			errs = append(errs, queryspec.ValidationError{
				Field: field, Code: ErrCodeIncompleteLink,
				Message: "query selects no fields",
			})
		case f.IsInvalidLeaf && f.IsRootMerge:
			errs = append(errs, queryspec.ValidationError{
				Field: field, Code: ErrCodeIncompleteLink,
				Message: "merge group needs at least two branches",
			})
		case f.IsInvalidLeaf:
			errs = append(errs, queryspec.ValidationError{
				Field: field, Code: ErrCodeIncompleteLink,
				Message: "link needs at least one child field",
			})
		}
		for i, c := range f.Structure {
			visit(c, fmt.Sprintf("%s.structure[%d]", field, i))
		}
		for i, c := range f.Merge {
			visit(c, fmt.Sprintf("%s.merge[%d]", field, i))
		}
	}
	visit(root, "query")
	return errs
}

func outputValidationErrors(f *OutputFormatter, errs []queryspec.ValidationError) error {
	if f.JSON() {
		result := ValidationResult{
			Valid:  false,
			Errors: errs,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(f.Writer, string(data))
	} else {
		fmt.Fprintln(f.Writer, "✗ Validation failed")
		fmt.Fprintln(f.Writer)
		for _, e := range errs {
			fmt.Fprintf(f.Writer, "  %s\n", e.Error())
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
