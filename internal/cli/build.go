package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/querybuilder/internal/queryspec"
	"github.com/roach88/querybuilder/internal/querytree"
)

// TreeNode is the printable form of one field.
type TreeNode struct {
	Name      string     `json:"name"`
	Attribute string     `json:"attribute,omitempty"`
	Label     string     `json:"label,omitempty"`
	Flags     []string   `json:"flags,omitempty"`
	Options   []string   `json:"options,omitempty"`
	Structure []TreeNode `json:"structure,omitempty"`
	Merge     []TreeNode `json:"merge,omitempty"`
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <query.json|->",
		Short: "Print the field tree of a query document",
		Long: `Build the field tree of a query document against the type catalogue
and print it, one field per line.

Fields are flagged when they are flattened, reversed, merge branches,
unknown to the catalogue, kept as written because they are malformed,
or links that still need children.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runBuild(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	root, _, err := buildTree(opts, path, cmd)
	if err != nil {
		return loadFailure(formatter, err)
	}

	node := treeNode(root)
	if formatter.JSON() {
		return formatter.Success(node)
	}
	writeTree(formatter.Writer, node, 0)
	return nil
}

// buildTree loads the document at path and builds its tree.
func buildTree(opts *RootOptions, path string, cmd *cobra.Command) (*querytree.Field, *queryspec.Query, error) {
	q, err := loadQuery(path, cmd.InOrStdin())
	if err != nil {
		return nil, nil, err
	}
	root, err := treeOf(opts, path, q, cmd)
	if err != nil {
		return nil, nil, err
	}
	return root, q, nil
}

// treeOf builds the tree of q against the type catalogue.
func treeOf(opts *RootOptions, path string, q *queryspec.Query, cmd *cobra.Command) (*querytree.Field, error) {
	if q.Meta.Type == "" {
		return nil, &LoadError{Code: queryspec.ErrInvalidQuery, Message: path + ": meta.type is required"}
	}
	types, err := loadCatalogue(opts.Types, opts.Logger(cmd.ErrOrStderr()))
	if err != nil {
		return nil, err
	}
	defer types.Close()
	return querytree.Build(types, q.Context, querytree.RootSchemaFor(types, q.Meta.Type), q), nil
}

// rebuild serializes root and wraps the entries in q's envelope.
func rebuild(q *queryspec.Query, root *querytree.Field) (*queryspec.Query, error) {
	out, err := querytree.Serialize(root)
	if err != nil {
		return nil, err
	}
	meta := q.Meta
	meta.Extra = q.Meta.Extra.Clone()
	meta.Type = root.Schema.ID
	return &queryspec.Query{
		ID:         q.ID,
		Context:    queryspec.CloneMap(q.Context),
		Meta:       meta,
		Structure:  out.Structure,
		Merge:      out.Merge,
		HasMerge:   root.IsRootMerge,
		Space:      q.Space,
		Author:     q.Author,
		Properties: root.Options.Clone(),
	}, nil
}

func treeNode(f *querytree.Field) TreeNode {
	n := TreeNode{
		Name:      f.Name(),
		Attribute: f.Schema.Attribute,
		Label:     f.Schema.Label,
		Flags:     fieldFlags(f),
		Options:   f.Options.Names(),
	}
	if f.IsRoot() {
		n.Attribute = f.Schema.ID
	}
	if n.Name == "" {
		n.Name = "?"
	}
	for _, c := range f.Structure {
		n.Structure = append(n.Structure, treeNode(c))
	}
	for _, c := range f.Merge {
		n.Merge = append(n.Merge, treeNode(c))
	}
	return n
}

func fieldFlags(f *querytree.Field) []string {
	var flags []string
	add := func(on bool, flag string) {
		if on {
			flags = append(flags, flag)
		}
	}
	add(f.IsFlattened, "flattened")
	add(f.IsReverse, "reverse")
	add(f.IsRootMerge, "merge group")
	add(f.IsMerge, "merge")
	add(f.IsUnknown, "unknown")
	add(f.IsInvalid, "invalid")
	add(f.IsInvalidLeaf, "invalid leaf")
	return flags
}

// writeTree prints n and its children, indented two spaces per level.
func writeTree(w io.Writer, n TreeNode, depth int) {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.Name)
	if n.Attribute != "" {
		fmt.Fprintf(&b, " <%s>", n.Attribute)
	}
	if len(n.Flags) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(n.Flags, ", "))
	}
	if len(n.Options) > 0 {
		fmt.Fprintf(&b, " {%s}", strings.Join(n.Options, ", "))
	}
	fmt.Fprintln(w, b.String())

	for _, c := range n.Structure {
		writeTree(w, c, depth+1)
	}
	for _, c := range n.Merge {
		writeTree(w, c, depth+1)
	}
}
