package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/querybuilder/internal/auth"
	"github.com/roach88/querybuilder/internal/canonical"
	"github.com/roach88/querybuilder/internal/jsonld"
	"github.com/roach88/querybuilder/internal/queryspec"
	"github.com/roach88/querybuilder/internal/repository"
	"github.com/roach88/querybuilder/internal/session"
	"github.com/roach88/querybuilder/internal/transport"
)

// EntrySummary describes one saved query.
type EntrySummary struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Space    string `json:"space"`
	Label    string `json:"label,omitempty"`
	Revision int64  `json:"revision"`
	Hash     string `json:"hash"`
}

func summarize(e repository.Entry) EntrySummary {
	return EntrySummary{
		ID:       e.ID,
		Type:     e.Type,
		Space:    e.Space,
		Label:    e.Label,
		Revision: e.Revision,
		Hash:     e.Hash,
	}
}

// SaveOptions holds flags for the save command.
type SaveOptions struct {
	ID    string
	Space string
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	saveOpts := &SaveOptions{}

	cmd := &cobra.Command{
		Use:   "save <query.json|->",
		Short: "Save a query document in the database",
		Long: `Load a query document into a builder session and save it in the
database named by --db.

The document keeps its @id unless --id is given; a document without one
gets a new id. Saving an unchanged document keeps its revision.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSave(rootOpts, saveOpts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&saveOpts.ID, "id", "", "id to save the query under")
	cmd.Flags().StringVar(&saveOpts.Space, "space", auth.DefaultSpaceName, "space to save the query in")

	return cmd
}

func runSave(opts *RootOptions, saveOpts *SaveOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	logger := opts.Logger(cmd.ErrOrStderr())
	ctx := cmd.Context()

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
	q, err := queryspec.Decode(data)
	if err != nil {
		return formatter.fail(ExitCommandError, queryspec.ErrInvalidJSON, err.Error(), nil)
	}
	if saveOpts.ID != "" {
		q.ID = saveOpts.ID
	}

	types, err := loadCatalogue(opts.Types, logger)
	if err != nil {
		return loadFailure(formatter, err)
	}
	defer types.Close()
	repo, err := openRepository(opts, logger)
	if err != nil {
		return loadFailure(formatter, err)
	}
	defer repo.Close()

	store := session.New(types, transport.Combined{Repository: repo},
		session.WithSpaces(spacesFor(saveOpts.Space)),
		session.WithLogger(logger),
	)
	if !store.LoadQuery(q) {
		return formatter.fail(ExitFailure, queryspec.ErrInvalidQuery, path+": query cannot be loaded", nil)
	}
	if !store.SetSpace(saveOpts.Space) {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("unknown space %q", saveOpts.Space), nil)
	}
	formatter.VerboseLog("Saving %s as %s", path, store.State().QueryID)

	store.SaveQuery(ctx)
	st := store.State()
	if st.SaveError != "" {
		return formatter.fail(ExitCommandError, ErrCodeStore, st.SaveError, nil)
	}
	if !store.IsQuerySaved() {
		return formatter.fail(ExitFailure, ErrCodeGeneric, "query selects no fields", nil)
	}

	e, err := repo.Get(ctx, st.QueryID)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	summary := summarize(e)
	if formatter.JSON() {
		return formatter.Success(summary)
	}
	fmt.Fprintf(formatter.Writer, "✓ Saved %s in %s (revision %d)\n", summary.ID, summary.Space, summary.Revision)
	return nil
}

// spacesFor offers the private space, plus name when it is another space.
func spacesFor(name string) *auth.Static {
	private := auth.DefaultPrivateSpace()
	if name == "" || name == private.Name {
		return auth.NewStatic(nil, private)
	}
	shared := auth.DefaultPrivateSpace()
	shared.Name = name
	shared.IsPrivate = false
	return auth.NewStatic(nil, private, shared)
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var typeID string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List saved queries",
		Long:          `List the saved queries in the database, oldest first, optionally only those rooted at --type.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, typeID, cmd)
		},
	}

	cmd.Flags().StringVar(&typeID, "type", "", "only list queries rooted at this type")

	return cmd
}

func runList(opts *RootOptions, typeID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	repo, err := openRepository(opts, opts.Logger(cmd.ErrOrStderr()))
	if err != nil {
		return loadFailure(formatter, err)
	}
	defer repo.Close()

	entries, err := repo.ListByType(cmd.Context(), typeID)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	summaries := make([]EntrySummary, len(entries))
	for i, e := range entries {
		summaries[i] = summarize(e)
	}

	if formatter.JSON() {
		return formatter.Success(summaries)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(formatter.Writer, "No saved queries")
		return nil
	}
	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tTYPE\tSPACE\tREVISION")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", s.ID, s.Label, s.Type, s.Space, s.Revision)
	}
	return tw.Flush()
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var normalize bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a saved query document",
		Long: `Print the saved query id as indented canonical JSON.

With --normalize the document is expanded and compacted again with the
default query context first, the way a builder session reads documents
written by other tools.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args[0], normalize, cmd)
		},
	}

	cmd.Flags().BoolVar(&normalize, "normalize", false, "expand and compact the document as JSON-LD")

	return cmd
}

func runShow(opts *RootOptions, id string, normalize bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	repo, err := openRepository(opts, opts.Logger(cmd.ErrOrStderr()))
	if err != nil {
		return loadFailure(formatter, err)
	}
	defer repo.Close()

	e, err := repo.Get(cmd.Context(), id)
	if transport.IsNotFound(err) {
		return formatter.fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("no saved query %q", id), nil)
	}
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	doc := e.Document
	if normalize {
		ctx := queryspec.DefaultContext()
		in := queryspec.CloneMap(doc)
		in["@context"] = ctx
		doc, err = jsonld.New().Normalize(in, ctx)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
	}

	if formatter.JSON() {
		return formatter.Success(doc)
	}
	data, err := canonical.Marshal(doc)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	fmt.Fprintln(formatter.Writer, buf.String())
	return nil
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a saved query",
		Long:          `Fetch the saved query id into a builder session and delete it from the database.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runDelete(opts *RootOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	logger := opts.Logger(cmd.ErrOrStderr())
	ctx := cmd.Context()

	types, err := loadCatalogue(opts.Types, logger)
	if err != nil {
		return loadFailure(formatter, err)
	}
	defer types.Close()
	repo, err := openRepository(opts, logger)
	if err != nil {
		return loadFailure(formatter, err)
	}
	defer repo.Close()

	store := session.New(types, transport.Combined{Repository: repo},
		session.WithSpaces(auth.NewStatic(nil)),
		session.WithLogger(logger),
	)
	if _, ok := store.FetchQueryByID(ctx, id); !ok {
		if msg := store.State().FetchQueriesError; msg != "" {
			return formatter.fail(ExitCommandError, ErrCodeStore, msg, nil)
		}
		return formatter.fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("no saved query %q", id), nil)
	}

	store.DeleteQuery(ctx, id)
	for _, q := range store.Queries() {
		if q.ID == id {
			msg := q.DeleteError
			if msg == "" {
				msg = fmt.Sprintf("query %q was not deleted", id)
			}
			return formatter.fail(ExitCommandError, ErrCodeStore, msg, nil)
		}
	}

	if formatter.JSON() {
		return formatter.Success(map[string]string{"deleted": id})
	}
	fmt.Fprintf(formatter.Writer, "✓ Deleted %s\n", id)
	return nil
}
