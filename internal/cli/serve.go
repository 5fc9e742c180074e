package cli

import (
	"cmp"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/querybuilder/internal/auth"
	"github.com/roach88/querybuilder/internal/repository"
	"github.com/roach88/querybuilder/internal/server"
)

// DefaultAddr is the address serve listens on.
const DefaultAddr = ":8080"

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	Addr     string
	UserID   string
	UserName string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	serveOpts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the saved queries over HTTP",
		Long: `Serve the database named by --db and the type catalogue named by
--types on the routes a builder session's transport calls.

Queries can be listed, read, saved and deleted. Running queries is not
supported and answers 501. With --user-id the server reports that user as
signed in and stamps it on the queries it saves.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, serveOpts, cmd)
		},
	}

	cmd.Flags().StringVar(&serveOpts.Addr, "addr", cmp.Or(os.Getenv(EnvAddr), DefaultAddr), "listen address (env "+EnvAddr+")")
	cmd.Flags().StringVar(&serveOpts.UserID, "user-id", "", "id of the signed-in user")
	cmd.Flags().StringVar(&serveOpts.UserName, "user-name", "", "display name of the signed-in user")

	return cmd
}

func runServe(opts *RootOptions, serveOpts *ServeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	logger := opts.Logger(cmd.ErrOrStderr())

	var user *auth.User
	if serveOpts.UserID != "" {
		user = &auth.User{ID: serveOpts.UserID, DisplayName: serveOpts.UserName}
	}

	types, err := loadCatalogue(opts.Types, logger)
	if err != nil {
		return loadFailure(formatter, err)
	}
	defer types.Close()
	repo, err := openRepository(opts, logger, repository.WithUser(user))
	if err != nil {
		return loadFailure(formatter, err)
	}
	defer repo.Close()

	srv, err := server.New(repo, types, auth.NewStatic(user), server.WithLogger(logger))
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(formatter.GetErrWriter(), "Serving %s on %s\n", opts.DB, serveOpts.Addr)
	if err := srv.ListenAndServe(ctx, serveOpts.Addr); err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	return nil
}
