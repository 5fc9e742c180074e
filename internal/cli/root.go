// Package cli implements the qb command: building, checking and diffing
// query documents, and managing the saved queries of a local repository.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"
)

// Environment variables read as flag defaults.
const (
	EnvTypes = "QB_TYPES"
	EnvDB    = "QB_DB"
	EnvAddr  = "QB_ADDR"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Types   string // type catalogue file
	DB      string // saved query database
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the qb CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "qb",
		Short: "qb - query builder",
		Long: `Build, check and store graph query documents.

A query document names a root type and the properties to select from it.
qb turns documents into field trees and back using a type catalogue, and
keeps saved queries in a local database that "qb serve" exposes over HTTP.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Types, "types", os.Getenv(EnvTypes), "type catalogue file (YAML or JSON, env "+EnvTypes+")")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", os.Getenv(EnvDB), "saved query database (env "+EnvDB+")")

	cmd.AddCommand(NewBuildCommand(opts))
	cmd.AddCommand(NewRoundTripCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewSaveCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// Logger returns the logger commands hand to the packages they drive.
// Only warnings are shown unless verbose output is on.
func (o *RootOptions) Logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
