// Package cli implements the invitations admin command line.
package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds the persistent flags shared by every command.
type RootOptions struct {
	Verbose bool
	Format  string
	EnvFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

func newRootCommand() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "invitations",
		Short: "Event invitations and RSVP tracking",
		Long: `invitations manages contacts and events stored as JSON documents,
sends invitations by email and WhatsApp, and serves the public RSVP pages.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format: text or json")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "environment file to load (default .env)")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	cmd.AddCommand(
		newServeCommand(opts),
		newContactsCommand(opts),
		newEventsCommand(opts),
		newConfigCommand(opts),
	)
	return cmd, opts
}

// Execute runs the command line with args and returns the exit code.
// Failures are reported in the selected output format.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd, opts := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	out := &OutputFormatter{Format: opts.Format, Writer: stdout, ErrWriter: stderr}
	_ = out.Error(errorCode(err), err.Error(), failureDetails(err))
	return GetExitCode(err)
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
