// Package cli implements dispatchctl, the operator command line for the
// ticket dispatch service.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var appVersion = "dev"

// SetVersion sets the version injected via ldflags.
func SetVersion(version string) {
	appVersion = version
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "dispatchctl",
		Short: "Operator tooling for the ticket dispatch service",
		Long: `dispatchctl issues operator tokens for the dispatch API and runs the
service's JQL validation and complexity scoring offline.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newVersionCommand(),
		newTokenCommand(),
		newValidateJQLCommand(),
		newScoreCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dispatchctl %s\n", appVersion)
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}
