package cli

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-dispatch/internal/jira"
)

var errInvalidQuery = errors.New("query is invalid")

func newValidateJQLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-jql <query>",
		Short: "Check a JQL query the way the API does before saving it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			validation := jira.ValidateJQL(strings.Join(args, " "))
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(validation); err != nil {
				return err
			}
			if !validation.Valid {
				return errInvalidQuery
			}
			return nil
		},
	}
}
