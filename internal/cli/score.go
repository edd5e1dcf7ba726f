package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-dispatch/internal/jira"
	"github.com/spec-kit/ticket-dispatch/internal/scoring"
)

func newScoreCommand() *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "score <issues.json>",
		Short: "Score Jira issues exported as JSON",
		Long: `Score one Jira issue document, or every issue of a search response
({"issues": [...]}), and print the complexity breakdown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now
			if asOf != "" {
				at, err := time.Parse(time.RFC3339, asOf)
				if err != nil {
					return fmt.Errorf("parsing --as-of: %w", err)
				}
				now = func() time.Time { return at }
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading issues: %w", err)
			}
			issues, err := decodeIssues(raw)
			if err != nil {
				return err
			}

			analyzer := scoring.NewAnalyzer(now)
			for _, issue := range issues {
				ticket := jira.TicketFromIssue(issue)
				res := analyzer.Score(&ticket)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\t%s\n", ticket.Key, res.Score, res.Category, formatFactors(res.Factors))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "RFC3339 time used for backlog age (default now)")
	return cmd
}

func decodeIssues(raw []byte) ([]map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding issues: %w", err)
	}
	list, ok := doc["issues"].([]any)
	if !ok {
		return []map[string]any{doc}, nil
	}
	issues := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if issue, ok := item.(map[string]any); ok {
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

func formatFactors(factors map[string]int) string {
	names := make([]string, 0, len(factors))
	for name := range factors {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%+d", name, factors[name])
	}
	return strings.Join(parts, " ")
}
