package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/policyrag/internal/access"
	httpapi "github.com/fyrsmithlabs/policyrag/internal/http"
	"github.com/fyrsmithlabs/policyrag/internal/retrieval"
)

func newSearchCmd() *cobra.Command {
	var (
		role   string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search <question>",
		Short: "Ask one question as a role",
		Long: `Search embeds the question and returns the closest chunks the role may see.
Unknown roles are treated as user.

Examples:
  policyd search "How many vacation days do I get?"
  policyd search --role admin --limit 5 "salary bands"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")
			resp := a.orchestrator.Search(ctx, retrieval.Request{
				Query: query,
				Role:  access.ParseRole(role),
				Limit: limit,
			})

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(httpapi.NewSearchResponse(query, access.ParseRole(role), resp)); err != nil {
					return err
				}
			} else {
				printResults(out, resp)
			}
			return resp.Diagnostic
		},
	}
	cmd.Flags().StringVar(&role, "role", string(access.RoleUser), "caller role: user or admin")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}
