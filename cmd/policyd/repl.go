package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/policyrag/internal/access"
	"github.com/fyrsmithlabs/policyrag/internal/retrieval"
)

// searcher is the part of the orchestrator the REPL needs.
type searcher interface {
	Search(ctx context.Context, req retrieval.Request) *retrieval.Response
}

func newReplCmd() *cobra.Command {
	var (
		role      string
		limit     int
		ingestDir bool
	)
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Ask questions interactively",
		Long: `Repl reads questions from stdin and prints the matching chunks for the
current role. Type 'switch' to toggle between user and admin, 'quit' to exit.

With --ingest the collection is rebuilt from the configured data directory
first and its statistics are shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if ingestDir {
				report, err := a.ingester.Reindex(ctx, a.cfg.Ingest.DataDir, a.cfg.Ingest.Pattern)
				if err != nil {
					return err
				}
				printReport(out, report)
				fmt.Fprintln(out)
			}
			if stats, err := a.ingester.Stats(ctx); err == nil {
				printStats(out, stats)
			}

			return runREPL(ctx, cmd.InOrStdin(), out, a.orchestrator, access.ParseRole(role), limit)
		},
	}
	cmd.Flags().StringVar(&role, "role", string(access.RoleUser), "starting role: user or admin")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results per question (default from config)")
	cmd.Flags().BoolVar(&ingestDir, "ingest", false, "rebuild the collection before starting")
	return cmd
}

// runREPL loops until quit, end of input, or ctx is cancelled.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, s searcher, role access.Role, limit int) error {
	p := newPalette(out)
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(out)
	fmt.Fprintln(out, p.header.Render("Interactive search (type 'quit' to exit, 'switch' to change role)"))
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprintf(out, "\nCurrent role: %s\n", role)
		fmt.Fprint(out, "Enter your question: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		query := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(query) {
		case "":
			continue
		case "quit", "exit":
			return nil
		case "switch":
			role = role.Toggle()
			fmt.Fprintf(out, "Switched to %s role\n", role)
			continue
		}

		fmt.Fprintf(out, "\nSearching as %s...\n", role)
		printResults(out, s.Search(ctx, retrieval.Request{Query: query, Role: role, Limit: limit}))
	}
}
