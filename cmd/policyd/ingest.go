package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/policyrag/internal/ingest"
)

func newIngestCmd() *cobra.Command {
	var (
		dataDir  string
		pattern  string
		appendTo bool
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Rebuild the collection from a directory of policy documents",
		Long: `Ingest segments every matching document into access-scoped chunks, embeds
them and stores them. By default the collection is dropped and rebuilt so
removed documents disappear. --append keeps the collection: every document it
reads has all of its previous chunks deleted before the new ones are stored,
while chunks of documents no longer in the directory stay until the next full
rebuild.

Per-file failures are reported and do not stop the run.

Examples:
  policyd ingest --data-dir ./data
  policyd ingest --data-dir ./policies --pattern '**/*.txt' --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if dataDir == "" {
				dataDir = a.cfg.Ingest.DataDir
			}
			if pattern == "" {
				pattern = a.cfg.Ingest.Pattern
			}

			var report *ingest.Report
			if appendTo {
				report, err = a.ingester.IngestDir(ctx, dataDir, pattern)
			} else {
				report, err = a.ingester.Reindex(ctx, dataDir, pattern)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(out, report)
			if report.Stored == 0 && report.Chunks > 0 {
				return fmt.Errorf("no chunks stored: %w", report.Err())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory of documents (default from config)")
	cmd.Flags().StringVar(&pattern, "pattern", "", "doublestar pattern relative to data-dir (default from config)")
	cmd.Flags().BoolVar(&appendTo, "append", false, "keep the existing collection")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
