// Package main implements policyd, the policyrag command line.
//
// policyd ingests annotated policy documents into a vector store and answers
// role-filtered questions against them, one-shot, interactively, or over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Set via ldflags during build.
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath string
	envFile    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "policyd",
		Short: "Role-filtered search over policy documents",
		Long: `policyd splits policy documents into access-scoped chunks, embeds them
into Qdrant or chromem-go, and answers questions so that user callers never
see admin-only sections.

Configuration comes from ~/.config/policyrag/config.yaml (or --config) and
POLICYRAG_* environment variables. A .env file in the working directory is
loaded first when present.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(envFile, cmd.Flags().Changed("env-file"))
		},
	}
	root.SetVersionTemplate(versionString() + "\n")

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/policyrag/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with POLICYRAG_* overrides")

	root.AddCommand(
		newIngestCmd(),
		newSearchCmd(),
		newReplCmd(),
		newStatsCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return root
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing default file is fine.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

func versionString() string {
	return fmt.Sprintf("policyd %s (commit %s, built %s)", version, gitCommit, buildDate)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
		},
	}
}
