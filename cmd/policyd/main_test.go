package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/policyrag/internal/access"
	"github.com/fyrsmithlabs/policyrag/internal/ingest"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"ingest", "search", "repl", "stats", "serve", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--env-file", ""})

	require.NoError(t, root.Execute())
	assert.Equal(t, "policyd dev (commit unknown, built unknown)\n", out.String())
}

func TestSearchCmd_RequiresQuestion(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"search"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing default file is ignored", func(t *testing.T) {
		assert.NoError(t, loadEnvFile(filepath.Join(dir, ".env"), false))
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		assert.Error(t, loadEnvFile(filepath.Join(dir, "missing.env"), true))
	})

	t.Run("loads without overriding", func(t *testing.T) {
		path := filepath.Join(dir, "test.env")
		require.NoError(t, os.WriteFile(path, []byte("POLICYRAG_CLI_TEST_NEW=from-file\nPOLICYRAG_CLI_TEST_SET=from-file\n"), 0o600))
		t.Setenv("POLICYRAG_CLI_TEST_SET", "from-env")
		t.Cleanup(func() { _ = os.Unsetenv("POLICYRAG_CLI_TEST_NEW") })

		require.NoError(t, loadEnvFile(path, true))
		assert.Equal(t, "from-file", os.Getenv("POLICYRAG_CLI_TEST_NEW"))
		assert.Equal(t, "from-env", os.Getenv("POLICYRAG_CLI_TEST_SET"))
	})
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short text", preview("short\n\ntext"))

	long := strings.Repeat("é", 250)
	got := preview(long)
	assert.Equal(t, strings.Repeat("é", 200)+"...", got, "cut counts characters, not bytes")
}

func TestPrintReport(t *testing.T) {
	report := &ingest.Report{
		Files: []ingest.FileOutcome{
			{Filename: "employee_handbook.txt", Chunks: 6, Stored: 6},
			{Filename: "security.txt", Chunks: 4, Stored: 2, Failed: 2, UnrecognizedMarkers: []string{"=== ACCESS: manager ==="}},
			{Filename: "binary.txt", Error: "not valid UTF-8"},
		},
		Chunks:  10,
		Stored:  8,
		Failed:  2,
		ByLevel: map[access.Level]int{access.LevelUser: 5, access.LevelAdmin: 3},
		Elapsed: 2 * time.Second,
	}
	var out bytes.Buffer
	printReport(&out, report)

	text := out.String()
	assert.Contains(t, text, "2 chunks failed")
	assert.Contains(t, text, "failed: not valid UTF-8")
	assert.Contains(t, text, "unrecognized markers: === ACCESS: manager ===")
	assert.Contains(t, text, "admin chunks: 3")
	assert.Contains(t, text, "user chunks: 5")
	assert.Contains(t, text, "Files: 3  Chunks: 10  Stored: 8  Failed: 2")
	assert.Contains(t, text, "4.0 chunks/s")
}

func TestPrintStats(t *testing.T) {
	var out bytes.Buffer
	printStats(&out, &ingest.Stats{TotalChunks: 7, Store: "qdrant", Dimension: 384})
	assert.Contains(t, out.String(), "Total chunks: 7")
	assert.NotContains(t, out.String(), "Admin-only", "level counts need an ingestion in this process")

	out.Reset()
	printStats(&out, &ingest.Stats{TotalChunks: 7, UserChunks: 5, AdminChunks: 2, Store: "qdrant", Dimension: 384, LastIngest: time.Now()})
	assert.Contains(t, out.String(), "User-accessible chunks: 5")
	assert.Contains(t, out.String(), "Admin-only chunks: 2")
	assert.Contains(t, out.String(), "qdrant (dimension 384)")
}
