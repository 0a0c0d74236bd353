package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns its config directory.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "policyrag")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_YAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
vectorstore:
  provider: chromem
  chromem:
    path: /var/lib/policyrag
    compress: true
embeddings:
  provider: transformers
  base_url: http://embedder:8081
  timeout: 5s
segment:
  chunk_size: 500
search:
  limit: 4
server:
  shutdown_timeout: 3s
`, 0600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "/var/lib/policyrag", cfg.VectorStore.Chromem.Path)
	assert.True(t, cfg.VectorStore.Chromem.Compress)
	assert.Equal(t, "http://embedder:8081", cfg.Embeddings.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Embeddings.Timeout.Duration())
	assert.Equal(t, 500, cfg.Segment.ChunkSize)
	assert.Equal(t, 4, cfg.Search.Limit)
	assert.Equal(t, 3, cfg.Search.OverFetch, "unset values fall back to defaults")
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_DefaultFileIsRead(t *testing.T) {
	dir := setupTestHome(t)
	writeConfig(t, dir, "search:\n  limit: 7\n", 0600)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Search.Limit)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := setupTestHome(t)

	_, err := Load(filepath.Join(dir, "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "search:\n  limit: 4\nvectorstore:\n  provider: chromem\n", 0600)

	t.Setenv("POLICYRAG_SEARCH_LIMIT", "9")
	t.Setenv("POLICYRAG_SEARCH_OVER_FETCH", "5")
	t.Setenv("POLICYRAG_VECTORSTORE_PROVIDER", "qdrant")
	t.Setenv("POLICYRAG_VECTORSTORE_QDRANT_HOST", "qdrant.internal")
	t.Setenv("POLICYRAG_VECTORSTORE_QDRANT_PORT", "7334")
	t.Setenv("POLICYRAG_VECTORSTORE_QDRANT_API_KEY", "qk-secret")
	t.Setenv("POLICYRAG_EMBEDDINGS_TIMEOUT", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Search.Limit)
	assert.Equal(t, 5, cfg.Search.OverFetch)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 7334, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, "qk-secret", cfg.VectorStore.Qdrant.APIKey.Value())
	assert.Equal(t, 45*time.Second, cfg.Embeddings.Timeout.Duration())
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "search:\n  limit: 500\n", 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestLoad_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "search:\n  limit: 4\n", 0644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_ReadOnlyPermissionsAccepted(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "search:\n  limit: 4\n", 0400)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Search.Limit)
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := setupTestHome(t)
	big := "# " + strings.Repeat("x", maxConfigFileSize) + "\n"
	path := writeConfig(t, dir, big, 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoad_PathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)
	outside := t.TempDir()
	path := writeConfig(t, outside, "search:\n  limit: 4\n", 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestValidateConfigPath(t *testing.T) {
	dir := setupTestHome(t)

	assert.NoError(t, validateConfigPath(filepath.Join(dir, "config.yaml")))
	assert.NoError(t, validateConfigPath("policyrag.yaml"), "working directory is allowed")
	assert.Error(t, validateConfigPath(filepath.Join(dir+"-evil", "config.yaml")))
	assert.Error(t, validateConfigPath(filepath.Join(dir, "..", "config.yaml")))
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"POLICYRAG_SEARCH_LIMIT":                  "search.limit",
		"POLICYRAG_SEARCH_OVER_FETCH":             "search.over_fetch",
		"POLICYRAG_VECTORSTORE_PROVIDER":          "vectorstore.provider",
		"POLICYRAG_VECTORSTORE_QDRANT_VECTOR_SIZE": "vectorstore.qdrant.vector_size",
		"POLICYRAG_VECTORSTORE_CHROMEM_PATH":      "vectorstore.chromem.path",
		"POLICYRAG_EMBEDDINGS_BASE_URL":           "embeddings.base_url",
		"POLICYRAG_SERVER_SHUTDOWN_TIMEOUT":       "server.shutdown_timeout",
		"POLICYRAG_TELEMETRY_SAMPLE_RATE":         "telemetry.sample_rate",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, EnsureConfigDir())
	info, err := os.Stat(filepath.Join(home, ".config", "policyrag"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
