package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	chromem "github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewResilientChromemDB_HealthyDB(t *testing.T) {
	db, err := NewResilientChromemDB(t.TempDir(), false, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, db)
}

func TestNewResilientChromemDB_QuarantinesCollectionWithoutMetadata(t *testing.T) {
	path := t.TempDir()

	db, err := chromem.NewPersistentDB(path, false)
	require.NoError(t, err)
	c, err := db.CreateCollection("policy_documents", nil, precomputedOnly)
	require.NoError(t, err)
	require.NoError(t, c.AddDocument(context.Background(), chromem.Document{
		ID:        "a",
		Content:   "Vacation: 20 days.",
		Embedding: []float32{1, 0},
	}))

	entries, err := os.ReadDir(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	hash := entries[0].Name()
	require.NoError(t, os.Remove(filepath.Join(path, hash, chromemMetadataStem+".gob")))

	_, err = chromem.NewPersistentDB(path, false)
	require.Error(t, err, "chromem refuses a collection without metadata")

	reopened, err := NewResilientChromemDB(path, false, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Empty(t, reopened.ListCollections())

	quarantined, err := os.ReadDir(filepath.Join(path, quarantineDir))
	require.NoError(t, err)
	require.Len(t, quarantined, 1)
	assert.Contains(t, quarantined[0].Name(), hash)
}

func TestFindCorruptCollections(t *testing.T) {
	path := t.TempDir()

	healthy := filepath.Join(path, "aaaa0001")
	require.NoError(t, os.MkdirAll(healthy, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(healthy, "00000000.gob"), []byte("metadata"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(healthy, "abcd1234.gob"), []byte("document"), 0o644))

	compressed := filepath.Join(path, "aaaa0002")
	require.NoError(t, os.MkdirAll(compressed, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(compressed, "00000000.gob.gz"), []byte("metadata"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(compressed, "abcd1234.gob.gz"), []byte("document"), 0o644))

	corrupt := filepath.Join(path, "bbbb0001")
	require.NoError(t, os.MkdirAll(corrupt, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corrupt, "abcd5678.gob"), []byte("document"), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(path, "cccc0001"), 0o755))

	// Not a collection hash: ignored even though it has no metadata.
	other := filepath.Join(path, "notes")
	require.NoError(t, os.MkdirAll(other, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(other, "x.gob"), []byte("document"), 0o644))

	found, err := findCorruptCollections(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"bbbb0001"}, found)
}
