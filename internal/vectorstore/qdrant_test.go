package vectorstore

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/policyrag/internal/access"
	"github.com/fyrsmithlabs/policyrag/internal/document"
)

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{"default collection", "policy_documents", false},
		{"digits", "hr_2024", false},
		{"empty name", "", true},
		{"uppercase letters", "Policy_Documents", true},
		{"hyphen", "policy-documents", true},
		{"too long", "a123456789012345678901234567890123456789012345678901234567890123456789", true},
		{"path traversal attempt", "../policies", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCollectionName(tt.input)
			if tt.wantError {
				assert.ErrorIs(t, err, ErrInvalidCollectionName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQdrantConfig_Validate(t *testing.T) {
	valid := QdrantConfig{Host: "localhost", Port: 6334, CollectionName: "policy_documents", VectorSize: 384}
	assert.NoError(t, valid.Validate())

	missingHost := valid
	missingHost.Host = ""
	assert.ErrorIs(t, missingHost.Validate(), ErrInvalidConfig)

	badPort := valid
	badPort.Port = 70000
	assert.ErrorIs(t, badPort.Validate(), ErrInvalidConfig)

	noSize := valid
	noSize.VectorSize = 0
	assert.ErrorIs(t, noSize.Validate(), ErrInvalidConfig)

	noCollection := valid
	noCollection.CollectionName = ""
	assert.ErrorIs(t, noCollection.Validate(), ErrInvalidCollectionName)
}

func TestQdrantConfig_ApplyDefaults(t *testing.T) {
	config := QdrantConfig{}
	config.ApplyDefaults()

	assert.Equal(t, "localhost", config.Host)
	assert.Equal(t, 6334, config.Port)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, 1000000000, int(config.RetryBackoff))
	assert.Equal(t, 50*1024*1024, config.MaxMessageSize)
	assert.Equal(t, 5, config.CircuitBreakerThreshold)
	assert.Equal(t, qdrant.Distance_Cosine, config.Distance)
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		code          codes.Code
		wantTransient bool
	}{
		{codes.Unavailable, true},
		{codes.DeadlineExceeded, true},
		{codes.Aborted, true},
		{codes.ResourceExhausted, true},
		{codes.InvalidArgument, false},
		{codes.NotFound, false},
		{codes.PermissionDenied, false},
		{codes.Unauthenticated, false},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.wantTransient, IsTransientError(status.Error(tt.code, "boom")))
		})
	}

	assert.False(t, IsTransientError(nil))
	assert.False(t, IsTransientError(errors.New("plain error")))
}

func TestClassifyError(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "connection refused")
	err := classifyError(unavailable)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Equal(t, codes.Unavailable, status.Code(err), "gRPC status must survive wrapping")

	assert.ErrorIs(t, classifyError(status.Error(codes.InvalidArgument, "wrong vector size")), ErrSchemaConflict)

	plain := errors.New("plain")
	assert.Equal(t, plain, classifyError(plain))
}

func TestQdrantFilter(t *testing.T) {
	assert.Nil(t, qdrantFilter(nil))

	user := qdrantFilter(&LevelFilter{Levels: access.AdmissibleLevels(access.RoleUser)})
	require.Len(t, user.GetMust(), 1)
	field := user.GetMust()[0].GetField()
	assert.Equal(t, document.FieldAccessLevel, field.GetKey())
	assert.Equal(t, "user", field.GetMatch().GetKeyword())

	admin := qdrantFilter(&LevelFilter{Levels: access.AdmissibleLevels(access.RoleAdmin)})
	require.Len(t, admin.GetMust(), 1)
	field = admin.GetMust()[0].GetField()
	assert.Equal(t, document.FieldAccessLevel, field.GetKey())
	assert.ElementsMatch(t, []string{"user", "admin"}, field.GetMatch().GetKeywords().GetStrings())
}

func TestQdrantPayload(t *testing.T) {
	c := document.Chunk{
		Content:      "Salary band: X.",
		Filename:     "compensation.txt",
		AccessLevel:  access.LevelAdmin,
		SequenceID:   7,
		DocumentType: document.TypeCompensation,
	}
	assert.Equal(t, c, chunkFromQdrant(qdrantPayload(c)))

	// A payload without access_level decodes to a level nobody but admin sees.
	partial := chunkFromQdrant(map[string]*qdrant.Value{
		document.FieldContent: qdrant.NewValueString("orphan"),
	})
	assert.Equal(t, access.Reject, access.Decide(partial.AccessLevel, access.RoleUser))
}

func TestFilenameFilter(t *testing.T) {
	f := filenameFilter("handbook.txt")
	require.Len(t, f.GetMust(), 1)
	field := f.GetMust()[0].GetField()
	assert.Equal(t, document.FieldFilename, field.GetKey())
	assert.Equal(t, "handbook.txt", field.GetMatch().GetKeyword())
}

func TestLevelFilter_Matches(t *testing.T) {
	var none *LevelFilter
	assert.True(t, none.Matches(access.LevelAdmin))

	f := &LevelFilter{Levels: []access.Level{access.LevelUser}}
	assert.True(t, f.Matches(access.LevelUser))
	assert.False(t, f.Matches(access.LevelAdmin))
}

// TestQdrantStore_Integration runs against a live Qdrant when
// POLICYRAG_TEST_QDRANT_HOST is set.
func TestQdrantStore_Integration(t *testing.T) {
	host := os.Getenv("POLICYRAG_TEST_QDRANT_HOST")
	if host == "" {
		t.Skip("POLICYRAG_TEST_QDRANT_HOST not set")
	}
	port := 6334
	if p := os.Getenv("POLICYRAG_TEST_QDRANT_PORT"); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		require.NoError(t, err)
	}

	ctx := context.Background()
	store, err := NewQdrantStore(ctx, QdrantConfig{
		Host:           host,
		Port:           port,
		CollectionName: "policyrag_integration_test",
		VectorSize:     4,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Reset(ctx))
	t.Cleanup(func() { _ = store.client.DeleteCollection(context.Background(), "policyrag_integration_test") })

	userChunk := document.Chunk{Content: "Vacation: 20 days.", Filename: "h.txt", AccessLevel: access.LevelUser, DocumentType: document.TypePolicy}
	adminChunk := document.Chunk{Content: "Salary band: X.", Filename: "h.txt", AccessLevel: access.LevelAdmin, DocumentType: document.TypePolicy}
	require.NoError(t, store.Upsert(ctx, []Record{
		{Chunk: userChunk, Vector: []float32{1, 0, 0, 0}},
		{Chunk: adminChunk, Vector: []float32{0.9, 0.1, 0, 0}},
	}))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.Query(ctx, []float32{0.9, 0.1, 0, 0}, &LevelFilter{Levels: access.AdmissibleLevels(access.RoleUser)}, 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, userChunk, got[0].Chunk)

	got, err = store.Query(ctx, []float32{0.9, 0.1, 0, 0}, &LevelFilter{Levels: access.AdmissibleLevels(access.RoleAdmin)}, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, adminChunk, got[0].Chunk)

	_, err = store.Query(ctx, []float32{1, 0}, nil, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	require.NoError(t, store.DeleteByFilename(ctx, "h.txt"))
	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
