package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/policyrag/internal/config"
)

func TestRedact(t *testing.T) {
	assert.Equal(t, "sk-...wxyz", Redact("sk-abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "********", Redact("12345678"))
	assert.Equal(t, "", Redact(""))
}

func TestSecretField(t *testing.T) {
	f := Secret("api_key", config.Secret("sk-live-123"))
	assert.Equal(t, "[REDACTED:11]", f.String)
}

func TestRedactingEncoder_SensitiveFieldNames(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	logger, buf := newBufferLogger(t, cfg)

	logger.Info(context.Background(), "connecting",
		zap.String("api_key", "abc123"),
		zap.String("Password", "hunter2"),
		zap.Binary("token", []byte("raw")),
		zap.String("collection", "policy_documents"),
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, redacted, lines[0]["api_key"])
	assert.Equal(t, redacted, lines[0]["Password"])
	assert.Equal(t, redacted, lines[0]["token"])
	assert.Equal(t, "policy_documents", lines[0]["collection"])
}

func TestRedactingEncoder_PatternsInValuesAndMessage(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	logger, buf := newBufferLogger(t, cfg)

	logger.Error(context.Background(), "request failed with key sk-abcdefghijkl",
		zap.String("header", "Bearer eyJhbGciOi.payload"),
		zap.Error(errors.New("upstream rejected api_key=sk-zyxwvutsrq")),
	)

	out := buf.String()
	assert.NotContains(t, out, "sk-abcdefghijkl")
	assert.NotContains(t, out, "eyJhbGciOi.payload")
	assert.NotContains(t, out, "sk-zyxwvutsrq")
	assert.Contains(t, out, redacted)
}

func TestRedactingEncoder_WithFields(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	logger, buf := newBufferLogger(t, cfg)

	logger.With(zap.String("secret", "s3cr3t")).Info(context.Background(), "child")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, redacted, lines[0]["secret"])
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), RedactionConfig{
		Enabled: false,
		Fields:  []string{"password"},
	})
	require.NoError(t, err)
	assert.False(t, enc.sensitive("password"))
}

func TestNewRedactingEncoder_InvalidPattern(t *testing.T) {
	_, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), RedactionConfig{
		Enabled:  true,
		Patterns: []string{"("},
	})
	assert.Error(t, err)
}

func TestTestLogger_AssertNoSecret(t *testing.T) {
	logger := NewTestLogger()
	logger.Info(context.Background(), "configured", Secret("api_key", "sk-very-secret"))
	logger.AssertNoSecret(t, "sk-very-secret")
}
