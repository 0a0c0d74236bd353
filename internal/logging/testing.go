package logging

import (
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger backed by an in-memory observer core.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger records every entry, Trace included.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{Logger: New(zap.New(core)), observed: observed}
}

// All returns the recorded entries in order.
func (t *TestLogger) All() []observer.LoggedEntry { return t.observed.All() }

// FilterMessage narrows the recorded entries to messages containing msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessageSnippet(msg)
}

// Reset drops everything recorded so far.
func (t *TestLogger) Reset() { t.observed.TakeAll() }

// AssertLogged fails tb unless some entry at level mentions msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if t.observed.FilterLevelExact(level).FilterMessageSnippet(msg).Len() == 0 {
		tb.Errorf("no %s entry mentioning %q among %d entries", level, msg, t.observed.Len())
	}
}

// AssertField fails tb unless an entry mentioning msg carries key=want.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want interface{}) {
	tb.Helper()
	for _, e := range t.FilterMessage(msg).All() {
		if got, ok := e.ContextMap()[key]; ok && reflect.DeepEqual(got, want) {
			return
		}
	}
	tb.Errorf("no entry mentioning %q with %s=%v", msg, key, want)
}

// AssertNoSecret fails tb if secret shows up in a message or a string field.
func (t *TestLogger) AssertNoSecret(tb testing.TB, secret string) {
	tb.Helper()
	for _, e := range t.observed.All() {
		leaked := strings.Contains(e.Message, secret)
		for _, f := range e.Context {
			leaked = leaked || (f.Type == zapcore.StringType && strings.Contains(f.String, secret))
		}
		if leaked {
			tb.Errorf("secret leaked in entry %q", e.Message)
		}
	}
}
