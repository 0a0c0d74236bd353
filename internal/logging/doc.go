// Package logging wraps zap with context-aware methods.
//
// Every method takes a context and prepends correlation fields found in it:
// the OpenTelemetry trace and span ids, the request id and the caller role.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig())
//	ctx = logging.WithRequestID(ctx, "req-42")
//	ctx = logging.WithRole(ctx, access.RoleAdmin)
//	logger.Info(ctx, "search completed", zap.Int("results", 3))
//
// Output is JSON or console on stdout or stderr. Field names and value
// patterns that look like credentials are redacted by the encoder, and
// config.Secret values are logged through Secret. Below-error entries are
// sampled; errors never are.
//
// Components that take a *zap.Logger get one from Underlying. Tests use
// NewTestLogger and its assertion helpers.
package logging
